// Package secret normalizes raw secret material into credential records.
//
// Secrets backends store heterogeneous shapes: opaque tokens, JSON blobs,
// "user:pass" strings. Parse is lenient with unstructured input but rejects
// structured data it does not recognize, so a misconfigured secret fails
// loudly instead of being silently treated as a token.
package secret

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrEmptySecret is returned when the raw secret is empty or whitespace.
	ErrEmptySecret = errors.New("secret is empty")

	// ErrUnsupportedShape is returned for structured secrets that contain
	// neither a token nor a username/password pair.
	ErrUnsupportedShape = errors.New("secret must contain either a token or username/password fields")
)

// Kind discriminates the credential variants.
type Kind int

const (
	// Bearer is a single opaque token.
	Bearer Kind = iota

	// Basic is a username/password pair.
	Basic
)

func (k Kind) String() string {
	if k == Basic {
		return "basic"
	}
	return "bearer"
}

// Credential is a normalized credential record. Exactly one kind is
// populated. Values are immutable once produced and must never be logged
// in full; String renders a masked form.
type Credential struct {
	Kind     Kind
	Token    string
	Username string
	Password string
}

// String implements fmt.Stringer with all secret material masked.
func (c Credential) String() string {
	if c.Kind == Basic {
		return "basic " + c.Username + ":" + Mask(c.Password)
	}
	return "bearer " + Mask(c.Token)
}

type structured struct {
	Token    *string `json:"token"`
	Username *string `json:"username"`
	Password *string `json:"password"`
}

// Parse turns raw secret material into a Credential.
//
// A JSON object with a "token" field becomes a Bearer credential; one with
// "username" and "password" becomes Basic. A structured object with neither
// is an error. Anything that is not a JSON object is treated as plain text:
// a single ":" separator splits into username:password, otherwise the whole
// string is a bearer token.
func Parse(raw string) (Credential, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Credential{}, ErrEmptySecret
	}

	if strings.HasPrefix(trimmed, "{") {
		var s structured
		if err := json.Unmarshal([]byte(trimmed), &s); err != nil {
			// Looks like JSON but does not decode as structured credential
			// material. Falling through to the plain text path would split on
			// stray ":" characters inside the object, so reject instead.
			return Credential{}, ErrUnsupportedShape
		}
		if s.Token != nil {
			return Credential{Kind: Bearer, Token: strings.TrimSpace(*s.Token)}, nil
		}
		if s.Username != nil && s.Password != nil {
			return Credential{
				Kind:     Basic,
				Username: strings.TrimSpace(*s.Username),
				Password: strings.TrimSpace(*s.Password),
			}, nil
		}
		return Credential{}, ErrUnsupportedShape
	}

	// Plain text fallback: exactly one separator makes a user:pass pair.
	if strings.Count(trimmed, ":") == 1 {
		user, pass, _ := strings.Cut(trimmed, ":")
		return Credential{Kind: Basic, Username: user, Password: pass}, nil
	}

	return Credential{Kind: Bearer, Token: trimmed}, nil
}
