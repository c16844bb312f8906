package provider

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/halcyonlabs/secretsauth/internal/config"
	"github.com/halcyonlabs/secretsauth/internal/secret"
)

// Authenticator mutates an outgoing request to carry credentials.
// Implementations set exactly one header and touch nothing else.
type Authenticator interface {
	Apply(req *http.Request) error
}

// bearerAuth sets "<header>: Bearer <token>", or the raw token when a
// custom header is configured.
type bearerAuth struct {
	header string
	token  string
	raw    bool
}

func (a bearerAuth) Apply(req *http.Request) error {
	if a.raw {
		req.Header.Set(a.header, a.token)
		return nil
	}
	req.Header.Set(a.header, "Bearer "+a.token)
	return nil
}

// basicAuth sets "<header>: Basic <base64(user:pass)>", or the bare
// encoded pair when a custom header is configured.
type basicAuth struct {
	header   string
	username string
	password string
	raw      bool
}

func (a basicAuth) Apply(req *http.Request) error {
	encoded := base64.StdEncoding.EncodeToString([]byte(a.username + ":" + a.password))
	if a.raw {
		req.Header.Set(a.header, encoded)
		return nil
	}
	req.Header.Set(a.header, "Basic "+encoded)
	return nil
}

// newAuthenticator builds the authenticator for the requested auth mode.
// A mode/credential shape mismatch is an error: a basic-mode backend whose
// secret only held a token must not silently downgrade to bearer.
func newAuthenticator(cred secret.Credential, mode string, cfg config.Config) (Authenticator, error) {
	header := cfg.AuthHeaderName
	if header == "" {
		header = "Authorization"
	}
	raw := cfg.CustomHeader()

	switch mode {
	case AuthModeBearer:
		if cred.Kind != secret.Bearer {
			return nil, fmt.Errorf("auth mode %q requested but secret holds %s credentials", mode, cred.Kind)
		}
		return bearerAuth{header: header, token: cred.Token, raw: raw}, nil

	case AuthModeBasic:
		if cred.Kind != secret.Basic {
			return nil, fmt.Errorf("auth mode %q requested but secret holds %s credentials", mode, cred.Kind)
		}
		return basicAuth{header: header, username: cred.Username, password: cred.Password, raw: raw}, nil

	default:
		return nil, fmt.Errorf("unsupported auth mode %q", mode)
	}
}
