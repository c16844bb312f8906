// Command mlfsa is the diagnostics tool for the secrets-backed MLflow
// authentication library: "mlfsa info" reports the resolved configuration,
// "mlfsa doctor" exercises the enabled backend end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	secretsauth "github.com/halcyonlabs/secretsauth"
	"github.com/halcyonlabs/secretsauth/internal/config"
	"github.com/halcyonlabs/secretsauth/internal/hostallow"
	"github.com/halcyonlabs/secretsauth/internal/observe"
	"github.com/halcyonlabs/secretsauth/internal/secret"
)

func main() {
	observe.SetupLogging(true)
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout))
}

func run(ctx context.Context, args []string, out io.Writer) int {
	if len(args) == 0 {
		usage(out)
		return 2
	}

	switch args[0] {
	case "info":
		return infoCommand(ctx, out)

	case "doctor":
		flags := flag.NewFlagSet("doctor", flag.ContinueOnError)
		flags.SetOutput(out)
		dryRun := flags.String("url", "", "send an authenticated request to this URL")
		if err := flags.Parse(args[1:]); err != nil {
			return 2
		}
		return doctorCommand(ctx, out, *dryRun)

	default:
		fmt.Fprintf(out, "unknown command %q\n\n", args[0])
		usage(out)
		return 2
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "usage: mlfsa <command>")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "commands:")
	fmt.Fprintln(out, "  info                 show resolved configuration")
	fmt.Fprintln(out, "  doctor [-url URL]    check the enabled backend end to end")
}

func infoCommand(ctx context.Context, out io.Writer) int {
	fmt.Fprintf(out, "mlflow-secrets-auth %s\n\n", secretsauth.Version)

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(out, "configuration error: %v\n", err)
		return 0
	}

	factory := secretsauth.NewFactory()
	fmt.Fprintln(out, "backends:")
	for _, backend := range factory.Backends() {
		status := "disabled"
		if cfg.IsEnabled(backend.Name()) {
			status = "enabled"
		}
		fmt.Fprintf(out, "  %-20s %s\n", backend.Name(), status)
	}

	fmt.Fprintf(out, "\nauth header:   %s\n", cfg.AuthHeaderName)
	if cfg.AllowedHosts == "" {
		fmt.Fprintln(out, "allowed hosts: (all)")
	} else {
		fmt.Fprintf(out, "allowed hosts: %s\n", cfg.AllowedHosts)
	}
	return 0
}

func doctorCommand(ctx context.Context, out io.Writer, dryRunURL string) int {
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(out, "FAIL configuration: %v\n", err)
		return 1
	}

	if !cfg.AnyEnabled() {
		fmt.Fprintln(out, "FAIL no backend enabled; set MLFLOW_SECRETS_AUTH_ENABLE")
		return 1
	}

	factory := secretsauth.NewFactory()
	p := factory.Provider(ctx)
	if p == nil {
		fmt.Fprintln(out, "FAIL no enabled backend could be constructed")
		return 1
	}
	fmt.Fprintf(out, "ok   backend: %s\n", p.Name())

	var backendTTL time.Duration
	for _, backend := range factory.Backends() {
		if backend.Name() == p.Name() {
			backendTTL = backend.TTL()
			fmt.Fprintf(out, "ok   auth mode: %s, ttl: %s\n",
				backend.AuthMode(), secret.FormatDuration(int(backendTTL/time.Second)))
		}
	}

	cred, err := p.Credential(ctx)
	if err != nil {
		fmt.Fprintf(out, "FAIL secret fetch: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "ok   credential: %s\n", cred)

	auth := p.GetAuth(ctx)
	if auth == nil {
		fmt.Fprintln(out, "FAIL authenticator construction; check auth mode against the secret shape")
		return 1
	}
	fmt.Fprintln(out, "ok   authenticator constructed")

	if dryRunURL == "" {
		return 0
	}
	return dryRun(ctx, out, cfg, dryRunURL)
}

// dryRun sends one authenticated HEAD request and reports the response
// status.
func dryRun(ctx context.Context, out io.Writer, cfg config.Config, rawURL string) int {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		fmt.Fprintf(out, "FAIL invalid url %q\n", rawURL)
		return 1
	}

	if !hostallow.FromList(cfg.AllowedHosts).Allowed(rawURL) {
		fmt.Fprintf(out, "FAIL host %s is not on the allowlist\n", parsed.Hostname())
		return 1
	}

	client := &http.Client{
		Transport: secretsauth.NewTransport(nil),
		Timeout:   15 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		fmt.Fprintf(out, "FAIL building request: %v\n", err)
		return 1
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(out, "FAIL request: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	fmt.Fprintf(out, "ok   %s -> %s\n", rawURL, resp.Status)
	if resp.StatusCode >= http.StatusBadRequest {
		return 1
	}
	return 0
}
