package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vyrodovalexey/avauthz/internal/auth/keys"
	"github.com/vyrodovalexey/avauthz/internal/auth/token"
	"github.com/vyrodovalexey/avauthz/internal/config"
	"github.com/vyrodovalexey/avauthz/internal/observability"
	"github.com/vyrodovalexey/avauthz/internal/secrets"
)

func runIssue(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Service configuration file (defaults when empty)")
	subject := fs.String("subject", "", "Subject id (required)")
	role := fs.String("role", "Admin", "Role claim")
	email := fs.String("email", "", "Email claim")
	allow := fs.String("allow", "", "Comma-separated allow descriptors")
	deny := fs.String("deny", "", "Comma-separated deny descriptors")
	expires := fs.String("expires", "", "Lifetime, e.g. 30m, 12h, 7d")
	asJSON := fs.Bool("json", false, "Print the full issue result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	ctx := context.Background()
	sp, err := secrets.NewProvider(ctx, &cfg.Secrets, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sp.Close() }()

	provider := keys.NewProvider(sp, keys.WithSecretPrefix(cfg.Keys.SecretPrefix))
	svc, err := token.NewService(cfg.Token, provider, token.WithLogger(observability.NopLogger()))
	if err != nil {
		return err
	}

	issued, err := svc.Issue(ctx, token.Claims{
		SubjectID:       *subject,
		Role:            *role,
		Email:           *email,
		Permissions:     splitList(*allow),
		DenyPermissions: splitList(*deny),
	}, token.IssueOptions{ExpiresIn: *expires})
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(issued)
	}
	_, err = fmt.Fprintln(stdout, issued.Token)
	return err
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
