// Package secrets implements the secret-store port. Real deployments
// point this at a managed secret service; the framework only ever sees
// opaque refs and short-lived Credentials values.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"pmsbridge/internal/domain"
)

// Env resolves credential refs from environment variables:
//
//	SECRET_<REF>_CLIENT_ID
//	SECRET_<REF>_CLIENT_SECRET
//	SECRET_<REF>_API_KEY
//	SECRET_<REF>_WEBHOOK_SECRET
//
// where <REF> is the ref upper-cased with dashes mapped to underscores.
type Env struct{}

func NewEnv() *Env { return &Env{} }

func (e *Env) GetSecret(_ context.Context, ref string) (domain.Credentials, error) {
	prefix := "SECRET_" + strings.ToUpper(strings.ReplaceAll(ref, "-", "_")) + "_"
	creds := domain.Credentials{
		ClientID:      os.Getenv(prefix + "CLIENT_ID"),
		ClientSecret:  os.Getenv(prefix + "CLIENT_SECRET"),
		APIKey:        os.Getenv(prefix + "API_KEY"),
		WebhookSecret: os.Getenv(prefix + "WEBHOOK_SECRET"),
	}
	if creds == (domain.Credentials{}) {
		return domain.Credentials{}, domain.AuthErr(fmt.Sprintf("no secret material for ref %q", ref), nil)
	}
	return creds, nil
}

// Static is a fixed in-memory store for tests and local sandboxes.
type Static struct {
	Secrets map[string]domain.Credentials
}

func (s *Static) GetSecret(_ context.Context, ref string) (domain.Credentials, error) {
	creds, ok := s.Secrets[ref]
	if !ok {
		return domain.Credentials{}, domain.AuthErr(fmt.Sprintf("unknown credential ref %q", ref), nil)
	}
	return creds, nil
}

var (
	_ domain.SecretStore = (*Env)(nil)
	_ domain.SecretStore = (*Static)(nil)
)
