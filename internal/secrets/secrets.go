// Package secrets provides the secret lookup collaborator the
// scheduler uses to resolve "@secret(name)" parameter references at
// dispatch time.
package secrets

import (
	"os"
	"strings"

	"github.com/shankarkarande/farmvibes-ai/pkg/models"
)

// EnvPrefix namespaces the environment variables the env provider
// reads, e.g. secret "pc-key" maps to FARMVIBES_SECRET_PC_KEY.
const EnvPrefix = "FARMVIBES_SECRET_"

// Provider resolves secret names to values.
type Provider interface {
	Lookup(name string) (string, error)
}

// EnvProvider reads secrets from prefixed environment variables,
// typically loaded from .env via godotenv at startup.
type EnvProvider struct{}

func NewEnvProvider() EnvProvider { return EnvProvider{} }

func (EnvProvider) Lookup(name string) (string, error) {
	key := EnvPrefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", models.NewError(models.ErrSecretNotFound, "secret %q not found (env %s)", name, key)
	}
	return v, nil
}

// StaticProvider serves secrets from a fixed map, for embedded use and
// tests.
type StaticProvider map[string]string

func (p StaticProvider) Lookup(name string) (string, error) {
	v, ok := p[name]
	if !ok {
		return "", models.NewError(models.ErrSecretNotFound, "secret %q not found", name)
	}
	return v, nil
}
