package secrets_test

import (
	"testing"

	"github.com/shankarkarande/farmvibes-ai/internal/secrets"
	"github.com/shankarkarande/farmvibes-ai/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("FARMVIBES_SECRET_PC_KEY", "planetary")

	p := secrets.NewEnvProvider()

	v, err := p.Lookup("pc-key")
	assert.NoError(t, err)
	assert.Equal(t, "planetary", v)

	// dots normalize like dashes
	v, err = p.Lookup("pc.key")
	assert.NoError(t, err)
	assert.Equal(t, "planetary", v)

	_, err = p.Lookup("unset-secret")
	assert.Error(t, err)
	assert.Equal(t, models.ErrSecretNotFound, models.KindOf(err))
}

func TestStaticProvider(t *testing.T) {
	p := secrets.StaticProvider{"api-key": "s3cret"}

	v, err := p.Lookup("api-key")
	assert.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	_, err = p.Lookup("other")
	assert.Error(t, err)
	assert.Equal(t, models.ErrSecretNotFound, models.KindOf(err))
}
