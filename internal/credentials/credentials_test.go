package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flavorwise/config"
)

const sampleFile = `
aws:
  access_key_id: AKIAEXAMPLE
  secret_access_key: ${TEST_AWS_SECRET}
azure:
  tenant_id: 00000000-0000-0000-0000-000000000000
  client_id: app
  secret: s3cret
  subscription_id: sub
`

func TestFileSource(t *testing.T) {
	t.Setenv("TEST_AWS_SECRET", "from-env")
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	src, err := New(config.CredentialsConfig{Type: TypeFile, File: path})
	require.NoError(t, err)
	defer src.Close()

	b, err := src.Read(context.Background(), "aws")
	require.NoError(t, err)
	assert.Equal(t, "AKIAEXAMPLE", b["access_key_id"])
	assert.Equal(t, "from-env", b["secret_access_key"])

	// Callers may mutate their copy.
	b["access_key_id"] = "changed"
	again, err := src.Read(context.Background(), "aws")
	require.NoError(t, err)
	assert.Equal(t, "AKIAEXAMPLE", again["access_key_id"])

	_, err = src.Read(context.Background(), "gcp")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewFileSource_Missing(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseFileSource_Invalid(t *testing.T) {
	_, err := ParseFileSource([]byte("aws: [unterminated"))
	assert.Error(t, err)

	src, err := ParseFileSource(nil)
	require.NoError(t, err)
	_, err = src.Read(context.Background(), "aws")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBundle_Decode(t *testing.T) {
	var creds struct {
		TenantID       string `yaml:"tenant_id"`
		ClientID       string `yaml:"client_id"`
		Secret         string `yaml:"secret"`
		SubscriptionID string `yaml:"subscription_id"`
	}
	b := Bundle{"tenant_id": "t", "client_id": "c", "secret": "s", "subscription_id": "sub", "extra": "ignored"}
	require.NoError(t, b.Decode(&creds))
	assert.Equal(t, "t", creds.TenantID)
	assert.Equal(t, "sub", creds.SubscriptionID)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(config.CredentialsConfig{Type: "vault"})
	assert.Error(t, err)
}
