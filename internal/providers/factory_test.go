package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flavorwise/config"
	"flavorwise/internal/core"
	"flavorwise/internal/credentials"
	"flavorwise/internal/pricetable"
	"flavorwise/internal/providers/nebius"
)

const credentialsYAML = `
aws:
  access_key_id: AKIAEXAMPLE
  secret_access_key: secret
azure:
  tenant_id: t
  client_id: c
  secret: s
  subscription_id: sub
nebius:
  iam_token: iam
gcp:
  api_key: key
`

func testConfig(enabled ...string) *config.Config {
	return &config.Config{
		Providers: config.ProvidersConfig{
			Enabled: enabled,
			AWS:     config.ProviderConfig{CredentialsPath: "aws"},
			Azure:   config.ProviderConfig{CredentialsPath: "azure"},
			Alibaba: config.ProviderConfig{CredentialsPath: "alibaba"},
			GCP:     config.ProviderConfig{CredentialsPath: "gcp"},
			Nebius: config.NebiusConfig{
				ProviderConfig: config.ProviderConfig{CredentialsPath: "nebius"},
				Platforms:      []config.NebiusPlatform{{ID: "standard-v3", Name: "Intel Ice Lake"}},
				CoreFractions:  []int{100},
			},
		},
	}
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	src, err := credentials.ParseFileSource([]byte(credentialsYAML))
	require.NoError(t, err)
	return Deps{Credentials: src, Table: pricetable.NewMemoryTable()}
}

func TestBuild(t *testing.T) {
	registry, err := Build(context.Background(), testConfig(), testDeps(t))
	require.NoError(t, err)

	// Alibaba has no bundle and is skipped.
	assert.Equal(t, []core.CloudType{core.CloudAWS, core.CloudAzure, core.CloudGCP, core.CloudNebius}, registry.Clouds())

	for _, cloud := range registry.Clouds() {
		a, err := registry.Adapter(cloud)
		require.NoError(t, err)
		assert.Equal(t, cloud, a.Cloud())
	}

	_, err = registry.Adapter(core.CloudAlibaba)
	assert.True(t, core.IsInvalidArgument(err))

	_, err = registry.Adapter("oracle_cnr")
	assert.True(t, core.IsInvalidArgument(err))

	n, err := registry.Nebius()
	require.NoError(t, err)
	assert.IsType(t, &nebius.Adapter{}, n)
}

func TestBuild_Enabled(t *testing.T) {
	registry, err := Build(context.Background(), testConfig("gcp_cnr"), testDeps(t))
	require.NoError(t, err)
	assert.Equal(t, []core.CloudType{core.CloudGCP}, registry.Clouds())

	_, err = registry.Nebius()
	assert.True(t, core.IsInvalidArgument(err))
}

func TestBuild_NothingConfigured(t *testing.T) {
	_, err := Build(context.Background(), testConfig("alibaba_cnr"), testDeps(t))
	assert.Error(t, err)

	_, err = Build(context.Background(), testConfig(), Deps{})
	assert.Error(t, err)
}
