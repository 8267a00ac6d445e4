package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flavorwise/internal/core"
)

func TestParseAccounts(t *testing.T) {
	accounts, err := parseAccounts([]string{"a1:aws_cnr", "g1:gcp_cnr"})
	require.NoError(t, err)
	assert.Equal(t, []core.CloudAccount{
		{ID: "a1", Type: core.CloudAWS},
		{ID: "g1", Type: core.CloudGCP},
	}, accounts)

	for _, bad := range []string{"a1", ":aws_cnr", "a1:oracle_cnr"} {
		_, err := parseAccounts([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestNewTable(t *testing.T) {
	var buf bytes.Buffer
	table := newTable(&buf, []string{"Flavor", "Price"})
	table.Append([]string{"m5.xlarge", "0.1920"})
	table.Render()

	assert.Contains(t, buf.String(), "FLAVOR")
	assert.Contains(t, buf.String(), "m5.xlarge")
}
