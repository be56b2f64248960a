package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/captable/internal/model"
	"github.com/roach88/captable/internal/testutil"
)

func TestFingerprint(t *testing.T) {
	path := writeDocument(t, testutil.AcmeDocument())

	out, err := execute(t, NewFingerprintCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)
	assert.Equal(t, model.MustFingerprint(readDocument(t, path))+"\n", out)
}

func TestFingerprintMatchesAcrossEncodings(t *testing.T) {
	fromJSON, err := execute(t, NewFingerprintCommand(&RootOptions{Format: "json"}), "../harness/testdata/documents/acme.json")
	require.NoError(t, err)
	fromYAML, err := execute(t, NewFingerprintCommand(&RootOptions{Format: "json"}), "../document/testdata/acme.yaml")
	require.NoError(t, err)

	var a, b struct {
		Data FingerprintResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(fromJSON), &a))
	require.NoError(t, json.Unmarshal([]byte(fromYAML), &b))
	assert.NotEmpty(t, a.Data.Fingerprint)
	assert.Equal(t, a.Data.Fingerprint, b.Data.Fingerprint)
}

func TestFingerprintMissingDocument(t *testing.T) {
	out, err := execute(t, NewFingerprintCommand(&RootOptions{Format: "text"}), "testdata/none.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, strings.HasPrefix(out, "Error [E005]"))
}
