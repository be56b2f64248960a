package cli

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/captable/internal/model"
	"github.com/roach88/captable/internal/testutil"
)

// invalidAcme clears the Series A valuation and gives Beta Fund an
// allocation without any earlier grant.
func invalidAcme() model.Document {
	doc := testutil.AcmeDocument()
	seriesA := &doc.Rounds[1]
	seriesA.Valuation = decimal.NullDecimal{}
	seriesA.ValuationBasis = ""
	seriesA.Instruments = append(seriesA.Instruments,
		model.NewAllocation("Beta Fund", "Preferred A", model.ProRataStandard, decimal.NullDecimal{}))
	return doc
}

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestValidateValidDocument(t *testing.T) {
	path := writeDocument(t, testutil.AcmeDocument())

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)
	assert.Equal(t, "✓ Document valid (3 holders, 2 rounds)\n", out)
}

func TestValidateValidDocumentJSON(t *testing.T) {
	path := writeDocument(t, testutil.AcmeDocument())

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Rounds)
	assert.Empty(t, resp.Data.Warnings)
}

func TestValidateReportsErrorsAndWarnings(t *testing.T) {
	path := writeDocument(t, invalidAcme())

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")

	newGolden(t).Assert(t, "validate-invalid-text", []byte(out))
}

func TestValidateReportsErrorsAndWarningsJSON(t *testing.T) {
	path := writeDocument(t, invalidAcme())

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	newGolden(t).Assert(t, "validate-invalid-json", []byte(out))
}

func TestValidateWarningsDoNotFail(t *testing.T) {
	doc := testutil.AcmeDocument()
	doc.Rounds[1].Instruments = append(doc.Rounds[1].Instruments,
		model.NewAllocation("Beta Fund", "Preferred A", model.ProRataStandard, decimal.NullDecimal{}))
	path := writeDocument(t, doc)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Document valid")
	assert.Contains(t, out, "Warnings:")
	assert.Contains(t, out, "[missing_origin] rounds[1].instruments[1]")
}

func TestValidateCommandErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name     string
		path     string
		wantCode string
		wantOut  string
	}{
		{
			name:     "missing file",
			path:     dir + "/absent.json",
			wantCode: ErrCodeNotFound,
			wantOut:  "document not found",
		},
		{
			name:     "holders is not a list",
			path:     writeFile(t, dir, "object.json", `{"schema_version": "1.0", "holders": {}, "rounds": []}`),
			wantCode: ErrCodeMalformed,
			wantOut:  "malformed document",
		},
		{
			name:     "not json",
			path:     writeFile(t, dir, "garbage.json", `{"schema_version": `),
			wantCode: ErrCodeMalformed,
			wantOut:  "malformed document",
		},
		{
			name:     "unsupported schema version",
			path:     writeFile(t, dir, "future.json", `{"schema_version": "2.0", "holders": [], "rounds": []}`),
			wantCode: ErrCodeMalformed,
			wantOut:  "malformed document",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantCode)
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestValidateYAMLDocument(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "../document/testdata/acme.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Document valid (3 holders, 2 rounds)")
}
