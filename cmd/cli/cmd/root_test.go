package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// offlineEnv points the service at a throwaway SQLite file and the local
// classifier so no network is involved.
func offlineEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "optim.db"))
	t.Setenv("LLM_PROVIDER", "local")
	t.Setenv("INGEST_BASE_CURRENCY", "EUR")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("GCS_BUCKET", "")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func writeStatement(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "releve-banque.csv")
	csv := "Date;Libellé;Montant\n" +
		"02/03/2024;CARREFOUR CITY;-54,20\n" +
		"02/03/2024;CARREFOUR CITY;-54,20\n" +
		"04/03/2024;SNCF;-89,00\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o600))
	return path
}

func TestDetect(t *testing.T) {
	out, err := run(t, "detect", "Isracard-03.xlsx", "notes.txt")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Isracard-03.xlsx\tisracard\tIsracard\txlsx", lines[0])
	assert.Equal(t, "notes.txt\tunknown\tUnknown source\tunknown", lines[1])
}

func TestIngestThenConsolidate(t *testing.T) {
	dir := offlineEnv(t)
	path := writeStatement(t, dir)

	out, err := run(t, "ingest", "--user=u1", path)
	require.NoError(t, err)

	var resp struct {
		Results []domain.IngestSummary `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "bank", resp.Results[0].SourceKey)
	assert.Equal(t, 3, resp.Results[0].ParsedTransactions)
	// the two identical rows share a hash
	assert.Equal(t, 2, resp.Results[0].PersistedTransactions)

	out, err = run(t, "ingest", "--user=u1", path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Zero(t, resp.Results[0].PersistedTransactions)

	out, err = run(t, "consolidate", "--user=u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":2,"unique":2,"duplicates":0}`, out)

	out, err = run(t, "cleanup", "--user=u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"deleted":0}`, out)
}

func TestParseDoesNotStore(t *testing.T) {
	dir := offlineEnv(t)
	path := writeStatement(t, dir)

	out, err := run(t, "parse", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"persisted_transactions": 0`)

	out, err = run(t, "consolidate", "--user=u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":0,"unique":0,"duplicates":0}`, out)
}

func TestCommandErrors(t *testing.T) {
	offlineEnv(t)

	_, err := run(t, "consolidate")
	assert.ErrorIs(t, err, errNoUser)

	_, err = run(t, "upload", "missing.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GCS_BUCKET")

	_, err = run(t, "ingest")
	assert.Error(t, err)
}
