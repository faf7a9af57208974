package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags clears sticky command flags between invocations.
func resetFlags() {
	sticky := map[string][]string{
		"select":     {"external", "clear"},
		"extremes":   {"k"},
		"explain":    {"top", "global"},
		"importance": {"top"},
		"report":     {"format", "out", "score", "explain"},
	}
	for _, c := range rootCmd.Commands() {
		for _, name := range sticky[c.Name()] {
			if fl := c.Flags().Lookup(name); fl != nil {
				fl.Changed = false
			}
		}
	}
	for _, name := range []string{"config", "output"} {
		if fl := rootCmd.PersistentFlags().Lookup(name); fl != nil {
			fl.Changed = false
		}
	}
	selExternal, selClear, extremesK = "", false, 0
	explainTop, explainGlobal, importanceTop = 0, false, 0
	repFormat, repOut, repScore, repExplain = "md", "", false, true
	outFormat, cfgFile = "md", ""
}

// runCmd executes the root command with args and returns its stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

type cliEnv struct {
	base []string
	dir  string
}

func newCLIEnv(t *testing.T, scoringURL string) cliEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	data, err := filepath.Abs(filepath.Join("..", "internal", "dashboard", "testdata"))
	require.NoError(t, err)
	return cliEnv{
		dir: home,
		base: []string{
			"--dataset", filepath.Join(data, "clients.csv"),
			"--model", filepath.Join(data, "model.json"),
			"--session-file", filepath.Join(home, "session.json"),
			"--scoring-url", scoringURL,
			"--retry-max", "1",
			"--retry-base-ms", "1",
		},
	}
}

func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCmd(t, append(append([]string{}, args...), e.base...)...)
}

func scoringServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Prédiction de la TARGET 0":       0.81,
			"Prédiction de la TARGET 1":       0.19,
			"Classe prédite pour ces données": 0,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCLI_SelectPersistsAcrossCommands(t *testing.T) {
	env := newCLIEnv(t, scoringServer(t, http.StatusOK).URL)

	out, err := env.run(t, "select")
	require.NoError(t, err)
	assert.Contains(t, out, "No client selected")

	_, err = env.run(t, "client")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no client selected")

	out, err = env.run(t, "select", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Selected client 100003 (key 1)")

	_, err = env.run(t, "select", "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	out, err = env.run(t, "select")
	require.NoError(t, err)
	assert.Contains(t, out, "key 1")

	out, err = env.run(t, "select", "--external", "100004")
	require.NoError(t, err)
	assert.Contains(t, out, "(key 2)")

	_, err = os.Stat(filepath.Join(env.dir, "session.json"))
	assert.NoError(t, err)
}

func TestCLI_Views(t *testing.T) {
	env := newCLIEnv(t, scoringServer(t, http.StatusOK).URL)
	_, err := env.run(t, "select", "2")
	require.NoError(t, err)

	out, err := env.run(t, "columns")
	require.NoError(t, err)
	assert.Contains(t, out, "Clients: 12 (keys 0 to 11)")
	assert.Contains(t, out, "- NAME_HOUSING_TYPE_House_apartment")

	out, err = env.run(t, "client", "-o", "json")
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Contains(t, rec, "DAYS_BIRTH")

	out, err = env.run(t, "compare", "AMT_CREDIT")
	require.NoError(t, err)
	assert.Contains(t, out, "## AMT_CREDIT")
	assert.Contains(t, out, "◀ client")

	_, err = env.run(t, "compare", "NOPE")
	require.Error(t, err)

	out, err = env.run(t, "bivariate", "DAYS_BIRTH", "AMT_CREDIT")
	require.NoError(t, err)
	assert.Contains(t, out, "points: 12")

	out, err = env.run(t, "extremes", "-k", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "### Highest")

	out, err = env.run(t, "explain", "--top", "2", "--global")
	require.NoError(t, err)
	assert.Contains(t, out, "## Why this score")
	assert.Contains(t, out, "other features (2)")
	assert.Contains(t, out, "## Global feature importance")

	out, err = env.run(t, "importance", "--top", "1", "-o", "json")
	require.NoError(t, err)
	var imp []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &imp))
	assert.Len(t, imp, 1)
}

func TestCLI_PredictAndReport(t *testing.T) {
	env := newCLIEnv(t, scoringServer(t, http.StatusOK).URL)
	_, err := env.run(t, "select", "0")
	require.NoError(t, err)

	out, err := env.run(t, "predict")
	require.NoError(t, err)
	assert.Contains(t, out, "Decision: **APPROVED**")
	assert.Contains(t, out, "Repayment score: 81.00 %")

	path := filepath.Join(env.dir, "report.html")
	out, err = env.run(t, "report", "--format", "html", "--score", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Report written")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "<html")
	assert.Contains(t, string(b), "APPROVED")
}

func TestCLI_PredictUnavailable(t *testing.T) {
	env := newCLIEnv(t, scoringServer(t, http.StatusServiceUnavailable).URL)
	_, err := env.run(t, "select", "0")
	require.NoError(t, err)

	_, err = env.run(t, "predict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")

	out, err := env.run(t, "select")
	require.NoError(t, err)
	assert.Contains(t, out, "key 0")
}

func TestCLI_ConfigSetShow(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgPath := filepath.Join(home, "config.yaml")

	_, err := runCmd(t, "config", "set", "extremes_k", "5", "--config", cfgPath)
	require.NoError(t, err)
	out, err := runCmd(t, "config", "show", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "extremes_k: 5")

	_, err = runCmd(t, "config", "set", "nope", "1", "--config", cfgPath)
	assert.Error(t, err)
	_, err = runCmd(t, "config", "set", "delimiter", "|", "--config", cfgPath)
	assert.Error(t, err)
}
