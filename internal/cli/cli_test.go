package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv points maestro at a throwaway home with the mock provider and
// in-memory sessions.
func testEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("MAESTRO_HOME", home)
	t.Setenv("MAESTRO_LLM_PROVIDER", "mock")
	t.Setenv("MAESTRO_SESSION_STORE", "memory")
	t.Setenv("MAESTRO_DB_PATH", "")
	return home
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	testEnv(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "maestro ")
}

func TestAsk(t *testing.T) {
	testEnv(t)

	out, err := run(t, "ask", "--responder", "luthier_historian", "Who", "was", "Torres?")
	require.NoError(t, err)
	assert.Contains(t, out, "mock response")
	assert.Contains(t, out, "luthier_historian")
	assert.Contains(t, out, "single")
}

func TestAskJSON(t *testing.T) {
	testEnv(t)

	out, err := run(t, "ask", "--json", "--session", "cli-1", "--responder", "jazz_teacher", "what is the dorian mode?")
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "cli-1", resp["sessionId"])
	assert.Equal(t, []any{"jazz_teacher"}, resp["trail"])
}

func TestAskRejectsInvalidInput(t *testing.T) {
	testEnv(t)

	_, err := run(t, "ask", "--skill", "wizard", "hello")
	assert.ErrorContains(t, err, "unknown skill level")

	_, err = run(t, "ask", "--responder", "drummer", "hello")
	assert.Error(t, err)
}

func TestConfigSetGet(t *testing.T) {
	home := testEnv(t)

	out, err := run(t, "config", "set", "session.conflict", "reject")
	require.NoError(t, err)
	assert.Equal(t, "Set session.conflict = reject\n", out)

	out, err = run(t, "config", "get", "session.conflict")
	require.NoError(t, err)
	assert.Equal(t, "reject\n", out)

	_, err = run(t, "config", "get", "session.nope")
	assert.ErrorContains(t, err, "not found")

	out, err = run(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.yaml")+"\n", out)
}

func TestConfigValidate(t *testing.T) {
	home := testEnv(t)

	out, err := run(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Config OK")

	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("session:\n  conflict: merge\n"), 0o600))
	out, err = run(t, "config", "validate")
	assert.Error(t, err)
	assert.Contains(t, out, "session.conflict")
}

func TestDBSeedAndStats(t *testing.T) {
	testEnv(t)

	out, err := run(t, "db", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Database ready")

	out, err = run(t, "db", "seed")
	require.NoError(t, err)
	assert.Regexp(t, `chords\s+\+0\n`, out, "fixtures already present are skipped")

	out, err = run(t, "db", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "guitar_history")
	assert.Contains(t, out, "sessions")
}

func TestQuerySchema(t *testing.T) {
	testEnv(t)

	out, err := run(t, "query", "--schema")
	require.NoError(t, err)
	assert.Contains(t, out, "chords")
	assert.Contains(t, out, "jazz_standards")

	_, err = run(t, "query")
	assert.ErrorContains(t, err, "request is required")
}

func TestResponders(t *testing.T) {
	testEnv(t)

	out, err := run(t, "responders", "--json")
	require.NoError(t, err)

	var infos []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	ids := make([]string, 0, len(infos))
	for _, i := range infos {
		ids = append(ids, i.ID)
	}
	assert.Equal(t, []string{"luthier_historian", "jazz_teacher", "sql_expert", "dev_pm"}, ids)
}

func TestStatus(t *testing.T) {
	testEnv(t)

	out, err := run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Session: store=memory conflict=queue")
	assert.Contains(t, out, "LLM:     mock")
}
