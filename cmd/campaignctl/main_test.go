package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  type: local
  local_path: `+t.TempDir()+`
notify:
  type: none
site:
  timezone: America/New_York
`), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestNextSend(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t), "next-send", "aud1")
	require.NoError(t, err)
	assert.Contains(t, out, "12:30:00")
	assert.Contains(t, out, "UTC")
}

func TestReconcileWithoutAudiences(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t), "reconcile")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRemoveRejectsUnknownKind(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t), "remove", "folders")
	assert.Error(t, err)
}
