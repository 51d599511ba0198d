// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/preview-capture/internal/event"
	"github.com/xkilldash9x/preview-capture/internal/observability"
)

// executeCommand runs a fresh root command and returns everything it printed.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	testRootCmd := NewRootCommand()
	buf := new(bytes.Buffer)
	testRootCmd.SetOut(buf)
	testRootCmd.SetErr(buf)
	testRootCmd.SetArgs(args)
	err := testRootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// clearEnv keeps settings from the developer's shell out of the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DEBUG", "S3_BUCKET", "S3_REGION", "REDIRECT_BUCKET", "DATABASE_URL",
		"AWS_EXECUTION_ENV", "PREVIEW_STORAGE_DEBUG", "PREVIEW_STORAGE_BUCKET",
		"PREVIEW_STORAGE_REGION", "PREVIEW_DATABASE_URL",
	} {
		t.Setenv(name, "")
	}
}

// TestRootCmd_VersionFlag tests if the --version flag works correctly.
func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "preview-capture version "+Version)
}

func TestVersionCmd(t *testing.T) {
	clearEnv(t)
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "preview-capture version "+Version+"\n", out)
}

// TestRootCmd_NoArgs tests the behavior when no arguments are provided.
func TestRootCmd_NoArgs(t *testing.T) {
	clearEnv(t)
	out, err := executeCommand(t)
	require.NoError(t, err)
	assert.Contains(t, out, "drives a headless browser to a page")
	assert.Contains(t, out, "Available Commands:")
	assert.Contains(t, out, "capture")
	assert.Contains(t, out, "redirect-page")
	assert.Contains(t, out, "history")
}

func TestRootCmd_BadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger: [unterminated"), 0o600))

	_, err := executeCommand(t, "--config", path, "redirect-page", "https://example.com", "https://img")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize configuration")
}

func TestRedirectPageCmd(t *testing.T) {
	clearEnv(t)

	t.Run("Guesses Trello Titles", func(t *testing.T) {
		out, err := executeCommand(t, "redirect-page",
			"https://trello.com/b/abc123/42-q3-roadmap",
			"https://previews.s3.ap-southeast-1.amazonaws.com/board.png")
		require.NoError(t, err)
		assert.Contains(t, out, "<title>Q3 Roadmap</title>")
		assert.Contains(t, out, `content="https://previews.s3.ap-southeast-1.amazonaws.com/board.png"`)
	})

	t.Run("Explicit Title", func(t *testing.T) {
		out, err := executeCommand(t, "redirect-page", "--title", "Launch Plan",
			"https://example.com/post", "https://img.example.com/post.png")
		require.NoError(t, err)
		assert.Contains(t, out, "<title>Launch Plan</title>")
	})

	t.Run("Requires Two Arguments", func(t *testing.T) {
		_, err := executeCommand(t, "redirect-page", "https://example.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "accepts 2 arg(s)")
	})
}

func TestCaptureCmd(t *testing.T) {
	t.Run("Requires Two Arguments", func(t *testing.T) {
		clearEnv(t)
		_, err := executeCommand(t, "capture", "only-a-key")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "accepts 2 arg(s)")
	})

	t.Run("Requires Bucket Outside Debug Mode", func(t *testing.T) {
		clearEnv(t)
		_, err := executeCommand(t, "capture", "board", "https://example.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("Rejects Invalid Request Before Launching", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		_, err := executeCommand(t, "capture", "--debug", "--local-dir", dir, "a/b", "https://example.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, event.ErrInvalidKey)

		entries, readErr := os.ReadDir(dir)
		require.NoError(t, readErr)
		assert.Empty(t, entries)
	})

	t.Run("Rejects Unknown Format", func(t *testing.T) {
		clearEnv(t)
		_, err := executeCommand(t, "capture", "--debug", "--local-dir", t.TempDir(), "--format", "gif", "board", "https://example.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, event.ErrInvalidOption)
	})
}

func TestCaptureFlagsRequest(t *testing.T) {
	cmd := newCaptureCmd(&app{})
	require.NoError(t, cmd.ParseFlags([]string{"--title", "Board", "--metadata", "team=growth", "--format", "jpeg"}))

	f := &captureFlags{}
	f.title, _ = cmd.Flags().GetString("title")
	f.format, _ = cmd.Flags().GetString("format")
	f.metadata, _ = cmd.Flags().GetStringToString("metadata")

	req := f.request(cmd, "board", "https://example.com")
	assert.Equal(t, "Board", req.Title)
	assert.Equal(t, "jpeg", req.Format)
	assert.Equal(t, map[string]string{"team": "growth"}, req.Metadata)
	assert.Nil(t, req.FullPage, "unset --full-page keeps the configured default")

	require.NoError(t, cmd.ParseFlags([]string{"--full-page=false"}))
	req = f.request(cmd, "board", "https://example.com")
	require.NotNil(t, req.FullPage)
	assert.False(t, *req.FullPage)
}

func TestHistoryCmd(t *testing.T) {
	t.Run("Requires Database", func(t *testing.T) {
		clearEnv(t)
		_, err := executeCommand(t, "history")
		require.Error(t, err)
		assert.ErrorIs(t, err, errNoDatabase)
	})

	t.Run("Rejects Arguments", func(t *testing.T) {
		clearEnv(t)
		_, err := executeCommand(t, "history", "extra")
		require.Error(t, err)
	})
}
