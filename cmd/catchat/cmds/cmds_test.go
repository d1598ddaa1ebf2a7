package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-go-golems/catchat/pkg/chat"
	"github.com/go-go-golems/catchat/pkg/devserver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type cliEnv struct {
	baseURL     string
	sessionPath string
	configFile  string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	srv, err := devserver.NewServer(devserver.NewMemoryHistory(0))
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log-level: error\n"), 0o644))
	return cliEnv{
		baseURL:     ts.URL,
		sessionPath: filepath.Join(dir, "session.yaml"),
		configFile:  cfg,
	}
}

func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{
		"--config", e.configFile,
		"--base-url", e.baseURL,
		"--session-path", e.sessionPath,
	}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSendPrintsConversationJSON(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "send", "-o", "json", "do", "cats", "purr?")
	require.NoError(t, err)

	var ts []Transcript
	require.NoError(t, json.Unmarshal([]byte(out), &ts))
	require.Len(t, ts, 1)
	require.True(t, strings.HasPrefix(ts[0].ConversationID, "thread-"))
	require.Len(t, ts[0].Messages, 2)
	require.Equal(t, "do cats purr?", ts[0].Messages[0].Content)
	require.Equal(t, chat.RoleAssistant, ts[0].Messages[1].Role)
	require.Contains(t, ts[0].Messages[1].Content, "Meow")
	require.NotEmpty(t, ts[0].Messages[1].ToolCalls)

	// the id is persisted and reused by the next command
	shown, err := env.run(t, "session", "show")
	require.NoError(t, err)
	require.Equal(t, ts[0].ConversationID, strings.TrimSpace(shown))
}

func TestHistoryTextWithStats(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "send", "hello")
	require.NoError(t, err)

	out, err := env.run(t, "history", "--stats")
	require.NoError(t, err)
	require.Contains(t, out, "Conversation ID: thread-")
	require.Contains(t, out, "user:\n  hello")
	require.Contains(t, out, "Sources:")
	require.Contains(t, out, "2 messages (1 user, 1 assistant), 2 sources")
	require.Contains(t, out, "(tokenizer)")
}

func TestHistoryMultipleIDsYAML(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "--conversation-id", "thread-1-a", "send", "first")
	require.NoError(t, err)

	out, err := env.run(t, "history", "-o", "yaml", "thread-1-a", "thread-2-empty")
	require.NoError(t, err)

	var ts []Transcript
	require.NoError(t, yaml.Unmarshal([]byte(out), &ts))
	require.Len(t, ts, 2)
	require.Equal(t, "thread-1-a", ts[0].ConversationID)
	require.Len(t, ts[0].Messages, 2)
	require.Equal(t, "thread-2-empty", ts[1].ConversationID)
	require.Empty(t, ts[1].Messages)
}

func TestSendBlankMessage(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "send", "   ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "blank")
}

func TestSendToUnreachableService(t *testing.T) {
	env := newCLIEnv(t)
	env.baseURL = "http://127.0.0.1:1"
	_, err := env.run(t, "send", "hello")
	require.Error(t, err)
	require.Equal(t, "Error sending message. Please try again.", err.Error())
}

func TestSessionResetWithYes(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "session", "show")
	require.NoError(t, err)
	require.Contains(t, out, "No conversation id stored yet.")

	_, err = env.run(t, "send", "hello")
	require.NoError(t, err)

	out, err = env.run(t, "session", "reset", "--yes")
	require.NoError(t, err)
	require.Contains(t, out, "Forgot thread-")

	out, err = env.run(t, "session", "show")
	require.NoError(t, err)
	require.Contains(t, out, "No conversation id stored yet.")
}

func TestConfirmReset(t *testing.T) {
	var w bytes.Buffer
	ok, err := confirmReset(&w, strings.NewReader("y\n"), "thread-1-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, w.String(), "Forget conversation thread-1-a?")

	ok, err = confirmReset(&w, strings.NewReader("N\n"), "thread-1-a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvalidOutputFormat(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "history", "-o", "xml")
	require.Error(t, err)
}

func TestInvalidBaseURL(t *testing.T) {
	env := newCLIEnv(t)
	env.baseURL = "localhost:8080"
	_, err := env.run(t, "history")
	require.Error(t, err)
}

func TestParseZerologLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, parseZerologLevel("DEBUG"))
	require.Equal(t, zerolog.InfoLevel, parseZerologLevel("info"))
	require.Equal(t, zerolog.WarnLevel, parseZerologLevel(""))
	require.Equal(t, zerolog.WarnLevel, parseZerologLevel("chatty"))
	require.Equal(t, zerolog.Disabled, parseZerologLevel("off"))
}

func TestRequestTimeoutDefaultsToNone(t *testing.T) {
	f := NewRootCommand().PersistentFlags().Lookup("timeout")
	require.NotNil(t, f)
	require.Equal(t, "0s", f.DefValue)
}

func TestHistoryWithoutStoredIDDoesNotCreateOne(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "history")
	require.NoError(t, err)
	require.Contains(t, out, "No conversation id stored yet.")

	shown, err := env.run(t, "session", "show")
	require.NoError(t, err)
	require.Contains(t, shown, "No conversation id stored yet.")
	_, err = os.Stat(env.sessionPath)
	require.True(t, os.IsNotExist(err))
}
