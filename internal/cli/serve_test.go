package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadstore/internal/command"
	"github.com/roach88/cadstore/internal/testutil"
)

func TestServe_AcceptsSessionsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	ready := make(chan string, 1)
	rootOpts := &RootOptions{Format: "text", LogFormat: "text"}
	cmd := NewServeCommand(rootOpts)
	cmd.SetContext(ctx)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	done := make(chan error, 1)
	go func() {
		done <- runServe(cmd, rootOpts, &ServeOptions{Listen: "127.0.0.1:0", Ready: ready})
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not start")
	}

	user := testutil.UserID(1)
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?user="+user.String(), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(map[string]any{
		"id":     "1",
		"method": "init_file",
		"args":   []string{"mem://served"},
	}))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var resp command.Response
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, "1", resp.ID)
	assert.Nil(t, resp.Error)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(ShutdownTimeout + 5*time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_BadConfig(t *testing.T) {
	rootOpts := &RootOptions{Format: "text", Config: filepath.Join(t.TempDir(), "missing.yaml")}
	cmd := NewServeCommand(rootOpts)
	cmd.SetContext(t.Context())

	err := runServe(cmd, rootOpts, &ServeOptions{})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServe_ListenFailure(t *testing.T) {
	rootOpts := &RootOptions{Format: "text", LogFormat: "text"}
	cmd := NewServeCommand(rootOpts)
	cmd.SetContext(t.Context())
	cmd.SetErr(&bytes.Buffer{})

	err := runServe(cmd, rootOpts, &ServeOptions{Listen: "256.0.0.1:bad"})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
