package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupe-re/loupe/internal/testutil"
)

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, serveOptions{listen: "127.0.0.1:0", blockLimit: 10}, testutil.NewTestLoggerWithOutput(t))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_Errors(t *testing.T) {
	tests := []struct {
		name    string
		opts    serveOptions
		wantErr string
	}{
		{
			name:    "zero block limit",
			opts:    serveOptions{listen: "127.0.0.1:0"},
			wantErr: "--block-limit must be positive",
		},
		{
			name:    "bad listen address",
			opts:    serveOptions{listen: "not-an-address", blockLimit: 10},
			wantErr: "failed to listen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := serve(context.Background(), tt.opts, zerolog.Nop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRootCmd(t *testing.T) {
	root := NewRootCmd()

	serveCmd, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	for _, name := range []string{"listen", "block-limit", "spec-dir", "log-level"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "127.0.0.1:50051", serveCmd.Flags().Lookup("listen").DefValue)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "loupe-engine dev")
}
