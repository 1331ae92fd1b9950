//go:build unix

package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReachesListener(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.Acquire())
	defer m.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmds := Listen(ctx)

	for _, want := range []Command{CmdReset, CmdRecover, CmdReload} {
		require.NoError(t, m.Send(want))
		select {
		case got := <-cmds:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s command received", want)
		}
	}

	cancel()
	for range cmds {
	}
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, processAlive(1) || processAlive(2), "init should be visible")
	assert.False(t, processAlive(999999999))
}
