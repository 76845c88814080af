package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funkyflowstudios/synapse-hub-sub000/config"
	"github.com/funkyflowstudios/synapse-hub-sub000/connector"
	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
	"github.com/funkyflowstudios/synapse-hub-sub000/event"
	"github.com/funkyflowstudios/synapse-hub-sub000/transport"
	"github.com/funkyflowstudios/synapse-hub-sub000/wire"
)

// obedientDevice answers auth, pings, and commands on the far pipe end.
func obedientDevice(tr transport.Transport) {
	go func() {
		for {
			env, err := tr.Receive(context.Background())
			if err != nil {
				return
			}
			var reply *wire.Envelope
			switch env.Kind {
			case wire.KindAuth:
				req, _ := wire.DecodePayload[wire.AuthRequest](env)
				reply, _ = wire.NewResponse(env, wire.KindAuthOK, wire.AuthOK{
					ConnectorID:     req.ConnectorID,
					ProtocolVersion: req.ProtocolVersion,
				})
			case wire.KindPing:
				ping, _ := wire.DecodePayload[wire.Ping](env)
				reply, _ = wire.NewResponse(env, wire.KindPong, wire.Pong{Seq: ping.Seq})
			}
			if reply != nil {
				if err := tr.Send(context.Background(), reply); err != nil {
					return
				}
			}
		}
	}()
}

func newTestRegistry(t *testing.T) (*Registry, *event.Bus) {
	t.Helper()
	cfg := config.Default()
	cfg.Reconnect.MinDelay = config.Duration(5 * time.Millisecond)
	cfg.Reconnect.MaxAttempts = 1

	bus := event.NewBus(64)
	t.Cleanup(bus.Close)

	dialer := transport.DialerFunc(func(_ context.Context, _ string) (transport.Transport, error) {
		hub, dev := transport.Pipe(64)
		obedientDevice(dev)
		return hub, nil
	})

	factory := func(id, endpoint string, creds wire.Credentials) *connector.Connector {
		return connector.New(id, endpoint, creds, cfg, dialer, bus)
	}
	reg := New(factory, nil)
	t.Cleanup(reg.Close)
	return reg, bus
}

func TestRegisterAndLookup(t *testing.T) {
	reg, _ := newTestRegistry(t)

	c, err := reg.Register("plc-1", "pipe://plc-1", wire.Credentials{})
	require.NoError(t, err)
	require.NotNil(t, c)

	got, ok := reg.Lookup("plc-1")
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, 1, reg.Count())

	_, ok = reg.Lookup("plc-2")
	assert.False(t, ok)
}

func TestRegisterDuplicateFails(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Register("plc-1", "pipe://plc-1", wire.Credentials{})
	require.NoError(t, err)

	_, err = reg.Register("plc-1", "pipe://plc-1", wire.Credentials{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConnectorExists)
}

func TestGetOrRegisterReturnsExisting(t *testing.T) {
	reg, _ := newTestRegistry(t)

	a, err := reg.GetOrRegister("plc-1", "pipe://plc-1", wire.Credentials{})
	require.NoError(t, err)
	b, err := reg.GetOrRegister("plc-1", "pipe://plc-1", wire.Credentials{})
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, reg.Count())
}

func TestDeregisterFailsPendingAndRemoves(t *testing.T) {
	reg, _ := newTestRegistry(t)

	c, err := reg.Register("plc-1", "pipe://plc-1", wire.Credentials{})
	require.NoError(t, err)
	_, err = c.Connect(context.Background())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.SendCommand(context.Background(),
			wire.CommandRequest{Name: "slow"}, 30*time.Second)
		errCh <- err
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, reg.Deregister("plc-1"))

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrConnectorRemoved)
	case <-time.After(time.Second):
		t.Fatal("pending command not resolved on deregistration")
	}

	_, ok := reg.Lookup("plc-1")
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Count())
}

func TestDeregisterUnknownFails(t *testing.T) {
	reg, _ := newTestRegistry(t)
	err := reg.Deregister("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownConnector)
}

func TestSnapshotReportsStates(t *testing.T) {
	reg, _ := newTestRegistry(t)

	a, err := reg.Register("plc-1", "pipe://plc-1", wire.Credentials{})
	require.NoError(t, err)
	_, err = reg.Register("plc-2", "pipe://plc-2", wire.Credentials{})
	require.NoError(t, err)

	_, err = a.Connect(context.Background())
	require.NoError(t, err)

	snap := reg.Snapshot()
	assert.Equal(t, connector.StateConnected, snap["plc-1"])
	assert.Equal(t, connector.StateDisconnected, snap["plc-2"])
}

func TestCloseRejectsNewRegistrations(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.Register("plc-1", "pipe://plc-1", wire.Credentials{})
	require.NoError(t, err)

	reg.Close()
	assert.Equal(t, 0, reg.Count())

	_, err = reg.Register("plc-2", "pipe://plc-2", wire.Credentials{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
}
