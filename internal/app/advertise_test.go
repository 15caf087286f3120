package app

import (
	"context"
	"strings"
	"testing"

	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAdvertising(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.m.StartAdvertising(ctx, "alice"))
	assert.True(t, h.m.IsAdvertising())
	assert.Equal(t, "alice", h.m.Nickname())
	assert.Equal(t, domain.StatusReady, h.sink.lastStatus().Kind)

	require.NoError(t, h.m.StartAdvertising(ctx, "alice"))
	assert.Equal(t, 1, h.tr.advertises, "second start is idempotent")
}

func TestStartAdvertisingRetriesOnce(t *testing.T) {
	h := newHarness(t)
	h.tr.advertiseErrs = []error{errBoom}

	require.NoError(t, h.m.StartAdvertising(context.Background(), "alice"))
	assert.Equal(t, 2, h.tr.advertises)
	assert.True(t, h.m.IsAdvertising())
}

func TestStartAdvertisingGivesUp(t *testing.T) {
	h := newHarness(t)
	h.tr.advertiseErrs = []error{errBoom, errBoom, errBoom}

	err := h.m.StartAdvertising(context.Background(), "alice")
	require.ErrorIs(t, err, domain.ErrTransportUnavailable)
	assert.Equal(t, 2, h.tr.advertises)
	assert.False(t, h.m.IsAdvertising())
	assert.Equal(t, domain.StatusDegraded, h.sink.lastStatus().Kind)
}

func TestStartAdvertisingValidatesNickname(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.m.StartAdvertising(ctx, ""), domain.ErrNicknameEmpty)
	assert.ErrorIs(t, h.m.StartAdvertising(ctx, strings.Repeat("x", domain.MaxNicknameLen+1)), domain.ErrNicknameTooLong)
	assert.Zero(t, h.tr.advertises)

	require.NoError(t, h.m.StartAdvertising(ctx, strings.Repeat("x", domain.MaxNicknameLen)))
}

func TestStartDiscovery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.tr.discoveryErrs = []error{errBoom}

	require.NoError(t, h.m.StartDiscovery(ctx))
	require.NoError(t, h.m.StartDiscovery(ctx))
	assert.Equal(t, 2, h.tr.discoveries)
	assert.True(t, h.m.IsDiscovering())
}

func TestStartDiscoveryGivesUp(t *testing.T) {
	h := newHarness(t)
	h.tr.discoveryErrs = []error{errBoom, errBoom}

	err := h.m.StartDiscovery(context.Background())
	require.ErrorIs(t, err, domain.ErrTransportUnavailable)
	assert.Equal(t, domain.StatusDegraded, h.sink.lastStatus().Kind)
}

func TestStopAdvertisingAndDiscovery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.m.StopAdvertising()
	h.m.StopDiscovery()
	assert.Zero(t, h.tr.stopAdv)

	require.NoError(t, h.m.StartAdvertising(ctx, "alice"))
	require.NoError(t, h.m.StartDiscovery(ctx))
	h.m.StopAdvertising()
	h.m.StopDiscovery()
	assert.Equal(t, 1, h.tr.stopAdv)
	assert.Equal(t, 1, h.tr.stopDisc)
	assert.False(t, h.m.IsAdvertising())
	assert.False(t, h.m.IsDiscovering())

	// Can start again after stopping.
	require.NoError(t, h.m.StartAdvertising(ctx, "alice"))
	assert.Equal(t, 2, h.tr.advertises)
}

func TestRetryCancelledContext(t *testing.T) {
	h := newHarness(t)
	h.tr.advertiseErrs = []error{errBoom, errBoom}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.m.StartAdvertising(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrTransportUnavailable)
}
