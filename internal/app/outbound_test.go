package app

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/dkeye/sltalkie/internal/audio"
	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/dkeye/sltalkie/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingFrameSequence(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "p1")
	ctx := context.Background()

	require.NoError(t, h.m.StartLocalRecording(ctx, domain.Location{Latitude: 1.5, Longitude: -2.5}))
	assert.True(t, h.m.IsRecording())

	chunks := [][]byte{{1, 2}, {3, 4}, {5, 6}, {7, 8}}
	for _, c := range chunks {
		h.mic.chunks <- c
	}
	require.Eventually(t, func() bool { return h.tr.sendCount() == 1+len(chunks) }, time.Second, time.Millisecond)

	h.m.StopLocalRecording(ctx)
	assert.False(t, h.m.IsRecording())

	got := h.tr.sentTo("p1")
	require.Len(t, got, len(chunks)+2)

	start := protocol.Classify(got[0])
	require.Len(t, got[0], protocol.StartSize)
	require.Equal(t, protocol.KindStart, start.Kind)
	assert.Equal(t, math.Float64bits(1.5), math.Float64bits(start.Latitude))
	assert.Equal(t, math.Float64bits(-2.5), math.Float64bits(start.Longitude))

	for i, c := range chunks {
		assert.Equal(t, c, got[1+i])
	}
	assert.Equal(t, []byte("END"), got[len(got)-1])
}

func TestCaptureEndSendsEnd(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
	}{
		{"drained", io.EOF},
		{"device error", errBoom},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.connect(t, "p1")
			ctx := context.Background()

			require.NoError(t, h.m.StartLocalRecording(ctx, domain.Location{}))
			h.mic.chunks <- []byte{1, 2}
			require.Eventually(t, func() bool { return h.tr.sendCount() == 2 }, time.Second, time.Millisecond)

			h.mic.end <- tt.err
			require.Eventually(t, func() bool { return !h.m.IsRecording() }, time.Second, time.Millisecond)

			got := h.tr.sentTo("p1")
			require.Len(t, got, 3)
			assert.Equal(t, []byte{1, 2}, got[1])
			assert.Equal(t, protocol.KindEnd, protocol.Classify(got[2]).Kind)

			// A later stop is a no-op and a new recording can start.
			h.m.StopLocalRecording(ctx)
			assert.Len(t, h.tr.sentTo("p1"), 3)
			require.NoError(t, h.m.StartLocalRecording(ctx, domain.Location{}))
			h.m.StopLocalRecording(ctx)
			assert.Len(t, h.tr.sentTo("p1"), 5)
		})
	}
}

func TestRecordingFansOutToAllPeers(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "a")
	h.connect(t, "b")
	ctx := context.Background()

	require.NoError(t, h.m.StartLocalRecording(ctx, domain.Location{}))
	h.mic.chunks <- []byte{1, 2}
	require.Eventually(t, func() bool { return h.tr.sendCount() == 4 }, time.Second, time.Millisecond)
	h.m.StopLocalRecording(ctx)

	for _, id := range []domain.PeerID{"a", "b"} {
		got := h.tr.sentTo(id)
		require.Len(t, got, 3, "peer %s", id)
		assert.Equal(t, protocol.KindStart, protocol.Classify(got[0]).Kind)
		assert.Equal(t, []byte{1, 2}, got[1])
		assert.Equal(t, protocol.KindEnd, protocol.Classify(got[2]).Kind)
	}
}

func TestStartRecordingWithoutPeersIsNoop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.StartLocalRecording(context.Background(), domain.Location{}))

	assert.False(t, h.m.IsRecording())
	assert.Zero(t, h.mic.openCount())
	assert.Zero(t, h.tr.sendCount())
}

func TestStartRecordingTwice(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "p1")
	ctx := context.Background()

	require.NoError(t, h.m.StartLocalRecording(ctx, domain.Location{}))
	err := h.m.StartLocalRecording(ctx, domain.Location{})
	assert.ErrorIs(t, err, domain.ErrAlreadyRecording)
	assert.Equal(t, 1, h.mic.openCount())

	h.m.StopLocalRecording(ctx)
	assert.Len(t, h.tr.sentTo("p1"), 2)
}

func TestStopRecordingIdleIsNoop(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "p1")
	h.m.StopLocalRecording(context.Background())
	assert.Zero(t, h.tr.sendCount())
}

func TestStopRecordingAfterPeersLeft(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "p1")
	ctx := context.Background()

	require.NoError(t, h.m.StartLocalRecording(ctx, domain.Location{}))
	h.m.Handle(ctx, core.DisconnectedEvent("p1"))
	h.m.StopLocalRecording(ctx)

	got := h.tr.sentTo("p1")
	require.Len(t, got, 1)
	assert.Equal(t, protocol.KindStart, protocol.Classify(got[0]).Kind)
	assert.False(t, h.m.IsRecording())
}

func TestCaptureFailureRollsBack(t *testing.T) {
	tr := newFakeTransport()
	sink := &recordingSink{}
	broken := audio.NewPipeline(func() (core.CaptureDevice, error) {
		return nil, errors.New("mic busy")
	}, nil)
	m := NewManager(tr, broken, sink, WithDataDir(t.TempDir()))
	defer m.Stop(context.Background())

	ctx := context.Background()
	m.Handle(ctx, core.FoundEvent("p1", "x"))
	m.Handle(ctx, core.ResultEvent("p1", core.StatusOK))

	err := m.StartLocalRecording(ctx, domain.Location{Latitude: 3, Longitude: 4})
	require.ErrorIs(t, err, domain.ErrDeviceUnavailable)
	assert.False(t, m.IsRecording())

	got := tr.sentTo("p1")
	require.Len(t, got, 2)
	assert.Equal(t, protocol.KindStart, protocol.Classify(got[0]).Kind)
	assert.Equal(t, protocol.KindEnd, protocol.Classify(got[1]).Kind)
	assert.Equal(t, domain.StatusDegraded, sink.lastStatus().Kind)

	// The manager recovers once the session flag is cleared.
	assert.ErrorIs(t, m.StartLocalRecording(ctx, domain.Location{}), domain.ErrDeviceUnavailable)
}

func TestBroadcastPartialFailure(t *testing.T) {
	h := newHarness(t)
	h.tr.sendErr["b"] = errBoom

	res := h.m.broadcast(context.Background(), []domain.PeerID{"a", "b", "c"}, []byte("x"))
	assert.Equal(t, 2, res.SentTo)
	assert.Equal(t, []domain.PeerID{"b"}, res.Dropped)
	assert.Len(t, h.tr.sentTo("a"), 1)
	assert.Len(t, h.tr.sentTo("c"), 1)
}

func TestRecordingSurvivesFailingPeer(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "a")
	h.connect(t, "b")
	h.tr.sendErr["b"] = errBoom
	ctx := context.Background()

	require.NoError(t, h.m.StartLocalRecording(ctx, domain.Location{}))
	h.mic.chunks <- []byte{1}
	require.Eventually(t, func() bool { return h.tr.sendCount() == 2 }, time.Second, time.Millisecond)
	h.m.StopLocalRecording(ctx)

	assert.Len(t, h.tr.sentTo("a"), 3)
	assert.Empty(t, h.tr.sentTo("b"))
}
