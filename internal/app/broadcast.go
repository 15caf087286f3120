package app

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/sourcegraph/conc"
)

// PublishResult reports per-peer delivery of one payload.
type PublishResult struct {
	SentTo  int
	Dropped []domain.PeerID
}

// broadcast sends payload to every peer concurrently and waits for all
// sends, so consecutive broadcasts keep their order per peer. Failures are
// logged, never returned.
func (m *Manager) broadcast(ctx context.Context, peers []domain.PeerID, payload []byte) PublishResult {
	var (
		mu  sync.Mutex
		res PublishResult
		wg  conc.WaitGroup
	)
	for _, id := range peers {
		wg.Go(func() {
			err := m.transport.Send(ctx, id, payload)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				m.logger.Warn().Err(err).Str("peer", string(id)).Int("len", len(payload)).Msg("send failed")
				res.Dropped = append(res.Dropped, id)
				return
			}
			res.SentTo++
		})
	}
	wg.Wait()
	slices.Sort(res.Dropped)
	m.logger.Trace().Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
