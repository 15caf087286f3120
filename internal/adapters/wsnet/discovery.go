package wsnet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
)

// endpointInfo is served on /nearby/<service>/info while advertising.
type endpointInfo struct {
	ID      domain.PeerID `json:"id"`
	Name    string        `json:"name"`
	Service string        `json:"service"`
}

func (t *Transport) queryLoop(ctx context.Context, service string, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.cfg.QueryInterval)
	defer ticker.Stop()

	for {
		t.queryAll(ctx, service)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *Transport) queryAll(ctx context.Context, service string) {
	t.mu.Lock()
	seeds := append([]string(nil), t.seeds...)
	t.mu.Unlock()

	for _, addr := range seeds {
		if ctx.Err() != nil {
			return
		}
		info, err := t.query(ctx, addr, service)
		t.mu.Lock()
		prev, seen := t.bySeed[addr]
		switch {
		case err != nil:
			if seen {
				delete(t.bySeed, addr)
				delete(t.byID, prev.id)
				t.mu.Unlock()
				t.logger.Debug().Err(err).Str("addr", addr).Msg("endpoint lost")
				t.emit(core.LostEvent(prev.id))
				continue
			}
			t.mu.Unlock()
		case info.ID == t.cfg.ID:
			t.mu.Unlock()
		case seen && prev.id == info.ID:
			t.mu.Unlock()
		default:
			d := discovered{id: info.ID, name: info.Name, addr: addr}
			t.bySeed[addr] = d
			t.byID[info.ID] = d
			t.mu.Unlock()
			t.logger.Info().Str("addr", addr).Str("peer", string(info.ID)).Str("name", info.Name).Msg("endpoint found")
			t.emit(core.FoundEvent(info.ID, info.Name))
		}
	}
}

func (t *Transport) query(ctx context.Context, addr, service string) (endpointInfo, error) {
	u := url.URL{Scheme: "http", Host: addr, Path: "/nearby/" + service + "/info"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return endpointInfo{}, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return endpointInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return endpointInfo{}, fmt.Errorf("query %s: status %d", addr, resp.StatusCode)
	}
	var info endpointInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return endpointInfo{}, fmt.Errorf("query %s: %w", addr, err)
	}
	if info.ID == "" || info.Service != service {
		return endpointInfo{}, fmt.Errorf("query %s: unexpected endpoint info", addr)
	}
	return info, nil
}

// forgetLocked drops peer from the discovery tables.
func (t *Transport) forgetLocked(peer domain.PeerID) {
	delete(t.byID, peer)
	for addr, d := range t.bySeed {
		if d.id == peer {
			delete(t.bySeed, addr)
		}
	}
}
