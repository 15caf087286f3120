package app

import (
	"context"
	"fmt"

	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/sethvargo/go-retry"
)

// StartAdvertising makes this device visible under nickname. A running
// advertisement is left as is. A failed attempt is retried once after the
// configured backoff.
func (m *Manager) StartAdvertising(ctx context.Context, nickname string) error {
	if err := domain.ValidateNickname(nickname); err != nil {
		return err
	}
	m.advMu.Lock()
	defer m.advMu.Unlock()
	if m.advertising {
		return nil
	}

	opts := core.AdvertiseOptions{ServiceID: m.serviceID, Strategy: core.StrategyCluster}
	err := m.withRetry(ctx, "advertising", func(ctx context.Context) error {
		return m.transport.StartAdvertising(ctx, nickname, opts)
	})
	if err != nil {
		m.sink.OnStatus(domain.Status{Kind: domain.StatusDegraded, Detail: "advertising failed: " + err.Error()})
		return fmt.Errorf("%w: start advertising: %v", domain.ErrTransportUnavailable, err)
	}

	m.nameMu.Lock()
	m.localName = nickname
	m.nameMu.Unlock()
	m.advertising = true
	m.logger.Info().Str("nickname", nickname).Str("service", m.serviceID).Msg("advertising")
	m.sink.OnStatus(domain.Status{Kind: domain.StatusReady, Detail: "advertising as " + nickname})
	return nil
}

// StartDiscovery looks for other devices of the same service.
func (m *Manager) StartDiscovery(ctx context.Context) error {
	m.discMu.Lock()
	defer m.discMu.Unlock()
	if m.discovering {
		return nil
	}

	opts := core.DiscoveryOptions{ServiceID: m.serviceID, Strategy: core.StrategyCluster}
	err := m.withRetry(ctx, "discovery", func(ctx context.Context) error {
		return m.transport.StartDiscovery(ctx, opts)
	})
	if err != nil {
		m.sink.OnStatus(domain.Status{Kind: domain.StatusDegraded, Detail: "discovery failed: " + err.Error()})
		return fmt.Errorf("%w: start discovery: %v", domain.ErrTransportUnavailable, err)
	}

	m.discovering = true
	m.logger.Info().Str("service", m.serviceID).Msg("discovering")
	m.sink.OnStatus(domain.Status{Kind: domain.StatusReady, Detail: "discovering"})
	return nil
}

func (m *Manager) StopAdvertising() {
	m.advMu.Lock()
	defer m.advMu.Unlock()
	if !m.advertising {
		return
	}
	m.transport.StopAdvertising()
	m.advertising = false
	m.logger.Info().Msg("advertising stopped")
}

func (m *Manager) StopDiscovery() {
	m.discMu.Lock()
	defer m.discMu.Unlock()
	if !m.discovering {
		return
	}
	m.transport.StopDiscovery()
	m.discovering = false
	m.logger.Info().Msg("discovery stopped")
}

func (m *Manager) IsAdvertising() bool {
	m.advMu.Lock()
	defer m.advMu.Unlock()
	return m.advertising
}

func (m *Manager) IsDiscovering() bool {
	m.discMu.Lock()
	defer m.discMu.Unlock()
	return m.discovering
}

// withRetry runs fn, and once more after the backoff if it failed.
func (m *Manager) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	attempt := 0
	b := retry.WithMaxRetries(1, retry.NewConstant(m.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := fn(ctx); err != nil {
			m.logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("transport call failed")
			return retry.RetryableError(err)
		}
		return nil
	})
}
