package session

import (
	"context"
	"time"

	"github.com/loupe-re/loupe/internal/client"
	"github.com/loupe-re/loupe/internal/errors"
)

// RunHealthCheck pings the engine every interval while the session is
// connected and recovers when a ping fails or the supervised engine process
// exits. It blocks until ctx is done or the Manager is closed.
func (m *Manager) RunHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Debug().Dur("interval", interval).Msg("Health check started")

	for {
		// The exit notice belongs to the engine behind api. If a call has
		// already recovered onto a new engine by the time it fires, api is
		// stale and recovery does nothing.
		var (
			exited <-chan struct{}
			api    client.API
		)
		if n, ok := m.connector.(ExitNotifier); ok {
			m.stateMu.RLock()
			if m.state == StateConnected {
				api = m.api
				exited = n.Exited()
			}
			m.stateMu.RUnlock()
		}

		select {
		case <-ctx.Done():
			return
		case <-m.lifetime.Done():
			return
		case <-exited:
			m.logger.Warn().Msg("Engine process exited")
			m.handleHealthFailure(ctx, api, errors.New(errors.KindFatalEngine, "health", "engine process exited"))
		case <-ticker.C:
			m.checkHealth(ctx)
		}
	}
}

func (m *Manager) checkHealth(ctx context.Context) {
	m.stateMu.RLock()
	state, api := m.state, m.api
	m.stateMu.RUnlock()

	if state != StateConnected || api == nil {
		return
	}

	alive, err := api.Ping(ctx)
	if err == nil && alive {
		return
	}
	if err == nil {
		err = errors.New(errors.KindTransport, "health", "engine reported not alive")
	}
	m.handleHealthFailure(ctx, api, err)
}

// handleHealthFailure recovers from the loss of failed.
func (m *Manager) handleHealthFailure(ctx context.Context, failed client.API, cause error) {
	if failed == nil {
		return
	}

	m.logger.Warn().Err(cause).Msg("Engine health check failed, recovering session")
	if err := m.recover(ctx, failed, cause); err != nil {
		m.logger.Error().Err(err).Str("state", m.State().String()).Msg("Session recovery failed")
	}
}
