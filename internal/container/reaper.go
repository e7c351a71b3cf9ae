package container

import (
	"context"
	"log"
	"time"
)

// DefaultIdleTimeout is how long a persistent session's container may sit
// unused before the reaper destroys it.
const DefaultIdleTimeout = 30 * time.Minute

// CloseIdle destroys every persistent environment idle longer than
// maxIdle and returns how many were closed. The session's workspace and
// sensitivity state are untouched; the next command simply gets a fresh
// environment.
func (m *Manager) CloseIdle(ctx context.Context, maxIdle time.Duration) int {
	if maxIdle <= 0 {
		maxIdle = DefaultIdleTimeout
	}
	cutoff := time.Now().UTC().Add(-maxIdle)

	m.mu.Lock()
	var stale []string
	for key, sess := range m.sessions {
		if sess.LastActiveAt.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	m.mu.Unlock()

	closed := 0
	for _, key := range stale {
		lock := m.sessionLock(key)
		lock.Lock()

		m.mu.Lock()
		sess := m.sessions[key]
		// Re-check under the session lock: a command may have landed
		// between the scan and here.
		if sess == nil || !sess.LastActiveAt.Before(cutoff) {
			m.mu.Unlock()
			lock.Unlock()
			continue
		}
		delete(m.sessions, key)
		m.mu.Unlock()

		if err := m.destroyEnvironment(ctx, sess.ContainerID); err != nil {
			log.Printf("container: reap %s: %v", key, err)
		} else {
			closed++
		}
		lock.Unlock()
	}
	return closed
}

// StartReaper closes idle environments on a fixed interval until the
// context is canceled.
func (m *Manager) StartReaper(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.CloseIdle(ctx, maxIdle); n > 0 {
					log.Printf("container: reaped %d idle environments", n)
				}
			}
		}
	}()
}
