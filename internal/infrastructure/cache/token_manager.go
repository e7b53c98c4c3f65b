// Package cache manages the grants-change token that keys cached access
// decisions, so a grant or edge write anywhere invalidates stale entries
// across instances. It uses PostgreSQL LISTEN/NOTIFY for instant
// synchronization, with a periodic refresh as fallback.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/lib/pq"
)

const notifyChannel = "tessera_grants_changed"

// TokenManager tracks the current grants-change epoch.
type TokenManager struct {
	mu          sync.RWMutex
	current     string
	db          *sql.DB
	refreshTTL  time.Duration
	lastRefresh time.Time
	listener    *pq.Listener
	connStr     string
	stopCh      chan struct{}
	stopped     bool
}

// NewTokenManager creates a TokenManager. connStr is the PostgreSQL
// connection string used for LISTEN/NOTIFY; refreshTTL is the fallback
// interval for refreshing the token from the database.
func NewTokenManager(db *sql.DB, connStr string, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		db:         db,
		connStr:    connStr,
		refreshTTL: refreshTTL,
		stopCh:     make(chan struct{}),
	}
}

// Start fetches the initial token and begins listening for change
// notifications.
func (m *TokenManager) Start(ctx context.Context) error {
	token, err := m.fetchToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch initial grants token: %w", err)
	}

	m.mu.Lock()
	m.current = token
	m.lastRefresh = time.Now()
	m.mu.Unlock()

	if err := m.startListener(); err != nil {
		return fmt.Errorf("failed to start grants listener: %w", err)
	}
	return nil
}

// Stop stops the manager and closes the listener.
func (m *TokenManager) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.stopCh)
	m.mu.Unlock()

	if m.listener != nil {
		return m.listener.Close()
	}
	return nil
}

// CurrentToken returns the current grants-change token, refreshing from the
// database when the cached token is older than the refresh TTL.
func (m *TokenManager) CurrentToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	token := m.current
	stale := time.Since(m.lastRefresh) > m.refreshTTL
	m.mu.RUnlock()

	if !stale && token != "" {
		return token, nil
	}

	fresh, err := m.fetchToken(ctx)
	if err != nil {
		if token != "" {
			// Keep serving the stale token rather than failing the request.
			return token, nil
		}
		return "", err
	}

	m.mu.Lock()
	m.current = fresh
	m.lastRefresh = time.Now()
	m.mu.Unlock()
	return fresh, nil
}

func (m *TokenManager) fetchToken(ctx context.Context) (string, error) {
	var epoch int64
	err := m.db.QueryRowContext(ctx, `SELECT epoch FROM change_epoch WHERE id = 1`).Scan(&epoch)
	if err != nil {
		return "", fmt.Errorf("failed to read change epoch: %w", err)
	}
	return strconv.FormatInt(epoch, 10), nil
}

func (m *TokenManager) startListener() error {
	m.listener = pq.NewListener(m.connStr, 10*time.Second, time.Minute, nil)
	if err := m.listener.Listen(notifyChannel); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-m.stopCh:
				return
			case n := <-m.listener.Notify:
				if n == nil {
					continue
				}
				m.mu.Lock()
				m.current = n.Extra
				m.lastRefresh = time.Now()
				m.mu.Unlock()
			case <-time.After(m.refreshTTL):
				// Fallback: ping keeps the connection alive; the next
				// CurrentToken call refreshes from the database.
				go m.listener.Ping()
			}
		}
	}()
	return nil
}
