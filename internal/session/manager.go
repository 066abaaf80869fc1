package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KanuToCL/SonoTag-sub000/internal/classify"
	"github.com/KanuToCL/SonoTag-sub000/internal/config"
	"github.com/KanuToCL/SonoTag-sub000/internal/metrics"
)

// cleanupInterval is how often idle sessions are reaped
const cleanupInterval = 30 * time.Second

// Manager owns all live sessions, keyed by generated session ID
type Manager struct {
	cfg        *config.Config
	classifier classify.Classifier
	metrics    *metrics.Metrics
	logger     *slog.Logger

	sessions map[string]*Session

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
}

// ManagerStats represents manager statistics
type ManagerStats struct {
	ActiveSessions int            `json:"active_sessions"`
	TotalSessions  int            `json:"total_sessions"`
	Sessions       []SessionStats `json:"sessions"`
}

// NewManager creates a new session manager
func NewManager(cfg *config.Config, classifier classify.Classifier, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:        cfg,
		classifier: classifier,
		metrics:    m,
		logger:     logger,
		sessions:   make(map[string]*Session),
		stopChan:   make(chan struct{}),
	}
}

// Start launches the idle-session cleanup loop
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.cleanupLoop()
}

// CreateSession builds and starts a session for one capture source
func (m *Manager) CreateSession(sourceRate int, prompts []string, sink EventSink) (*Session, error) {
	id := uuid.New().String()

	session, err := NewSession(id, sourceRate, prompts, m.cfg, m.classifier, sink, m.metrics, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.mu.Lock()
	m.sessions[id] = session
	count := len(m.sessions)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionStarted()
	}

	session.Start()
	m.logger.Info("Session created",
		slog.String("session_id", id),
		slog.Int("active_sessions", count))

	return session, nil
}

// GetSession returns the session with the given ID, or false
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	return session, ok
}

// RemoveSession stops and forgets one session
func (m *Manager) RemoveSession(id string) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	session.Stop()
	if m.metrics != nil {
		m.metrics.SessionEnded()
	}
	m.logger.Info("Session removed", slog.String("session_id", id))
}

// cleanupLoop reaps sessions that stopped or went idle past the timeout
func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *Manager) cleanup() {
	timeout := m.cfg.Server.GetSessionTimeoutDuration()

	m.mu.RLock()
	var stale []string
	for id, session := range m.sessions {
		if !session.Active() || time.Since(session.LastActive()) > timeout {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.logger.Info("Reaping idle session", slog.String("session_id", id))
		m.RemoveSession(id)
	}
}

// Stop ends the cleanup loop and all sessions
func (m *Manager) Stop() {
	close(m.stopChan)
	m.wg.Wait()

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		session.Stop()
		if m.metrics != nil {
			m.metrics.SessionEnded()
		}
	}

	m.logger.Info("Session manager stopped", slog.Int("sessions_closed", len(sessions)))
}

// GetStats returns aggregate statistics across all sessions
func (m *Manager) GetStats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := ManagerStats{
		TotalSessions: len(m.sessions),
		Sessions:      make([]SessionStats, 0, len(m.sessions)),
	}
	for _, session := range m.sessions {
		s := session.GetStats()
		stats.Sessions = append(stats.Sessions, s)
		if s.State == "active" {
			stats.ActiveSessions++
		}
	}
	return stats
}
