package classifier

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Status struct {
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// HealthMonitor remembers the outcome of the latest classifier probe.
type HealthMonitor struct {
	pinger  Pinger
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.RWMutex
	status Status
}

func NewHealthMonitor(pinger Pinger, timeout time.Duration, log zerolog.Logger) *HealthMonitor {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HealthMonitor{
		pinger:  pinger,
		timeout: timeout,
		log:     log,
	}
}

func (m *HealthMonitor) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.pinger.Ping(ctx)
	next := Status{Healthy: err == nil, CheckedAt: time.Now().UTC()}
	if err != nil {
		next.Error = err.Error()
	}

	m.mu.Lock()
	previous := m.status
	m.status = next
	m.mu.Unlock()

	switch {
	case err != nil && (previous.Healthy || previous.CheckedAt.IsZero()):
		m.log.Warn().Err(err).Msg("classifier is unavailable, falling back to the default category")
	case err == nil && !previous.Healthy:
		m.log.Info().Msg("classifier is available")
	}
	return next
}

func (m *HealthMonitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
