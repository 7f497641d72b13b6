package call

import (
	"sync"

	"github.com/mrsingh-rishi/voice-bot/metrics"
)

// Registry maps session ids to the calls currently being served.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
	metrics  *metrics.Metrics
}

func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{sessions: make(map[string]*CallSession), metrics: m}
}

func (r *Registry) Add(cs *CallSession) {
	r.mu.Lock()
	r.sessions[cs.ID] = cs
	n := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetActiveSessions(n)
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetActiveSessions(n)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll ends every registered call, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*CallSession, 0, len(r.sessions))
	for _, cs := range r.sessions {
		sessions = append(sessions, cs)
	}
	r.mu.RUnlock()

	for _, cs := range sessions {
		cs.Close()
	}
}
