package engine

import (
	"sync"

	"github.com/vigil-sys/vigil/internal/models"
)

// Publisher holds the latest completed assessment for readers (API, CLI).
// Assessments are immutable once published, so readers get the value as-is.
type Publisher struct {
	mu     sync.RWMutex
	latest *models.ProactiveAssessment
}

// NewPublisher returns an empty Publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish replaces the current assessment.
func (p *Publisher) Publish(a models.ProactiveAssessment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = &a
}

// Latest returns the most recent assessment, or false if none has been
// published yet.
func (p *Publisher) Latest() (models.ProactiveAssessment, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return models.ProactiveAssessment{}, false
	}
	return *p.latest, true
}
