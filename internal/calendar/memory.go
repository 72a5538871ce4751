package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"concierge-automation/internal/common/utils"
	"concierge-automation/internal/models"
)

// MemoryProvider keeps events in process memory. It backs single-instance
// deployments without an external calendar and all scheduler tests.
type MemoryProvider struct {
	mu     sync.RWMutex
	events map[string][]*models.CalendarEvent // keyed by user id
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{events: make(map[string][]*models.CalendarEvent)}
}

func (p *MemoryProvider) ListEvents(_ context.Context, userID string, start, end time.Time) ([]*models.CalendarEvent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var matched []*models.CalendarEvent
	for _, event := range p.events[userID] {
		if event.Status == models.EventStatusCancelled {
			continue
		}
		if event.Overlaps(start, end) {
			clone := *event
			matched = append(matched, &clone)
		}
	}
	return matched, nil
}

func (p *MemoryProvider) CreateEvent(_ context.Context, event *models.CalendarEvent) (*models.CalendarEvent, error) {
	clone := *event
	if clone.ID == "" {
		clone.ID = utils.NewID()
	}
	if clone.Status == "" {
		clone.Status = models.EventStatusConfirmed
	}
	clone.Source = "internal"
	clone.URL = fmt.Sprintf("/api/calendar/events/%s", clone.ID)
	now := time.Now()
	clone.Created = now
	clone.Updated = now

	p.mu.Lock()
	p.events[clone.UserID] = append(p.events[clone.UserID], &clone)
	p.mu.Unlock()

	result := clone
	return &result, nil
}
