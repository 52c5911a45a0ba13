// Package alert delivers ranking notifications to chat and webhook
// destinations.
package alert

import (
	"context"
	"errors"
	"fmt"
)

// PaperAlert is one ranked paper in a notification.
type PaperAlert struct {
	Rank         int     `json:"rank"`
	PaperID      string  `json:"paper_id"`
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	Score        float64 `json:"score"`
	Citations    int     `json:"citations"`
	RepoMentions int     `json:"repo_mentions"`
}

// Notification is the data sent to alert destinations.
type Notification struct {
	Date   string       `json:"date"`
	Title  string       `json:"title"`
	Body   string       `json:"body"`
	Papers []PaperAlert `json:"papers"`
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// topPapers caps the papers rendered in chat messages.
func topPapers(papers []PaperAlert, limit int) []PaperAlert {
	if len(papers) < limit {
		return papers
	}
	return papers[:limit]
}
