package store

import (
	"context"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/sentinel/internal/event"
)

// Memory is an in-process store used when no database is configured.
type Memory struct {
	mu        sync.RWMutex
	admins    []string
	incidents []event.Incident
}

// NewMemory creates a store whose admin recipients are fixed to admins.
func NewMemory(admins []string) *Memory {
	return &Memory{admins: append([]string(nil), admins...)}
}

func (m *Memory) InsertIncident(ctx context.Context, in event.Incident) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := prepare(in)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.incidents = append(m.incidents, in)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListAdminRecipients(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.admins...), nil
}

func (m *Memory) RecentIncidents(ctx context.Context, limit int) ([]event.Incident, error) {
	m.mu.RLock()
	out := append([]event.Incident(nil), m.incidents...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}
