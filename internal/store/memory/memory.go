// Package memory provides an in-memory store.Repository, used by tests and
// by any harness that doesn't need durability.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
)

// Store is a goroutine-safe in-memory implementation of store.Repository.
type Store struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*store.CampaignSchedule
	metrics   map[uuid.UUID][]*store.CampaignMetrics // by schedule id, append order
	logs      map[uuid.UUID][]*store.NotificationLog // by schedule id, append order
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		schedules: make(map[uuid.UUID]*store.CampaignSchedule),
		metrics:   make(map[uuid.UUID][]*store.CampaignMetrics),
		logs:      make(map[uuid.UUID][]*store.NotificationLog),
	}
}

func (s *Store) CreateSchedules(_ context.Context, schedules []*store.CampaignSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, candidate := range schedules {
		for _, existing := range s.schedules {
			if existing.CampaignName == candidate.CampaignName && existing.RoundNumber == candidate.RoundNumber {
				return store.ErrDuplicateRound
			}
		}
	}

	now := time.Now().UTC()
	for _, sched := range schedules {
		if sched.ID == uuid.Nil {
			sched.ID = uuid.New()
		}
		sched.CreatedAt = now
		sched.UpdatedAt = now
		cp := *sched
		s.schedules[cp.ID] = &cp
	}
	return nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*store.CampaignSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sched
	return &cp, nil
}

func (s *Store) GetByCampaignName(_ context.Context, campaignName string) ([]*store.CampaignSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*store.CampaignSchedule
	for _, sched := range s.schedules {
		if sched.CampaignName == campaignName {
			cp := *sched
			out = append(out, &cp)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].RoundNumber < out[i].RoundNumber {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *Store) UpdateStatus(_ context.Context, id uuid.UUID, status store.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return store.ErrNotFound
	}
	sched.Status = status
	sched.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SetExternalCampaignID(_ context.Context, id uuid.UUID, externalCampaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return store.ErrNotFound
	}
	sched.ExternalCampaignID = externalCampaignID
	sched.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) UpdateNotificationEntry(_ context.Context, id uuid.UUID, stage clock.Stage, entry store.NotificationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return store.ErrNotFound
	}
	target := sched.Notifications.Entry(stage)
	if target == nil {
		return store.ErrNotFound
	}
	*target = entry
	sched.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) AppendMetrics(_ context.Context, m *store.CampaignMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.metrics[m.ScheduleID]) > 0 {
		return store.ErrMetricsAlreadyExists
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	cp := *m
	s.metrics[m.ScheduleID] = append(s.metrics[m.ScheduleID], &cp)
	return nil
}

func (s *Store) GetLatestMetrics(_ context.Context, campaignName string, roundNumber int) (*store.CampaignMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target *store.CampaignSchedule
	for _, sched := range s.schedules {
		if sched.CampaignName == campaignName && sched.RoundNumber == roundNumber {
			target = sched
			break
		}
	}
	if target == nil {
		return nil, store.ErrNotFound
	}

	rows := s.metrics[target.ID]
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	latest := rows[len(rows)-1]
	cp := *latest
	return &cp, nil
}

func (s *Store) AppendLog(_ context.Context, l *store.NotificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.logs[l.ScheduleID] {
		if existing.Stage == l.Stage && existing.Attempt == l.Attempt {
			return store.ErrDuplicateLogAttempt
		}
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	cp := *l
	s.logs[l.ScheduleID] = append(s.logs[l.ScheduleID], &cp)
	return nil
}

func (s *Store) QueryFailedLogsNeedingRetry(_ context.Context) ([]*store.NotificationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*store.NotificationLog
	for _, rows := range s.logs {
		if len(rows) == 0 {
			continue
		}
		last := rows[len(rows)-1]
		if last.Status == store.LogFailure && last.Attempt < 3 {
			cp := *last
			out = append(out, &cp)
		}
	}
	return out, nil
}

// LogsFor returns a copy of every log row recorded for a schedule, in
// append order. Test-only helper, not part of store.Repository.
func (s *Store) LogsFor(id uuid.UUID) []*store.NotificationLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*store.NotificationLog, len(s.logs[id]))
	for i, l := range s.logs[id] {
		cp := *l
		out[i] = &cp
	}
	return out
}
