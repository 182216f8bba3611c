// Package memory provides an in-memory jobs.Repository for tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-lifecycle-engine/internal/jobs"
)

// Store is a goroutine-safe in-memory implementation of jobs.Repository.
type Store struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*jobs.Job
	workers map[string]*jobs.WorkerStatus
}

// New creates an empty in-memory job store.
func New() *Store {
	return &Store{
		jobs:    make(map[uuid.UUID]*jobs.Job),
		workers: make(map[string]*jobs.WorkerStatus),
	}
}

func (s *Store) Enqueue(_ context.Context, newJobs []*jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, j := range newJobs {
		if j.ID == uuid.Nil {
			j.ID = uuid.New()
		}
		if j.State == "" {
			j.State = jobs.StatePending
		}
		j.CreatedAt = now
		j.UpdatedAt = now
		cp := *j
		s.jobs[cp.ID] = &cp
	}
	return nil
}

func (s *Store) ClaimDue(_ context.Context, workerID string, limit int) ([]*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var due []*jobs.Job
	for _, j := range s.jobs {
		if (j.State == jobs.StatePending || j.State == jobs.StateDelayed) && !j.FireAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].FireAt.Before(due[k].FireAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*jobs.Job, 0, len(due))
	for _, j := range due {
		j.State = jobs.StateActive
		j.ClaimedBy = workerID
		claimedAt := now
		j.ClaimedAt = &claimedAt
		j.UpdatedAt = now
		cp := *j
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (s *Store) MarkCompleted(_ context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	j.State = jobs.StateCompleted
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) MarkRetry(_ context.Context, jobID uuid.UUID, errMessage string, nextFireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	j.State = jobs.StateDelayed
	j.Attempts++
	j.LastError = errMessage
	j.FireAt = nextFireAt
	j.ClaimedBy = ""
	j.ClaimedAt = nil
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) MarkDeadLetter(_ context.Context, jobID uuid.UUID, errMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	j.State = jobs.StateFailed
	j.Attempts++
	j.LastError = errMessage
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CancelFor(_ context.Context, scheduleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		if j.ScheduleID == scheduleID && (j.State == jobs.StatePending || j.State == jobs.StateDelayed) {
			delete(s.jobs, id)
		}
	}
	return nil
}

func (s *Store) StatusOf(_ context.Context, scheduleID uuid.UUID) ([]*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*jobs.Job
	for _, j := range s.jobs {
		if j.ScheduleID == scheduleID {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ReclaimStale(_ context.Context, staleAfter time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var n int64
	for _, j := range s.jobs {
		if j.State == jobs.StateActive && j.ClaimedAt != nil && now.Sub(*j.ClaimedAt) > staleAfter {
			j.State = jobs.StatePending
			j.ClaimedBy = ""
			j.ClaimedAt = nil
			j.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *Store) RegisterWorker(_ context.Context, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.workers[workerID] = &jobs.WorkerStatus{
		WorkerID: workerID, Status: "running", StartedAt: now, LastHeartbeatAt: now,
	}
	return nil
}

func (s *Store) Heartbeat(_ context.Context, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[workerID]
	if !ok {
		return nil
	}
	w.LastHeartbeatAt = time.Now().UTC()
	return nil
}

func (s *Store) DeregisterWorker(_ context.Context, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[workerID]; ok {
		w.Status = "stopped"
	}
	return nil
}

func (s *Store) ListWorkers(_ context.Context) ([]jobs.WorkerStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]jobs.WorkerStatus, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, *w)
	}
	return out, nil
}
