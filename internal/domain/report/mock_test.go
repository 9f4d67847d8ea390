package report

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/pkg/pagination"
)

type mockRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*ScheduledReport
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*ScheduledReport)}
}

func (m *mockRepo) Create(_ context.Context, r *ScheduledReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*ScheduledReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("scheduled report")
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, r *ScheduledReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[r.ID]
	if !ok {
		return apperr.NotFound("scheduled report")
	}
	stored.Name, stored.ReportType, stored.Schedule = r.Name, r.ReportType, r.Schedule
	stored.PeriodDays, stored.Recipients, stored.Active = r.PeriodDays, r.Recipients, r.Active
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("scheduled report")
	}
	delete(m.items, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*ScheduledReport, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*ScheduledReport
	for _, r := range m.items {
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return pagination.Window(result, limit, offset), len(result), nil
}

func (m *mockRepo) ListActive(_ context.Context) ([]*ScheduledReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*ScheduledReport
	for _, r := range m.items {
		if r.Active {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockRepo) RecordRun(_ context.Context, id uuid.UUID, run RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return apperr.NotFound("scheduled report")
	}
	at, status := run.At, run.Status
	r.LastRunAt = &at
	r.LastStatus = &status
	r.LastError = run.Error
	if run.MediaID != nil {
		r.LastMediaID = run.MediaID
	}
	return nil
}

// stubData returns fixed rows, failing for the report types in fail.
type stubData struct {
	mu    sync.Mutex
	rows  [][]interface{}
	fail  map[string]bool
	calls []time.Time
}

func (d *stubData) Load(_ context.Context, def *Definition, from, to time.Time) (*Dataset, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, from, to)
	if d.fail[def.Type] {
		return nil, errors.New("relation does not exist")
	}
	return &Dataset{Columns: def.Columns, Rows: d.rows}, nil
}
