package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/maltedev/listing-harvester/internal/models"
	"github.com/maltedev/listing-harvester/internal/scheduler"
)

type CategoryState string

const (
	StateRunning   CategoryState = "running"
	StateHarvested CategoryState = "harvested"
	StateDone      CategoryState = "done"
)

type CategoryProgress struct {
	Name      string                `json:"name"`
	State     CategoryState         `json:"state"`
	StartedAt time.Time             `json:"started_at"`
	Kept      int                   `json:"kept"`
	Status    models.CategoryStatus `json:"status,omitempty"`
	Error     string                `json:"error,omitempty"`
}

type Snapshot struct {
	Run        *models.RunInfo    `json:"run,omitempty"`
	InFlight   int                `json:"in_flight"`
	Categories []CategoryProgress `json:"categories"`
}

// Tracker follows the current run for the status endpoints. It is both a
// scheduler observer and a pipeline recorder.
type Tracker struct {
	mu         sync.RWMutex
	run        *models.RunInfo
	categories map[string]*CategoryProgress
	now        func() time.Time
}

var _ scheduler.Observer = (*Tracker)(nil)

func NewTracker() *Tracker {
	return &Tracker{
		categories: make(map[string]*CategoryProgress),
		now:        time.Now,
	}
}

func (t *Tracker) CategoryStarted(category string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.categories[category] = &CategoryProgress{Name: category, State: StateRunning, StartedAt: t.now()}
}

func (t *Tracker) CategoryFinished(o scheduler.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.progress(o.Category.Name)
	p.State = StateHarvested
	p.Kept = o.Result.ListingsKept
	if o.Err != nil {
		p.Error = o.Err.Error()
	}
}

func (t *Tracker) RunStarted(ctx context.Context, run models.RunInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run = &run
	t.categories = make(map[string]*CategoryProgress)
	return nil
}

func (t *Tracker) CategoryDone(ctx context.Context, rep models.CategoryReport) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.progress(rep.Category)
	p.State = StateDone
	p.Status = rep.Status
	p.Kept = rep.ListingsKept
	p.Error = rep.Error
	return nil
}

func (t *Tracker) RunFinished(ctx context.Context, run models.RunInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run = &run
	return nil
}

func (t *Tracker) progress(name string) *CategoryProgress {
	p, ok := t.categories[name]
	if !ok {
		p = &CategoryProgress{Name: name, StartedAt: t.now()}
		t.categories[name] = p
	}
	return p
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{Categories: make([]CategoryProgress, 0, len(t.categories))}
	if t.run != nil {
		run := *t.run
		snap.Run = &run
	}
	for _, p := range t.categories {
		if p.State == StateRunning {
			snap.InFlight++
		}
		snap.Categories = append(snap.Categories, *p)
	}
	sort.Slice(snap.Categories, func(i, j int) bool {
		return snap.Categories[i].StartedAt.Before(snap.Categories[j].StartedAt) ||
			(snap.Categories[i].StartedAt.Equal(snap.Categories[j].StartedAt) && snap.Categories[i].Name < snap.Categories[j].Name)
	})
	return snap
}

// Category returns the progress of one category.
func (t *Tracker) Category(name string) (CategoryProgress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.categories[name]
	if !ok {
		return CategoryProgress{}, false
	}
	return *p, true
}
