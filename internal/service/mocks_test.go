package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/leadpilot/crm-backend/internal/dispatch"
	appErrors "github.com/leadpilot/crm-backend/internal/errors"
	"github.com/leadpilot/crm-backend/internal/model"
)

// --- In-memory fakes mirroring the repository CAS semantics ---

type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[string]*model.Run
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: map[string]*model.Run{}}
}

func (f *fakeRunRepo) Create(r *model.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.CreatedAt = time.Now()
	copied := *r
	f.runs[r.ID] = &copied
	return nil
}

func (f *fakeRunRepo) GetByID(id string) (*model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, appErrors.NewRunNotFound(id)
	}
	copied := *run
	return &copied, nil
}

func (f *fakeRunRepo) ListRuns(offset, limit int, status string) ([]*model.Run, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := []*model.Run{}
	for _, r := range f.runs {
		if status == "" || string(r.Status) == status {
			copied := *r
			all = append(all, &copied)
		}
	}
	total := len(all)
	if offset > total {
		return []*model.Run{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (f *fakeRunRepo) cas(id string, from []model.RunStatus, to model.RunStatus, apply func(*model.Run)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return appErrors.NewRunNotFound(id)
	}
	for _, s := range from {
		if run.Status == s {
			run.Status = to
			apply(run)
			return nil
		}
	}
	return appErrors.NewIllegalTransition(id, string(run.Status), string(to))
}

func (f *fakeRunRepo) MarkPrepared(id string, totalLeads int) error {
	return f.cas(id, []model.RunStatus{model.RunStatusPreparing}, model.RunStatusPrepared, func(r *model.Run) {
		r.TotalLeads = totalLeads
	})
}

func (f *fakeRunRepo) MarkSending(id string, totalLeads int, startedAt time.Time) error {
	return f.cas(id, []model.RunStatus{model.RunStatusPrepared}, model.RunStatusSending, func(r *model.Run) {
		r.TotalLeads = totalLeads
		r.StartedAt = &startedAt
	})
}

func (f *fakeRunRepo) TouchSending(id string) error {
	return f.cas(id, []model.RunStatus{model.RunStatusPrepared, model.RunStatusSending}, model.RunStatusSending, func(r *model.Run) {})
}

func (f *fakeRunRepo) MarkCompleted(id string, sentCount, failedCount int, completedAt time.Time) error {
	return f.cas(id, []model.RunStatus{model.RunStatusSending}, model.RunStatusCompleted, func(r *model.Run) {
		r.SentCount = sentCount
		r.FailedCount = failedCount
		r.CompletedAt = &completedAt
	})
}

func (f *fakeRunRepo) MarkFailed(id string) error {
	return f.cas(id, []model.RunStatus{model.RunStatusSending}, model.RunStatusFailed, func(r *model.Run) {
		now := time.Now()
		r.CompletedAt = &now
	})
}

type fakeRunItemRepo struct {
	mu    sync.Mutex
	items map[string]*model.RunItem
	next  int
}

func newFakeRunItemRepo() *fakeRunItemRepo {
	return &fakeRunItemRepo{items: map[string]*model.RunItem{}}
}

func itemKey(runID string, leadID int) string {
	return fmt.Sprintf("%s/%d", runID, leadID)
}

func (f *fakeRunItemRepo) CreatePending(runID string, leadID int, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := itemKey(runID, leadID)
	if _, ok := f.items[key]; ok {
		return nil
	}
	f.next++
	f.items[key] = &model.RunItem{
		ID:      f.next,
		RunID:   runID,
		LeadID:  leadID,
		Status:  model.RunItemStatusPending,
		Message: message,
	}
	return nil
}

func (f *fakeRunItemRepo) Upsert(item *model.RunItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := itemKey(item.RunID, item.LeadID)
	if existing, ok := f.items[key]; ok {
		item.ID = existing.ID
	} else {
		f.next++
		item.ID = f.next
	}
	copied := *item
	f.items[key] = &copied
	return nil
}

func (f *fakeRunItemRepo) GetByRunAndLead(runID string, leadID int) (*model.RunItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemKey(runID, leadID)]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (f *fakeRunItemRepo) ListByRun(runID string) ([]model.RunItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []model.RunItem{}
	for _, item := range f.items {
		if item.RunID == runID {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (f *fakeRunItemRepo) StatusCounts(runID string) (map[string]int, error) {
	items, _ := f.ListByRun(runID)
	counts := map[string]int{"pending": 0, "sent": 0, "failed": 0}
	for _, item := range items {
		counts[string(item.Status)]++
	}
	return counts, nil
}

type fakeLeadRepo struct {
	mu    sync.Mutex
	leads map[int]*model.Lead
}

func newFakeLeadRepo(leads ...model.Lead) *fakeLeadRepo {
	f := &fakeLeadRepo{leads: map[int]*model.Lead{}}
	for i := range leads {
		copied := leads[i]
		f.leads[copied.ID] = &copied
	}
	return f
}

func (f *fakeLeadRepo) GetByID(id int) (*model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return nil, nil
	}
	copied := *lead
	return &copied, nil
}

// Select applies the filter semantics in memory.
func (f *fakeLeadRepo) Select(criteria model.FilterCriteria) ([]model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := []model.Lead{}
	for _, lead := range f.leads {
		if lead.Archived {
			continue
		}
		if criteria.Niche != "" && !strings.Contains(lead.Niche, criteria.Niche) {
			continue
		}
		if criteria.City != "" && !strings.Contains(lead.City, criteria.City) {
			continue
		}
		if criteria.Status != "" && string(lead.Status) != criteria.Status {
			continue
		}
		if criteria.MinScore != nil && lead.Score < *criteria.MinScore {
			continue
		}
		if criteria.MaxDaysOld != nil && lead.CreatedAt.Before(time.Now().AddDate(0, 0, -*criteria.MaxDaysOld)) {
			continue
		}
		if criteria.ExcludeContacted && lead.LastContactedAt != nil {
			continue
		}
		matched = append(matched, *lead)
	}
	return matched, nil
}

func (f *fakeLeadRepo) MarkContacted(id int, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return false, nil
	}
	if !lead.Status.PreContact() {
		return false, nil
	}
	lead.Status = model.LeadStatusContacted
	lead.LastContactedAt = &at
	return true, nil
}

func (f *fakeLeadRepo) Create(l *model.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l.ID = len(f.leads) + 1
	copied := *l
	f.leads[l.ID] = &copied
	return nil
}

type fakeCommRepo struct {
	mu    sync.Mutex
	comms []model.Communication
}

func (f *fakeCommRepo) Create(c *model.Communication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = len(f.comms) + 1
	f.comms = append(f.comms, *c)
	return nil
}

func (f *fakeCommRepo) ListByLead(leadID int) ([]model.Communication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Communication{}
	for _, c := range f.comms {
		if c.LeadID == leadID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeTemplateRepo struct {
	templates map[int]*model.Template
}

func newFakeTemplateRepo(templates ...model.Template) *fakeTemplateRepo {
	f := &fakeTemplateRepo{templates: map[int]*model.Template{}}
	for i := range templates {
		copied := templates[i]
		f.templates[copied.ID] = &copied
	}
	return f
}

func (f *fakeTemplateRepo) GetByID(id int) (*model.Template, error) {
	tmpl, ok := f.templates[id]
	if !ok {
		return nil, appErrors.NewTemplateNotFound(id)
	}
	copied := *tmpl
	return &copied, nil
}

func (f *fakeTemplateRepo) Create(t *model.Template) error {
	f.templates[t.ID] = t
	return nil
}

type fakeEngine struct {
	mu       sync.Mutex
	payloads []*dispatch.Payload
	err      error
}

func (f *fakeEngine) Dispatch(ctx context.Context, p *dispatch.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, p)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []any
}

func (f *fakePublisher) Publish(topic string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, payload)
	return nil
}
