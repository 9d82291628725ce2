package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"rsyaclean/internal/config"
	"rsyaclean/internal/database"
	"rsyaclean/internal/history"
	"rsyaclean/internal/model"
	"rsyaclean/internal/queue"
	"rsyaclean/pkg/direct"
)

type memStore struct {
	mu sync.Mutex

	projects  map[int64]*model.Project
	tasks     map[int64][]model.Task
	nextRun   map[int64]time.Time
	touched   map[int64]int
	queue     map[string]*model.BlockQueueEntry
	queueSeq  int64
	batches   map[int64]*model.Batch
	results   map[int64]model.BatchMetrics
	batchSeq  int64
	pending   map[int64]*model.PendingReport
	pendSeq   int64
	locks     map[int64]model.CampaignLock
	cursors   map[string]int64
	releases  int
	failOnGet error
}

func newMemStore() *memStore {
	return &memStore{
		projects: map[int64]*model.Project{},
		tasks:    map[int64][]model.Task{},
		nextRun:  map[int64]time.Time{},
		touched:  map[int64]int{},
		queue:    map[string]*model.BlockQueueEntry{},
		batches:  map[int64]*model.Batch{},
		results:  map[int64]model.BatchMetrics{},
		pending:  map[int64]*model.PendingReport{},
		locks:    map[int64]model.CampaignLock{},
		cursors:  map[string]int64{},
	}
}

func queueKey(taskID, campaignID int64, domain string) string {
	return fmt.Sprintf("%d/%d/%s", taskID, campaignID, domain)
}

func (s *memStore) addProject(p model.Project, tasks ...model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = &p
	s.tasks[p.ID] = tasks
}

func (s *memStore) ListDueProjects(_ context.Context, afterID int64, limit int) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Project
	for id, p := range s.projects {
		if id <= afterID || len(p.CampaignIDs) == 0 {
			continue
		}
		if next, ok := s.nextRun[id]; ok && next.After(time.Now()) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) GetProject(_ context.Context, id int64) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOnGet != nil {
		return nil, s.failOnGet
	}
	p, ok := s.projects[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) ListEnabledTasks(_ context.Context, projectID int64) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Task
	for _, t := range s.tasks[projectID] {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) MarkScheduleRun(_ context.Context, projectID int64, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRun[projectID] = next
	return nil
}

func (s *memStore) TouchTasks(_ context.Context, projectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[projectID]++
	return nil
}

func (s *memStore) UpsertQueueEntries(_ context.Context, entries []model.BlockQueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		key := queueKey(e.TaskID, e.CampaignID, e.Domain)
		if existing, ok := s.queue[key]; ok {
			existing.Impressions, existing.Clicks = e.Impressions, e.Clicks
			existing.Cost, existing.Conversions = e.Cost, e.Conversions
			existing.Status = model.QueueQueued
			continue
		}
		s.queueSeq++
		e.ID = s.queueSeq
		e.Status = model.QueueQueued
		cp := e
		s.queue[key] = &cp
	}
	return nil
}

func (s *memStore) ListQueueEntries(_ context.Context, campaignID int64) ([]model.BlockQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries(campaignID), nil
}

func (s *memStore) entries(campaignID int64) []model.BlockQueueEntry {
	var out []model.BlockQueueEntry
	for _, e := range s.queue {
		if e.CampaignID == campaignID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost > out[j].Cost
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *memStore) DeleteQueueDomains(_ context.Context, campaignID int64, domains []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, e := range s.queue {
		if e.CampaignID == campaignID && slices.Contains(domains, e.Domain) {
			delete(s.queue, key)
			n++
		}
	}
	return n, nil
}

func (s *memStore) MarkPendingRotation(_ context.Context, campaignID int64, domains []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.queue {
		if e.CampaignID == campaignID && slices.Contains(domains, e.Domain) {
			e.Status = model.QueuePendingRotation
		}
	}
	return nil
}

func (s *memStore) IncrementQueueAttempts(_ context.Context, campaignID int64, domains []string, maxAttempts int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dropped int64
	for key, e := range s.queue {
		if e.CampaignID != campaignID || !slices.Contains(domains, e.Domain) {
			continue
		}
		e.Attempts++
		if e.Attempts >= maxAttempts {
			delete(s.queue, key)
			dropped++
		}
	}
	return dropped, nil
}

func (s *memStore) CreateBatches(_ context.Context, projectID int64, chunks [][]int64) ([]model.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Batch, 0, len(chunks))
	for i, chunk := range chunks {
		s.batchSeq++
		b := model.Batch{
			ID:           s.batchSeq,
			ProjectID:    projectID,
			CampaignIDs:  slices.Clone(chunk),
			BatchNumber:  i + 1,
			TotalBatches: len(chunks),
			Status:       model.BatchPending,
		}
		s.batches[b.ID] = &b
		out = append(out, b)
	}
	return out, nil
}

func (s *memStore) GetBatch(_ context.Context, id int64) (*model.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *memStore) MarkBatchProcessing(_ context.Context, id int64, _ time.Duration, maxRetries int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return false, nil
	}
	claimable := b.Status == model.BatchPending || (b.Status == model.BatchFailed && b.RetryCount < maxRetries)
	if !claimable {
		return false, nil
	}
	b.Status = model.BatchProcessing
	return true, nil
}

func (s *memStore) CompleteBatch(_ context.Context, id int64, m model.BatchMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[id].Status = model.BatchCompleted
	s.results[id] = m
	return nil
}

func (s *memStore) FailBatch(_ context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.batches[id]
	b.Status = model.BatchFailed
	b.RetryCount++
	b.ErrorMessage = &errMsg
	return nil
}

func (s *memStore) ListRetryableBatches(_ context.Context, maxRetries, limit int) ([]model.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Batch
	for _, b := range s.batches {
		if b.Status == model.BatchFailed && b.RetryCount < maxRetries {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ResetBatch(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok || b.Status != model.BatchFailed {
		return false, nil
	}
	b.Status = model.BatchPending
	return true, nil
}

func (s *memStore) CreatePendingReport(_ context.Context, r *model.PendingReport) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.pending {
		if existing.ReportName == r.ReportName && existing.Status == model.ReportPending {
			return false, nil
		}
	}
	s.pendSeq++
	r.ID = s.pendSeq
	r.Status = model.ReportPending
	r.CreatedAt = time.Now()
	cp := *r
	s.pending[r.ID] = &cp
	return true, nil
}

func (s *memStore) ListDuePendingReports(_ context.Context, maxRetries int, retryAfter time.Duration, limit int) ([]model.PendingReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PendingReport
	cutoff := time.Now().Add(-retryAfter)
	for _, r := range s.pending {
		if r.Status != model.ReportPending || r.RetryCount >= maxRetries {
			continue
		}
		if r.LastAttemptAt != nil && !r.LastAttemptAt.Before(cutoff) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) CompletePendingReport(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id].Status = model.ReportCompleted
	return nil
}

func (s *memStore) RecordPendingAttempt(_ context.Context, id int64, maxRetries int) (model.ReportStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.pending[id]
	if !ok {
		return "", database.ErrNotFound
	}
	now := time.Now()
	r.RetryCount++
	r.LastAttemptAt = &now
	if r.RetryCount >= maxRetries {
		r.Status = model.ReportFailed
	}
	return r.Status, nil
}

func (s *memStore) ExpireStalePendingReports(_ context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.pending {
		if r.Status == model.ReportPending && r.CreatedAt.Before(time.Now().Add(-maxAge)) {
			r.Status = model.ReportFailed
			n++
		}
	}
	return n, nil
}

func (s *memStore) AcquireCampaignLock(_ context.Context, campaignID int64, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[campaignID]; ok && l.ExpiresAt.After(time.Now()) {
		return false, nil
	}
	s.locks[campaignID] = model.CampaignLock{CampaignID: campaignID, LockedBy: owner, ExpiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (s *memStore) ReleaseCampaignLock(_ context.Context, campaignID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[campaignID]; ok {
		l.ExpiresAt = time.Now()
		s.locks[campaignID] = l
	}
	s.releases++
	return nil
}

func (s *memStore) SweepExpiredLocks(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, l := range s.locks {
		if !l.ExpiresAt.After(time.Now()) {
			delete(s.locks, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetCursor(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[name], nil
}

func (s *memStore) SetCursor(_ context.Context, name string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[name] = value
	return nil
}

// holdLock simulates another worker owning the campaign
func (s *memStore) holdLock(campaignID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[campaignID] = model.CampaignLock{CampaignID: campaignID, LockedBy: "other", ExpiresAt: time.Now().Add(time.Minute)}
}

func (s *memStore) lockHeld(campaignID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[campaignID]
	return ok && l.ExpiresAt.After(time.Now())
}

type fakeReports struct {
	mu    sync.Mutex
	calls []direct.ReportRequest
	// respond defaults to a ready report with placements
	respond    func(req direct.ReportRequest) (*direct.Report, error)
	placements []model.Placement
}

func (f *fakeReports) FetchReport(_ context.Context, _ direct.Credentials, req direct.ReportRequest) (*direct.Report, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(req)
	}
	return &direct.Report{Status: direct.ReportReady, Name: "ready", Placements: f.placements, Raw: []byte("tsv")}, nil
}

func (f *fakeReports) FetchReportWithRetry(ctx context.Context, creds direct.Credentials, req direct.ReportRequest) (*direct.Report, error) {
	return f.FetchReport(ctx, creds, req)
}

func (f *fakeReports) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeExclusions struct {
	mu     sync.Mutex
	lists  map[int64][]string
	writes map[int64][][]string
	setErr error
	getErr error
	panics bool
}

func newFakeExclusions() *fakeExclusions {
	return &fakeExclusions{lists: map[int64][]string{}, writes: map[int64][][]string{}}
}

func (f *fakeExclusions) GetExcludedSites(_ context.Context, _ direct.Credentials, campaignID int64) ([]string, error) {
	if f.panics {
		panic("exclusion store exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return slices.Clone(f.lists[campaignID]), nil
}

func (f *fakeExclusions) SetExcludedSites(_ context.Context, _ direct.Credentials, campaignID int64, domains []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.lists[campaignID] = slices.Clone(domains)
	f.writes[campaignID] = append(f.writes[campaignID], slices.Clone(domains))
	return nil
}

type fakeHistory struct {
	mu      sync.Mutex
	metrics map[string]model.Placement
	blocks  map[history.BlockAction][]string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{metrics: map[string]model.Placement{}, blocks: map[history.BlockAction][]string{}}
}

func (f *fakeHistory) RecordPlacements(_ context.Context, placements []model.Placement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range placements {
		f.metrics[strings.ToLower(p.Domain)] = p
	}
	return nil
}

func (f *fakeHistory) LatestMetrics(_ context.Context, _ int64, domains []string) (map[string]model.Placement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]model.Placement{}
	for _, d := range domains {
		if p, ok := f.metrics[d]; ok {
			out[d] = p
		}
	}
	return out, nil
}

func (f *fakeHistory) RecordBlocks(_ context.Context, _ int64, domains []string, action history.BlockAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[action] = append(f.blocks[action], domains...)
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []queue.Message
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, m queue.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, m)
	return nil
}

type fakeArchive struct {
	keys []string
}

func (f *fakeArchive) Store(_ context.Context, key string, _ []byte) error {
	f.keys = append(f.keys, key)
	return nil
}

func testEngine() config.EngineConfig {
	return config.EngineConfig{
		SoftCapacity:      950,
		HardCapacity:      1000,
		RotationFraction:  0.2,
		LockTTL:           300,
		BatchSize:         7,
		MaxBatchRetries:   3,
		QueueMaxAttempts:  3,
		PendingMaxRetries: 10,
		PendingRetryAfter: 300,
		PendingMaxAge:     86400,
		ReportWindows:     []int{0},
		DispatchProjects:  50,
		ScheduleInterval:  3600,
		InvokeTimeout:     1,
		InvokeParallelism: 2,
		BatchStaleAfter:   900,
	}
}

func ptr(v float64) *float64 { return &v }

type harness struct {
	store      *memStore
	reports    *fakeReports
	exclusions *fakeExclusions
	history    *fakeHistory
	publisher  *fakePublisher
	archive    *fakeArchive
	engine     config.EngineConfig
}

func newHarness() *harness {
	return &harness{
		store:      newMemStore(),
		reports:    &fakeReports{},
		exclusions: newFakeExclusions(),
		history:    newFakeHistory(),
		publisher:  &fakePublisher{},
		archive:    &fakeArchive{},
		engine:     testEngine(),
	}
}

func (h *harness) services() Services {
	return Services{
		Store:      h.store,
		Reports:    h.reports,
		Exclusions: h.exclusions,
		History:    h.history,
		Archive:    h.archive,
		Publisher:  h.publisher,
	}
}

func (h *harness) worker() *Worker {
	return NewWorker(h.services(), h.engine)
}
