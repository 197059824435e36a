// Package cron manages scheduled notifications.
//
// Jobs persist to a JSON store:
//
//	{ "version": 1, "jobs": [ { "id":"…", "name":"…", "enabled":true,
//	    "schedule":{"kind":"every","everyMs":…},
//	    "payload":{"backend":"telegram","targets":["…"],"text":"…"},
//	    "state":{"nextRunAtMs":…,"lastRunAtMs":…,"lastStatus":"ok"},
//	    "createdAtMs":…, "updatedAtMs":…, "deleteAfterRun":false } ] }
package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	robfigcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/alertrelay/alertrelay/internal/bus"
)

// Schedule kinds.
const (
	KindEvery = "every"
	KindCron  = "cron"
	KindAt    = "at"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobDisabled = errors.New("job is disabled")
	ErrNoOutput    = errors.New("scheduler has no delivery output")
)

// --------------------------------------------------------------------------
// Data types
// --------------------------------------------------------------------------

type Schedule struct {
	Kind    string  `json:"kind"`              // "every" | "cron" | "at"
	AtMs    *int64  `json:"atMs,omitempty"`    // one-time
	EveryMs *int64  `json:"everyMs,omitempty"` // interval
	Expr    *string `json:"expr,omitempty"`    // cron expression
	TZ      *string `json:"tz,omitempty"`      // IANA timezone
}

// Every returns an interval schedule.
func Every(d time.Duration) Schedule {
	ms := d.Milliseconds()
	return Schedule{Kind: KindEvery, EveryMs: &ms}
}

// At returns a one-shot schedule.
func At(t time.Time) Schedule {
	ms := t.UnixMilli()
	return Schedule{Kind: KindAt, AtMs: &ms}
}

// Cron returns a cron-expression schedule; tz may be empty for local time.
func Cron(expr, tz string) Schedule {
	s := Schedule{Kind: KindCron, Expr: &expr}
	if tz != "" {
		s.TZ = &tz
	}
	return s
}

// Payload is the notification a job enqueues when it fires.
type Payload struct {
	Backend string   `json:"backend"`
	Targets []string `json:"targets"`
	Text    string   `json:"text"`
	Photos  []string `json:"photos,omitempty"`
	Videos  []string `json:"videos,omitempty"`
}

// Envelope builds a fresh envelope for one firing.
func (p Payload) Envelope() (bus.Envelope, error) {
	b, err := bus.ParseBackend(p.Backend)
	if err != nil {
		return bus.Envelope{}, err
	}
	return bus.NewEnvelope(b, p.Targets, p.Text).WithPhotos(p.Photos...).WithVideos(p.Videos...), nil
}

type JobState struct {
	NextRunAtMs *int64  `json:"nextRunAtMs,omitempty"`
	LastRunAtMs *int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  *string `json:"lastStatus,omitempty"`
	LastError   *string `json:"lastError,omitempty"`
}

type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	UpdatedAtMs    int64    `json:"updatedAtMs"`
	DeleteAfterRun bool     `json:"deleteAfterRun"`
}

type jobStore struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// --------------------------------------------------------------------------
// Service
// --------------------------------------------------------------------------

// Enqueuer accepts envelopes for asynchronous delivery.
type Enqueuer interface {
	Enqueue(env bus.Envelope) error
}

// Service manages scheduled jobs. A Service built with a nil Enqueuer can
// still edit the store, which is how the CLI uses it.
type Service struct {
	storePath string
	out       Enqueuer
	log       *zap.Logger

	mu     sync.Mutex
	store  jobStore
	loaded bool
	runCtx context.Context // non-nil while Start is running

	// Active timers / cron entries keyed by job ID.
	timers    map[string]*time.Timer
	robfig    *robfigcron.Cron
	robfigIDs map[string]robfigcron.EntryID
}

// NewService creates a Service backed by the JSON file at storePath.
func NewService(storePath string, out Enqueuer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		storePath: storePath,
		out:       out,
		log:       log,
		timers:    make(map[string]*time.Timer),
		robfig:    robfigcron.New(),
		robfigIDs: make(map[string]robfigcron.EntryID),
	}
}

// Start loads jobs from disk, recomputes next-run times and arms every
// enabled job. Blocks until ctx is cancelled. An unreadable store is an error
// rather than an empty schedule, so it is never overwritten.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("load %s: %w", s.storePath, err)
	}
	s.recomputeNextRunsLocked()
	if err := s.saveLocked(); err != nil {
		s.log.Warn("save failed", zap.Error(err))
	}
	s.runCtx = ctx
	s.armAllLocked()
	jobs := len(s.store.Jobs)
	s.mu.Unlock()

	s.robfig.Start()
	s.log.Info("scheduler started", zap.Int("jobs", jobs))

	<-ctx.Done()

	<-s.robfig.Stop().Done()
	s.mu.Lock()
	for id := range s.timers {
		s.cancelTimerLocked(id)
	}
	s.runCtx = nil
	s.mu.Unlock()
	s.log.Info("scheduler stopped")
	return ctx.Err()
}

// AddJob validates, saves and (when running) arms a new job.
func (s *Service) AddJob(name string, sched Schedule, payload Payload, deleteAfterRun bool) (Job, error) {
	if err := validateSchedule(sched); err != nil {
		return Job{}, err
	}
	if err := validatePayload(payload); err != nil {
		return Job{}, err
	}

	now := nowMs()
	job := Job{
		ID:             shortID(),
		Name:           name,
		Enabled:        true,
		Schedule:       sched,
		Payload:        payload,
		State:          JobState{NextRunAtMs: computeNextRun(sched, now)},
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
		DeleteAfterRun: deleteAfterRun,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return Job{}, fmt.Errorf("load %s: %w", s.storePath, err)
	}
	s.store.Jobs = append(s.store.Jobs, job)
	if err := s.saveLocked(); err != nil {
		return Job{}, err
	}
	s.armJobLocked(job)

	s.log.Info("added job", zap.String("name", name), zap.String("id", job.ID), zap.String("kind", sched.Kind))
	return job, nil
}

// ListJobs returns jobs ordered by next run; jobs that will not run sort last.
func (s *Service) ListJobs(includeDisabled bool) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, fmt.Errorf("load %s: %w", s.storePath, err)
	}
	var jobs []Job
	for _, j := range s.store.Jobs {
		if includeDisabled || j.Enabled {
			jobs = append(jobs, j)
		}
	}
	sort.SliceStable(jobs, func(i, k int) bool {
		a := int64(^uint64(0) >> 1)
		b := int64(^uint64(0) >> 1)
		if jobs[i].State.NextRunAtMs != nil {
			a = *jobs[i].State.NextRunAtMs
		}
		if jobs[k].State.NextRunAtMs != nil {
			b = *jobs[k].State.NextRunAtMs
		}
		return a < b
	})
	return jobs, nil
}

// RemoveJob removes a job by ID and returns true if found.
func (s *Service) RemoveJob(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return false, fmt.Errorf("load %s: %w", s.storePath, err)
	}
	if !s.removeLocked(id) {
		return false, nil
	}
	s.cancelTimerLocked(id)
	return true, s.saveLocked()
}

// EnableJob enables or disables a job.
func (s *Service) EnableJob(id string, enabled bool) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return Job{}, fmt.Errorf("load %s: %w", s.storePath, err)
	}
	j := s.findLocked(id)
	if j == nil {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	j.Enabled = enabled
	j.UpdatedAtMs = nowMs()
	if enabled {
		j.State.NextRunAtMs = computeNextRun(j.Schedule, nowMs())
	} else {
		j.State.NextRunAtMs = nil
	}
	job := *j
	if err := s.saveLocked(); err != nil {
		return Job{}, err
	}
	if enabled {
		s.armJobLocked(job)
	} else {
		s.cancelTimerLocked(id)
	}
	return job, nil
}

// RunJob fires a job now. force ignores the disabled flag.
func (s *Service) RunJob(id string, force bool) error {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("load %s: %w", s.storePath, err)
	}
	j := s.findLocked(id)
	if j == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !force && !j.Enabled {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobDisabled, id)
	}
	job := *j
	s.mu.Unlock()

	return s.executeJob(job)
}

// --------------------------------------------------------------------------
// Internal scheduling logic
// --------------------------------------------------------------------------

func (s *Service) recomputeNextRunsLocked() {
	now := nowMs()
	for i := range s.store.Jobs {
		if s.store.Jobs[i].Enabled {
			s.store.Jobs[i].State.NextRunAtMs = computeNextRun(s.store.Jobs[i].Schedule, now)
		}
	}
}

func (s *Service) armAllLocked() {
	for _, j := range s.store.Jobs {
		if j.Enabled {
			s.armJobLocked(j)
		}
	}
}

// armJobLocked is a no-op unless Start is running.
func (s *Service) armJobLocked(job Job) {
	if s.runCtx == nil || s.runCtx.Err() != nil {
		return
	}
	s.cancelTimerLocked(job.ID)

	switch job.Schedule.Kind {
	case KindEvery:
		if job.Schedule.EveryMs == nil || *job.Schedule.EveryMs <= 0 {
			return
		}
		d := time.Duration(*job.Schedule.EveryMs) * time.Millisecond
		s.timers[job.ID] = time.AfterFunc(d, func() {
			_ = s.executeJob(job)
			s.mu.Lock()
			defer s.mu.Unlock()
			// Re-arm from the stored copy; it may have been disabled or removed.
			if j := s.findLocked(job.ID); j != nil && j.Enabled {
				s.armJobLocked(*j)
			}
		})

	case KindAt:
		if job.Schedule.AtMs == nil {
			return
		}
		delay := time.Until(time.UnixMilli(*job.Schedule.AtMs))
		if delay < 0 {
			return
		}
		s.timers[job.ID] = time.AfterFunc(delay, func() { _ = s.executeJob(job) })

	case KindCron:
		sched, err := parseCron(job.Schedule)
		if err != nil {
			s.log.Warn("invalid cron expression", zap.String("job", job.ID), zap.Error(err))
			return
		}
		s.robfigIDs[job.ID] = s.robfig.Schedule(sched, robfigcron.FuncJob(func() { _ = s.executeJob(job) }))
	}
}

func (s *Service) cancelTimerLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	if eid, ok := s.robfigIDs[id]; ok {
		s.robfig.Remove(eid)
		delete(s.robfigIDs, id)
	}
}

func (s *Service) executeJob(job Job) error {
	startMs := nowMs()
	log := s.log.With(zap.String("job", job.ID), zap.String("name", job.Name))

	err := s.enqueue(job.Payload)
	lastStatus := "ok"
	var lastErr *string
	if err != nil {
		lastStatus = "error"
		e := err.Error()
		lastErr = &e
		log.Error("job failed", zap.Error(err))
	} else {
		log.Info("job fired", zap.String("backend", job.Payload.Backend))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.findLocked(job.ID)
	if j == nil {
		return err
	}
	now := nowMs()
	j.State.LastRunAtMs = &startMs
	j.State.LastStatus = &lastStatus
	j.State.LastError = lastErr
	j.UpdatedAtMs = now

	if job.Schedule.Kind == KindAt {
		if job.DeleteAfterRun {
			s.removeLocked(job.ID)
		} else {
			j.Enabled = false
			j.State.NextRunAtMs = nil
		}
	} else {
		j.State.NextRunAtMs = computeNextRun(job.Schedule, now)
	}
	if saveErr := s.saveLocked(); saveErr != nil {
		log.Warn("save failed", zap.Error(saveErr))
	}
	return err
}

func (s *Service) enqueue(p Payload) error {
	if s.out == nil {
		return ErrNoOutput
	}
	env, err := p.Envelope()
	if err != nil {
		return err
	}
	return s.out.Enqueue(env)
}

func (s *Service) findLocked(id string) *Job {
	for i := range s.store.Jobs {
		if s.store.Jobs[i].ID == id {
			return &s.store.Jobs[i]
		}
	}
	return nil
}

func (s *Service) removeLocked(id string) bool {
	before := len(s.store.Jobs)
	filtered := s.store.Jobs[:0]
	for _, j := range s.store.Jobs {
		if j.ID != id {
			filtered = append(filtered, j)
		}
	}
	s.store.Jobs = filtered
	return len(filtered) < before
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

func (s *Service) loadLocked() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.storePath)
	if os.IsNotExist(err) {
		s.store = jobStore{Version: 1}
		s.loaded = true
		return nil
	}
	if err != nil {
		return err
	}
	var st jobStore
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if st.Version == 0 {
		st.Version = 1
	}
	s.store = st
	s.loaded = true
	return nil
}

func (s *Service) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal jobs: %w", err)
	}
	if err := os.WriteFile(s.storePath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.storePath, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Utility
// --------------------------------------------------------------------------

var cronParser = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow | robfigcron.Descriptor,
)

func nowMs() int64 { return time.Now().UnixMilli() }

func shortID() string {
	return uuid.NewString()[:8]
}

func validateSchedule(sched Schedule) error {
	switch sched.Kind {
	case KindEvery:
		if sched.EveryMs == nil || *sched.EveryMs <= 0 {
			return errors.New("every: interval must be positive")
		}
	case KindAt:
		if sched.AtMs == nil {
			return errors.New("at: missing time")
		}
	case KindCron:
		if _, err := parseCron(sched); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", sched.Kind)
	}
	return nil
}

func validatePayload(p Payload) error {
	if _, err := bus.ParseBackend(p.Backend); err != nil {
		return err
	}
	if len(p.Targets) == 0 {
		return errors.New("payload needs at least one target")
	}
	if p.Text == "" && len(p.Photos) == 0 && len(p.Videos) == 0 {
		return errors.New("payload needs text or media")
	}
	return nil
}

func parseCron(sched Schedule) (robfigcron.Schedule, error) {
	if sched.Expr == nil {
		return nil, errors.New("cron: missing expression")
	}
	loc := time.Local
	if sched.TZ != nil && *sched.TZ != "" {
		l, err := time.LoadLocation(*sched.TZ)
		if err != nil {
			return nil, fmt.Errorf("cron: timezone %q: %w", *sched.TZ, err)
		}
		loc = l
	}
	parsed, err := cronParser.Parse(*sched.Expr)
	if err != nil {
		return nil, fmt.Errorf("cron: expression %q: %w", *sched.Expr, err)
	}
	return withLocation(parsed, loc), nil
}

func computeNextRun(sched Schedule, nowMs int64) *int64 {
	switch sched.Kind {
	case KindAt:
		if sched.AtMs != nil && *sched.AtMs > nowMs {
			v := *sched.AtMs
			return &v
		}
	case KindEvery:
		if sched.EveryMs != nil && *sched.EveryMs > 0 {
			v := nowMs + *sched.EveryMs
			return &v
		}
	case KindCron:
		if parsed, err := parseCron(sched); err == nil {
			v := parsed.Next(time.UnixMilli(nowMs)).UnixMilli()
			return &v
		}
	}
	return nil
}

// locSchedule evaluates a Schedule in a fixed location.
type locSchedule struct {
	inner robfigcron.Schedule
	loc   *time.Location
}

func (l locSchedule) Next(t time.Time) time.Time {
	return l.inner.Next(t.In(l.loc))
}

func withLocation(s robfigcron.Schedule, loc *time.Location) robfigcron.Schedule {
	return locSchedule{inner: s, loc: loc}
}
