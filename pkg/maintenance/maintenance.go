// Package maintenance runs the background jobs of a serve process: expired
// lease sweeping, inactivity archival and draft reconciliation. Each job
// fires on its own cron schedule under a bounded timeout, and every case
// mutation happens while holding the case lock, so a job never races a live
// request on the same case.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/caselock"
	"github.com/causahq/causa/pkg/casestore"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/objectstore"
)

const component = "maintenance"

const (
	// jobTimeout bounds one firing of any job.
	jobTimeout = 5 * time.Minute

	// archiveBatchSize caps how many stale cases one archival tick
	// processes. The rest wait for the next firing.
	archiveBatchSize = 200

	// lockOwner names maintenance-held leases in lock metadata and logs.
	lockOwner = "maintenance"
)

// Deps are the backends the jobs operate on.
type Deps struct {
	Store   casestore.Store
	Locker  caselock.Locker
	Objects objectstore.Store
}

// Scheduler owns the cron runner and the job implementations. Jobs are
// exported so the serve command and tests can fire them directly.
type Scheduler struct {
	cfg  config.MaintenanceConfig
	deps Deps
	cron *cron.Cron
	now  func() time.Time
}

type job struct {
	name     string
	schedule string
	run      func(context.Context) (int, error)
}

func (s *Scheduler) jobs() []job {
	return []job{
		{"lease-sweep", s.cfg.LeaseSweepSchedule, s.SweepLeases},
		{"archive", s.cfg.ArchiveSchedule, s.ArchiveInactive},
		{"draft-reconcile", s.cfg.DraftReconcileSchedule, s.ReconcileDrafts},
	}
}

// New builds a scheduler from validated config. When maintenance is disabled
// the scheduler is inert: Start, Stop and RunAll become no-ops while the job
// methods stay callable.
func New(cfg config.MaintenanceConfig, deps Deps) (*Scheduler, error) {
	if deps.Store == nil {
		return nil, fault.New(fault.Validation, component, "new", "case store is required", nil)
	}
	if deps.Locker == nil {
		return nil, fault.New(fault.Validation, component, "new", "case locker is required", nil)
	}
	if deps.Objects == nil {
		return nil, fault.New(fault.Validation, component, "new", "object store is required", nil)
	}

	s := &Scheduler{cfg: cfg, deps: deps, now: time.Now}
	if cfg.Enabled != nil && !*cfg.Enabled {
		return s, nil
	}

	runner := cron.New()
	for _, j := range s.jobs() {
		if _, err := runner.AddFunc(j.schedule, s.tick(j.name, j.run)); err != nil {
			return nil, fault.New(fault.Validation, component, "new",
				fmt.Sprintf("invalid %s schedule %q", j.name, j.schedule), err)
		}
	}
	s.cron = runner
	return s, nil
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	if s.cron == nil {
		slog.Info("Maintenance scheduler disabled")
		return
	}
	s.cron.Start()
	slog.Info("Maintenance scheduler started",
		"lease_sweep", s.cfg.LeaseSweepSchedule,
		"archive", s.cfg.ArchiveSchedule,
		"draft_reconcile", s.cfg.DraftReconcileSchedule)
}

// Stop halts scheduling and waits for in-flight jobs, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunAll fires every job once, concurrently, regardless of schedule. The
// serve command calls it at startup so a restarted instance recovers expired
// leases and orphaned drafts without waiting for the first scheduled tick.
func (s *Scheduler) RunAll(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	group, ctx := errgroup.WithContext(ctx)
	for _, j := range s.jobs() {
		group.Go(func() error {
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()
			if _, err := j.run(jobCtx); err != nil {
				return fmt.Errorf("%s: %w", j.name, err)
			}
			return nil
		})
	}
	return group.Wait()
}

// tick adapts a job for the cron runner: fresh timeout per firing, outcome
// logged instead of returned.
func (s *Scheduler) tick(name string, run func(context.Context) (int, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		start := time.Now()
		n, err := run(ctx)
		if err != nil {
			slog.Error("Maintenance job failed", "job", name, "error", err)
			return
		}
		if n > 0 {
			slog.Info("Maintenance job done", "job", name, "touched", n,
				"duration", time.Since(start).Round(time.Millisecond))
		}
	}
}

// SweepLeases drops case locks whose lease deadline has passed. Crashed
// invocations leave such leases behind; sweeping returns their cases to
// service before the next request has to steal the lock itself.
func (s *Scheduler) SweepLeases(ctx context.Context) (int, error) {
	return s.deps.Locker.SweepExpired(ctx)
}

// ArchiveInactive moves active cases idle beyond the configured window to
// archived. Archived is terminal for the agent surface, so only genuinely
// abandoned cases should cross this edge.
func (s *Scheduler) ArchiveInactive(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.cfg.ArchiveAfterDays)
	stale, err := s.deps.Store.ListByStatus(ctx, casefile.StatusActive, cutoff, archiveBatchSize)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, c := range stale {
		if ctx.Err() != nil {
			return archived, ctx.Err()
		}
		done, err := s.archiveOne(ctx, c.ID, cutoff)
		if err != nil {
			slog.Error("Archival failed", "case_id", c.ID, "error", err)
			continue
		}
		if done {
			archived++
			slog.Info("Case archived for inactivity", "case_id", c.ID, "idle_since", c.UpdatedAt)
		}
	}
	return archived, nil
}

// archiveOne archives a single case under its lock. The status and the idle
// window are rechecked after acquisition: a request may have landed between
// the listing and the lock.
func (s *Scheduler) archiveOne(ctx context.Context, caseID string, cutoff time.Time) (bool, error) {
	lease, err := s.deps.Locker.Acquire(ctx, caseID, lockOwner)
	if err != nil {
		if errors.Is(err, caselock.ErrBusy) {
			return false, nil
		}
		return false, err
	}
	defer s.release(ctx, lease)

	cur, _, _, err := s.deps.Store.Load(ctx, caseID)
	if err != nil {
		return false, err
	}
	if cur.Status != casefile.StatusActive || !cur.UpdatedAt.Before(cutoff) {
		return false, nil
	}
	if err := s.deps.Store.SetStatus(ctx, caseID, casefile.StatusArchived); err != nil {
		return false, err
	}
	return true, nil
}

// ReconcileDrafts compares the object store against the drafts recorded in
// each case. A draft PDF whose recording update never landed, which happens
// when generate_draft is cancelled between the upload and the context write,
// is adopted as a status orphaned entry so revision numbering stays
// monotonic. Recorded drafts whose object is gone are logged, not mutated.
func (s *Scheduler) ReconcileDrafts(ctx context.Context) (int, error) {
	paths, err := s.deps.Objects.List(ctx, "cases/")
	if err != nil {
		return 0, err
	}

	byCase := make(map[string][]string)
	for _, p := range paths {
		if caseID, _, _, ok := objectstore.ParseDraftPath(p); ok {
			byCase[caseID] = append(byCase[caseID], p)
		}
	}
	caseIDs := make([]string, 0, len(byCase))
	for id := range byCase {
		caseIDs = append(caseIDs, id)
	}
	sort.Strings(caseIDs)

	adopted := 0
	for _, caseID := range caseIDs {
		if ctx.Err() != nil {
			return adopted, ctx.Err()
		}
		n, err := s.reconcileCase(ctx, caseID, byCase[caseID])
		if err != nil {
			slog.Error("Draft reconciliation failed", "case_id", caseID, "error", err)
			continue
		}
		adopted += n
	}
	return adopted, nil
}

func (s *Scheduler) reconcileCase(ctx context.Context, caseID string, objectPaths []string) (int, error) {
	lease, err := s.deps.Locker.Acquire(ctx, caseID, lockOwner)
	if err != nil {
		if errors.Is(err, caselock.ErrBusy) {
			return 0, nil
		}
		return 0, err
	}
	defer s.release(ctx, lease)

	c, details, _, err := s.deps.Store.Load(ctx, caseID)
	if err != nil {
		if fault.KindOf(err) == fault.NotFound {
			slog.Warn("Draft objects reference an unknown case",
				"case_id", caseID, "objects", len(objectPaths))
			return 0, nil
		}
		return 0, err
	}
	if c.Status == casefile.StatusDeleted {
		return 0, nil
	}

	recorded := make(map[string]bool, len(details.Drafts))
	for i := range details.Drafts {
		recorded[details.Drafts[i].ObjectStorePath] = true
	}

	var orphans []casefile.Draft
	stored := make(map[string]bool, len(objectPaths))
	for _, p := range objectPaths {
		stored[p] = true
		if recorded[p] {
			continue
		}
		_, name, rev, _ := objectstore.ParseDraftPath(p)
		orphans = append(orphans, casefile.Draft{
			DraftID:         uuid.NewString(),
			Name:            name,
			Revision:        rev,
			ObjectStorePath: p,
			Status:          casefile.DraftOrphaned,
		})
	}

	for i := range details.Drafts {
		if d := &details.Drafts[i]; !stored[d.ObjectStorePath] {
			slog.Warn("Recorded draft has no object", "case_id", caseID,
				"draft", d.Name, "revision", d.Revision, "path", d.ObjectStorePath)
		}
	}

	if len(orphans) == 0 {
		return 0, nil
	}
	updates := map[string]any{
		"drafts": orphans,
		"internal_notes": []casefile.Note{{
			Author: lockOwner,
			Text:   fmt.Sprintf("adopted %d orphaned draft objects", len(orphans)),
		}},
	}
	if err := s.deps.Store.ApplyUpdates(ctx, caseID, updates); err != nil {
		return 0, err
	}
	slog.Info("Orphaned drafts adopted", "case_id", caseID, "count", len(orphans))
	return len(orphans), nil
}

func (s *Scheduler) release(ctx context.Context, lease caselock.Lease) {
	if err := s.deps.Locker.Release(context.WithoutCancel(ctx), lease); err != nil {
		slog.Warn("Lease release failed", "case_id", lease.CaseID, "error", err)
	}
}
