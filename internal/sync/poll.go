package sync

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rgsync/rgsync/internal/adapter"
	"github.com/rgsync/rgsync/internal/mapping"
	"github.com/rgsync/rgsync/internal/rlog"
	"github.com/rgsync/rgsync/internal/syncmodel"
)

// cadence is interval+jitter, held behind an atomic.Pointer so SetCadence
// can hot-reload polling.* from config.yaml without racing Run's loop.
type cadence struct {
	interval time.Duration
	jitter   time.Duration
}

// defaultProjectConcurrency bounds how many distinct projects RunPass
// reconciles at once (spec §5 "an implementer may parallelize distinct
// projects, but operations within a single project must be sequential").
const defaultProjectConcurrency = 4

// State is the process-visible status the poll driver records after every
// tick (spec §4.8 "record { lastRunAt, lastSuccessAt, consecutiveFailures }
// as process-visible state"), exposed in-process through PollDriver.State.
// The status CLI subcommand does not read it.
type State struct {
	LastRunAt           time.Time
	LastSuccessAt       time.Time
	ConsecutiveFailures int
}

// PollDriver runs Engine.RunPass on interval+jitter, skipping a tick if the
// previous one is still in flight (spec §4.8, §5 "single-threaded
// cooperative at the pass level").
type PollDriver struct {
	engine *Engine

	cadence atomic.Pointer[cadence]

	inFlight atomic.Bool
	state    atomic.Pointer[State]
}

// NewPollDriver builds a PollDriver over engine.
func NewPollDriver(engine *Engine, interval, jitter time.Duration) *PollDriver {
	d := &PollDriver{engine: engine}
	d.cadence.Store(&cadence{interval: interval, jitter: jitter})
	d.state.Store(&State{})
	return d
}

// State returns a snapshot of the driver's process-visible state.
func (d *PollDriver) State() State {
	return *d.state.Load()
}

// SetCadence replaces the interval and jitter the next sleep will use,
// letting a config.Watcher hot-reload polling.* without restarting serve.
func (d *PollDriver) SetCadence(interval, jitter time.Duration) {
	d.cadence.Store(&cadence{interval: interval, jitter: jitter})
}

// Run blocks, ticking until ctx is cancelled (spec §4.8, §5 "a cancelled
// pass stops at the next suspension point... exits without advancing the
// global lastSuccessAt").
func (d *PollDriver) Run(ctx context.Context) {
	for {
		c := d.cadence.Load()
		sleep := c.interval
		if c.jitter > 0 {
			sleep += time.Duration(rand.Int63n(int64(c.jitter) + 1))
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		d.tick(ctx)
	}
}

func (d *PollDriver) tick(ctx context.Context) {
	if !d.inFlight.CompareAndSwap(false, true) {
		rlog.Infof("poll tick skipped, previous pass still in flight", nil)
		return
	}
	defer d.inFlight.Store(false)

	prev := d.state.Load()
	next := &State{LastRunAt: time.Now().UTC(), LastSuccessAt: prev.LastSuccessAt, ConsecutiveFailures: prev.ConsecutiveFailures}

	if err := d.engine.RunPass(ctx); err != nil {
		next.ConsecutiveFailures++
		rlog.Errorf("pass failed", err, rlog.Fields{"consecutive_failures": next.ConsecutiveFailures})
	} else if ctx.Err() == nil {
		next.LastSuccessAt = next.LastRunAt
		next.ConsecutiveFailures = 0
	}
	d.state.Store(next)
}

// PassMetrics extends Metrics with a span around the whole pass, for an
// optional observability.Provider wired in from cmd/rgsync.
type PassMetrics interface {
	Metrics
	StartPass(ctx context.Context) (context.Context, func(error))
}

// Engine wires the reference cache, project discovery, member correlator,
// pair discoverer, and reconciler into one full pass (spec §4.8).
type Engine struct {
	store        *mapping.Store
	adapterA     adapter.Adapter
	categoryA    adapter.CategoryAdapter
	lister       adapter.ProjectLister
	adapterB     adapter.Adapter
	resolverB    adapter.ProjectResolver
	categoryKeys atomic.Pointer[[]string]
	customField  string
	publicURLA   string
	publicURLB   string
	metrics      PassMetrics

	projectConcurrency int64
}

// NewEngine builds an Engine. categoryA/lister are platform A's
// CategoryAdapter/ProjectLister; resolverB is platform B's ProjectResolver.
// Distinct projects are reconciled with up to defaultProjectConcurrency
// running at once; use WithProjectConcurrency to change that.
func NewEngine(store *mapping.Store, adapterA adapter.Adapter, categoryA adapter.CategoryAdapter, lister adapter.ProjectLister, adapterB adapter.Adapter, resolverB adapter.ProjectResolver, categoryKeys []string, customFieldName, publicURLA, publicURLB string) *Engine {
	e := &Engine{
		store: store, adapterA: adapterA, categoryA: categoryA, lister: lister,
		adapterB: adapterB, resolverB: resolverB,
		customField: customFieldName, publicURLA: publicURLA, publicURLB: publicURLB,
		projectConcurrency: defaultProjectConcurrency,
	}
	e.categoryKeys.Store(&categoryKeys)
	return e
}

// SetCategoryKeys replaces the category-key filter the next pass will use,
// letting a config.Watcher hot-reload categoryKeys from config.yaml without
// restarting serve.
func (e *Engine) SetCategoryKeys(categoryKeys []string) {
	e.categoryKeys.Store(&categoryKeys)
}

// WithProjectConcurrency overrides how many projects RunPass reconciles
// concurrently. A value of 1 makes projects fully sequential.
func (e *Engine) WithProjectConcurrency(n int64) *Engine {
	if n < 1 {
		n = 1
	}
	e.projectConcurrency = n
	return e
}

// WithMetrics attaches an observability.Provider (or test double) that
// spans each pass and counts patches/conflicts. A nil Engine.metrics is a
// valid no-op.
func (e *Engine) WithMetrics(m PassMetrics) *Engine {
	e.metrics = m
	return e
}

// RunPass implements spec §4.8's pass body: reference-cache refresh,
// project discovery, then for each linked project, member correlation,
// pair discovery, and reconciliation, in that sequence. Setup failures
// (reference cache, project discovery) fail the whole pass; per-project
// failures are caught and logged so the pass continues to the next project.
func (e *Engine) RunPass(ctx context.Context) (err error) {
	if e.metrics != nil {
		var end func(error)
		ctx, end = e.metrics.StartPass(ctx)
		defer func() { end(err) }()
	}

	if err := e.refreshReferenceCache(ctx); err != nil {
		return err
	}
	if err := DiscoverProjects(ctx, e.store, e.lister, e.resolverB, e.customField); err != nil {
		return err
	}

	projects, err := e.store.ListProjects(ctx)
	if err != nil {
		return err
	}

	pairDiscoverer := NewPairDiscoverer(e.store, e.adapterA, e.adapterB, *e.categoryKeys.Load(), e.publicURLA, e.publicURLB)
	reconciler := NewReconciler(e.store, e.adapterA, e.adapterB, e.publicURLA, e.publicURLB).WithMetrics(e.metrics)

	// Distinct projects may run concurrently (spec §5); everything within
	// one project's goroutine below stays strictly sequential.
	sem := semaphore.NewWeighted(e.projectConcurrency)
	group, groupCtx := errgroup.WithContext(ctx)

	for _, project := range projects {
		project := project
		if err := ctx.Err(); err != nil {
			break // cancellation: leave partial work committed, exit quietly (spec §5)
		}
		if err := sem.Acquire(groupCtx, 1); err != nil {
			break // ctx cancelled while waiting for a slot
		}

		group.Go(func() error {
			defer sem.Release(1)
			e.reconcileProject(groupCtx, pairDiscoverer, reconciler, project)
			return nil
		})
	}
	_ = group.Wait() // reconcileProject never returns an error; per-project failures are logged and swallowed
	return nil
}

// reconcileProject runs one project's correlate/discover/reconcile/mark-synced
// sequence. Every step's failure is logged and the sequence stops for this
// project only (spec §4.8 "catches errors per project").
func (e *Engine) reconcileProject(ctx context.Context, pairDiscoverer *PairDiscoverer, reconciler *Reconciler, project syncmodel.Project) {
	remoteB, err := e.store.GetRemoteProjectB(ctx, project.ID)
	if err != nil || !remoteB.Linked() {
		return // unlinked projects are skipped until a subsequent pass resolves them
	}

	if err := CorrelateMembers(ctx, e.store, e.adapterA, e.adapterB, project.ExternalAID, *remoteB.ExternalBID); err != nil {
		rlog.Errorf("member correlation failed", err, rlog.Fields{"project_id": project.ID})
		return
	}

	aHints, bHints, err := pairDiscoverer.DiscoverPairs(ctx, project, *remoteB)
	if err != nil {
		rlog.Errorf("pair discovery failed", err, rlog.Fields{"project_id": project.ID})
		return
	}

	if err := reconciler.ReconcileProject(ctx, project, *remoteB, aHints, bHints); err != nil {
		rlog.Errorf("reconciliation failed", err, rlog.Fields{"project_id": project.ID})
		return
	}

	if err := e.store.SetLastSyncAt(ctx, project.ID, time.Now().UTC()); err != nil {
		rlog.Errorf("set last sync at failed", err, rlog.Fields{"project_id": project.ID})
	}
}

func (e *Engine) refreshReferenceCache(ctx context.Context) error {
	trackers, err := e.categoryA.ListTrackers(ctx)
	if err != nil {
		return err
	}
	if err := e.store.ReplaceTrackersA(ctx, trackers); err != nil {
		return err
	}
	statuses, err := e.categoryA.ListStatuses(ctx)
	if err != nil {
		return err
	}
	return e.store.ReplaceStatusesA(ctx, statuses)
}
