package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"craiseek/config"
	"craiseek/dispatch"
	"craiseek/models"
	"craiseek/services"
	"craiseek/storage"
)

// ErrCycleInProgress is returned when a cycle is requested while another
// pass holds the run lock.
var ErrCycleInProgress = errors.New("a cycle is already running")

// Orchestrator owns the fetch→parse→store→match→dispatch cycle. One
// orchestrator serves all sources; runMu serializes passes so overlapping
// triggers (ticker, cron, run_now) never dispatch the same listings twice
// or hit an upstream concurrently.
type Orchestrator struct {
	cfg        *config.Config
	store      storage.Store
	handlers   map[string]Handler
	ingestor   *services.Ingestor
	dispatcher *dispatch.Dispatcher
	archiver   *storage.SnapshotArchiver // nil when snapshots are off

	runMu sync.Mutex

	mu    sync.Mutex
	state models.CycleState
}

func NewOrchestrator(cfg *config.Config, store storage.Store, dispatcher *dispatch.Dispatcher, archiver *storage.SnapshotArchiver) *Orchestrator {
	handlers := make(map[string]Handler, len(cfg.Sources))
	for id, src := range cfg.Sources {
		handlers[id] = NewHandler(src, cfg.Fetch, cfg.UserAgent)
	}
	return &Orchestrator{
		cfg:        cfg,
		store:      store,
		handlers:   handlers,
		ingestor:   services.NewIngestor(store),
		dispatcher: dispatcher,
		archiver:   archiver,
		state:      models.StateIdle,
	}
}

// State reports where the current cycle is. The scheduler flips it to
// sleeping between cycles.
func (o *Orchestrator) State() models.CycleState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s models.CycleState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// MarkSleeping records that the daemon is waiting for the next trigger.
func (o *Orchestrator) MarkSleeping() {
	o.setState(models.StateSleeping)
}

// Close shuts down any fetch handlers holding external resources, such as
// a browser handler's Chromium process.
func (o *Orchestrator) Close() {
	for _, h := range o.handlers {
		h.Close()
	}
}

// RunAll runs one cycle per configured source, in stable order. A failed
// source is logged and the rest still run; the error returned is the first
// one seen. When a pass is already in flight the whole call is skipped:
// the running pass will pick up whatever this one would have.
func (o *Orchestrator) RunAll(ctx context.Context) error {
	if !o.runMu.TryLock() {
		log.Println("Cycle already in progress, skipping pass")
		return nil
	}
	defer o.runMu.Unlock()

	ids := make([]string, 0, len(o.handlers))
	for id := range o.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var firstErr error
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := o.runCycle(ctx, id); err != nil {
			log.Printf("Cycle for %s failed: %v", id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
		if ms := o.cfg.Sources[id].RateLimitMS; ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return firstErr
}

// RunCycle runs a full pass for one source. Errors abort the cycle at its
// boundary: the run record is marked failed and the next cycle starts
// clean from the durable store. Returns ErrCycleInProgress when another
// pass holds the run lock.
func (o *Orchestrator) RunCycle(ctx context.Context, sourceID string) error {
	if !o.runMu.TryLock() {
		return ErrCycleInProgress
	}
	defer o.runMu.Unlock()
	return o.runCycle(ctx, sourceID)
}

func (o *Orchestrator) runCycle(ctx context.Context, sourceID string) error {
	handler, ok := o.handlers[sourceID]
	if !ok {
		return fmt.Errorf("unknown source %q", sourceID)
	}
	srcCfg := o.cfg.Sources[sourceID]

	run := &models.CycleRun{
		SourceID:  sourceID,
		StartedAt: time.Now(),
		Status:    models.CycleStatusRunning,
	}
	runID, err := o.store.CreateRun(ctx, run)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	run.ID = runID

	defer o.setState(models.StateIdle)

	err = o.runPhases(ctx, handler, srcCfg, run)

	finished := time.Now()
	run.FinishedAt = &finished
	if err != nil {
		run.Status = models.CycleStatusFailed
		run.ErrorsCount++
		run.ErrorMessage = err.Error()
		o.persistRun(ctx, run)
		o.log(ctx, run, models.LogLevelError, err.Error())
		return err
	}

	run.Status = models.CycleStatusCompleted
	o.persistRun(ctx, run)
	o.log(ctx, run, models.LogLevelInfo, fmt.Sprintf(
		"cycle completed: %d found, %d new, %d skipped fragments, %d sent, %d failed",
		run.ListingsFound, run.ListingsNew, run.FragmentsSkipped,
		run.NotificationsSent, run.NotificationsFailed))
	return nil
}

func (o *Orchestrator) runPhases(ctx context.Context, handler Handler, srcCfg *config.SourceConfig, run *models.CycleRun) error {
	o.setState(models.StateFetching)
	payload, err := handler.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	if o.archiver != nil {
		// Snapshot failures never fail the cycle.
		if key, err := o.archiver.Archive(ctx, srcCfg.ID, run.StartedAt, payload); err != nil {
			log.Printf("Snapshot for %s failed: %v", srcCfg.ID, err)
		} else {
			log.Printf("Snapshot for %s archived at %s", srcCfg.ID, key)
		}
	}

	o.setState(models.StateParsing)
	raws, skipped, err := ParseListings(payload, srcCfg.URL)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	run.FragmentsSkipped = skipped
	if skipped > 0 {
		o.log(ctx, run, models.LogLevelWarn, fmt.Sprintf("skipped %d malformed fragments", skipped))
	}

	o.setState(models.StateStoring)
	stats, err := o.ingestor.Ingest(ctx, srcCfg.ID, raws)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	run.ListingsFound = stats.Found
	run.ListingsNew = stats.New

	o.setState(models.StateMatching)
	pending, err := o.store.UnnotifiedListings(ctx)
	if err != nil {
		return fmt.Errorf("load unnotified: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	o.setState(models.StateDispatching)
	dstats, err := o.dispatcher.Run(ctx, pending)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	run.NotificationsSent = dstats.Delivered
	run.NotificationsFailed = dstats.Failed

	// The watermark moves even for listings nobody matched: each listing
	// goes through dispatch once, and the attempt table keeps redelivery
	// out if an operator ever rewinds notified_at.
	ids := make([]uuid.UUID, len(pending))
	for i := range pending {
		ids[i] = pending[i].ID
	}
	if err := o.store.MarkListingsNotified(ctx, ids, time.Now()); err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

func (o *Orchestrator) persistRun(ctx context.Context, run *models.CycleRun) {
	if err := o.store.UpdateRun(ctx, run); err != nil {
		log.Printf("Update run %d failed: %v", run.ID, err)
	}
}

func (o *Orchestrator) log(ctx context.Context, run *models.CycleRun, level models.LogLevel, msg string) {
	if err := o.store.Log(ctx, &run.ID, level, msg, run.SourceID); err != nil {
		log.Printf("Persist log failed: %v", err)
	}
}
