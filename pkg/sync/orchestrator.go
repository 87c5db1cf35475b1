package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"verity-health/outpost/pkg/rules"
	"verity-health/outpost/pkg/store"
	"verity-health/outpost/pkg/sync/distributor"
	"verity-health/outpost/pkg/sync/monitor"
	"verity-health/outpost/pkg/sync/queue"
)

// Purger removes expired rows on a schedule. The patient cache
// satisfies this. A nil Purger disables the purge job.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Schedules holds the cron intervals for the background jobs. Zero
// intervals disable the corresponding job.
type Schedules struct {
	Probe time.Duration
	Poll  time.Duration
	Drain time.Duration
	Purge time.Duration
}

// DefaultSchedules returns the intervals used when the config leaves
// them unset.
func DefaultSchedules() Schedules {
	return Schedules{
		Probe: 30 * time.Second,
		Poll:  60 * time.Second,
		Drain: 60 * time.Second,
		Purge: 15 * time.Minute,
	}
}

// Status is the aggregate view served by the status endpoint.
type Status struct {
	Running            bool                   `json:"running"`
	Connection         store.ConnectionStatus `json:"connectionStatus"`
	RuleVersion        string                 `json:"ruleVersion"`
	LastSyncTime       *time.Time             `json:"lastSyncTime,omitempty"`
	HoursSinceLastSync float64                `json:"hoursSinceLastSync"`
	Staleness          Staleness              `json:"staleness"`
	IsStale            bool                   `json:"isStale"`
	IsCritical         bool                   `json:"isCritical"`
	QueueDepth         int                    `json:"queueDepth"`
	Urgency            monitor.Urgency        `json:"urgency"`
}

// Orchestrator owns the background sync machinery: the connectivity
// monitor, the rule distribution client, the outbound drainer and the
// cache purger, all driven off one cron runner.
type Orchestrator struct {
	store       store.Store
	monitor     *monitor.Monitor
	distributor *distributor.Client
	drainer     *queue.Drainer
	purger      Purger
	holder      *rules.SnapshotHolder
	schedules   Schedules

	cloudURL string
	clinicID string

	cron    *cron.Cron
	running atomic.Bool
	logger  *slog.Logger
}

func NewOrchestrator(
	st store.Store,
	mon *monitor.Monitor,
	dist *distributor.Client,
	drainer *queue.Drainer,
	purger Purger,
	holder *rules.SnapshotHolder,
	schedules Schedules,
	cloudURL, clinicID string,
) *Orchestrator {
	return &Orchestrator{
		store:       st,
		monitor:     mon,
		distributor: dist,
		drainer:     drainer,
		purger:      purger,
		holder:      holder,
		schedules:   schedules,
		cloudURL:    cloudURL,
		clinicID:    clinicID,
		cron:        cron.New(),
		logger:      slog.Default().With("component", "sync.orchestrator"),
	}
}

// Start brings the node to a serving state: the SyncState singleton
// exists (created offline when absent), the last applied snapshot is
// loaded into the shared holder, and the background jobs are scheduled.
// A second Start while running is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		o.logger.Warn("orchestrator already running, ignoring start")
		return nil
	}

	state, err := o.store.EnsureSyncState(ctx, o.cloudURL, o.clinicID)
	if err != nil {
		o.running.Store(false)
		return fmt.Errorf("ensuring sync state: %w", err)
	}

	// Rules applied in earlier runs keep serving immediately, before
	// any network activity.
	snap, err := o.store.ActiveSnapshot(ctx)
	if err != nil {
		o.running.Store(false)
		return fmt.Errorf("loading active snapshot: %w", err)
	}
	o.holder.Store(snap)

	if err := o.schedule(ctx); err != nil {
		o.running.Store(false)
		return err
	}
	o.cron.Start()

	o.logger.Info("sync orchestrator started",
		"clinic_id", state.ClinicID,
		"rule_version", snap.Version,
		"rule_count", len(snap.Rules),
		"connection_status", state.ConnectionStatus,
	)

	go func() {
		<-ctx.Done()
		o.Stop()
	}()
	return nil
}

func (o *Orchestrator) schedule(ctx context.Context) error {
	jobs := []struct {
		name     string
		interval time.Duration
		run      func()
	}{
		{"probe", o.schedules.Probe, func() { o.monitor.RunScheduled(ctx) }},
		{"poll", o.schedules.Poll, func() { o.distributor.RunScheduled(ctx) }},
		{"drain", o.schedules.Drain, func() { o.runDrain(ctx) }},
		{"purge", o.schedules.Purge, func() { o.runPurge(ctx) }},
	}
	for _, job := range jobs {
		if job.interval <= 0 {
			continue
		}
		if job.name == "purge" && o.purger == nil {
			continue
		}
		spec := fmt.Sprintf("@every %s", job.interval)
		if _, err := o.cron.AddFunc(spec, job.run); err != nil {
			return fmt.Errorf("scheduling %s job: %w", job.name, err)
		}
	}
	return nil
}

func (o *Orchestrator) runDrain(ctx context.Context) {
	res, err := o.drainer.Drain(ctx)
	if err != nil {
		o.logger.Warn("outbound drain incomplete",
			"delivered", res.Delivered,
			"retained", res.Retained,
			"error", err,
		)
	}
}

func (o *Orchestrator) runPurge(ctx context.Context) {
	purged, err := o.purger.PurgeExpired(ctx)
	if err != nil {
		o.logger.Error("cache purge failed", "error", err)
		return
	}
	if purged > 0 {
		o.logger.Debug("cache purge completed", "purged", purged)
	}
}

// Stop halts the background jobs, waits for running ones to finish and
// records the node offline. Safe to call more than once.
func (o *Orchestrator) Stop() {
	if !o.running.CompareAndSwap(true, false) {
		return
	}

	stopped := o.cron.Stop()
	<-stopped.Done()

	// A stopped node is by definition not syncing. Use a fresh
	// context: Stop is usually called with the run context cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.UpdateConnection(ctx, store.StatusOffline, nil, -1); err != nil {
		o.logger.Error("recording offline status on stop", "error", err)
	}

	o.logger.Info("sync orchestrator stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// ForceSync triggers an immediate probe, poll and drain, outside the
// schedule. Used by the reload endpoint and the CLI.
func (o *Orchestrator) ForceSync(ctx context.Context) error {
	o.monitor.CheckNow(ctx)
	if err := o.distributor.ForceReload(ctx); err != nil {
		return err
	}
	_, err := o.drainer.Drain(ctx)
	return err
}

// Status assembles the aggregate node status.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	state, err := o.store.GetSyncState(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading sync state: %w", err)
	}

	depth, err := o.store.PendingCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading queue depth: %w", err)
	}

	now := time.Now().UTC()

	// A node that has never synced is maximally stale.
	hours := CriticalAfter.Hours() + 1
	if state.LastSyncTime != nil {
		hours = now.Sub(*state.LastSyncTime).Hours()
	}
	staleness := ClassifyStaleness(hours)

	var lastSuccess time.Time
	if state.LastSuccessfulPing != nil {
		lastSuccess = *state.LastSuccessfulPing
	}

	return &Status{
		Running:            o.running.Load(),
		Connection:         state.ConnectionStatus,
		RuleVersion:        state.LastRuleVersion,
		LastSyncTime:       state.LastSyncTime,
		HoursSinceLastSync: hours,
		Staleness:          staleness,
		IsStale:            staleness != StalenessNormal,
		IsCritical:         staleness == StalenessCritical,
		QueueDepth:         depth,
		Urgency:            monitor.ClassifyUrgency(state.ConnectionStatus, lastSuccess, now),
	}, nil
}
