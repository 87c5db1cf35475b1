// Package distributor implements the rule distribution client: the
// long-poll protocol against the control plane, integrity verification
// of rule updates, and their atomic application to the local store.
package distributor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"verity-health/outpost/pkg/rules"
	"verity-health/outpost/pkg/store"
)

// ErrPollInFlight is returned when a poll is requested while another is
// outstanding. At most one poll may be in flight at a time.
var ErrPollInFlight = errors.New("rule poll already in flight")

// Poller is the control-plane rule endpoint.
// A nil update with a nil error means "no update available".
type Poller interface {
	PollRules(ctx context.Context, currentVersion string) (*rules.RuleUpdate, error)
}

// FailureSink receives transport failures so the connectivity
// classification degrades without waiting for the next probe.
type FailureSink interface {
	ReportFailure(ctx context.Context, cause error)
}

// Metrics receives poll outcomes. Implemented by telemetry; a nil
// Metrics is a no-op.
type Metrics interface {
	PollCompleted(outcome string)
	UpdateApplied(version string, ruleCount int)
}

// Client is the rule distribution client for one node. The in-flight
// flag, like all other state, is instance-scoped.
type Client struct {
	store    store.RuleStore
	poller   Poller
	failures FailureSink
	holder   *rules.SnapshotHolder
	metrics  Metrics
	logger   *slog.Logger

	inFlight atomic.Bool
}

// New creates a distribution client. failures and metrics may be nil.
func New(ruleStore store.RuleStore, poller Poller, holder *rules.SnapshotHolder, failures FailureSink, metrics Metrics) *Client {
	return &Client{
		store:    ruleStore,
		poller:   poller,
		failures: failures,
		holder:   holder,
		metrics:  metrics,
		logger:   slog.Default().With("component", "sync.distributor"),
	}
}

// PollOnce performs one poll cycle: ask the control plane for a newer
// rule set, verify it, apply it atomically and publish the new
// snapshot. Returns ErrPollInFlight when a poll is already
// outstanding.
//
// "No update" and a server-side timeout resolve identically: the
// client goes back to idle until the next schedule.
func (c *Client) PollOnce(ctx context.Context) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrPollInFlight
	}
	defer c.inFlight.Store(false)

	currentVersion, err := c.store.AppliedVersion(ctx)
	if err != nil {
		return err
	}

	update, err := c.poller.PollRules(ctx, currentVersion)
	if err != nil {
		// Transport failures are non-fatal: degrade connectivity,
		// retry on the next schedule.
		c.logger.Warn("rule poll failed",
			"current_version", currentVersion,
			"error", err,
		)
		if c.failures != nil {
			c.failures.ReportFailure(ctx, err)
		}
		c.recordPoll("transport_error")
		return err
	}

	if update == nil {
		c.logger.Debug("no rule update available", "current_version", currentVersion)
		c.recordPoll("no_update")
		return nil
	}

	return c.apply(ctx, update)
}

// apply verifies and atomically applies an update.
func (c *Client) apply(ctx context.Context, update *rules.RuleUpdate) error {
	if err := rules.VerifyUpdate(update); err != nil {
		// Never apply a payload that fails verification. The prior
		// version stays authoritative; this is an operator-level
		// integrity failure, not a crash.
		c.logger.Error("rule update failed integrity check, rejecting",
			"version", update.Version,
			"rule_count", len(update.Rules),
			"error", err,
		)
		c.recordPoll("integrity_failure")
		return err
	}

	if err := c.store.ApplyRuleUpdate(ctx, update); err != nil {
		// Local persistence failure: the transaction rolled back, the
		// prior version remains authoritative, next poll retries.
		c.logger.Error("failed to apply rule update, keeping previous version",
			"version", update.Version,
			"error", err,
		)
		c.recordPoll("apply_failure")
		return err
	}

	snap, err := c.store.ActiveSnapshot(ctx)
	if err != nil {
		// The commit succeeded; a snapshot read failure here only
		// delays publication until the next poll or restart.
		c.logger.Error("failed to reload snapshot after apply", "error", err)
	} else if c.holder != nil {
		c.holder.Store(snap)
	}

	c.logger.Info("rule update applied",
		"version", update.Version,
		"rule_count", len(update.Rules),
		"published_at", update.Timestamp,
		"changelog", update.Changelog,
	)
	c.recordPoll("applied")
	if c.metrics != nil {
		c.metrics.UpdateApplied(update.Version, len(update.Rules))
	}
	return nil
}

// ApplyLocal runs a locally sourced update (a bundle file) through the
// same verify-and-apply path as a polled update. A corrupt bundle is
// rejected exactly like a corrupt poll response.
func (c *Client) ApplyLocal(ctx context.Context, update *rules.RuleUpdate) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrPollInFlight
	}
	defer c.inFlight.Store(false)

	return c.apply(ctx, update)
}

// ForceReload clears the locally recorded version so the next poll
// performs a full resync, then polls immediately. The cached rules
// keep serving evaluations until the resync lands.
func (c *Client) ForceReload(ctx context.Context) error {
	if err := c.store.ClearAppliedVersion(ctx); err != nil {
		return err
	}
	c.logger.Info("forced rule reload: local version cleared, full resync on next poll")

	err := c.PollOnce(ctx)
	if errors.Is(err, ErrPollInFlight) {
		// A scheduled poll is already running; it will pick up the
		// cleared version.
		return nil
	}
	return err
}

// InFlight reports whether a poll is currently outstanding.
func (c *Client) InFlight() bool {
	return c.inFlight.Load()
}

// RunScheduled is the periodic entry point invoked by the orchestrator.
// An in-flight poll makes the tick a no-op instead of an error.
func (c *Client) RunScheduled(ctx context.Context) {
	err := c.PollOnce(ctx)
	if errors.Is(err, ErrPollInFlight) {
		c.logger.Debug("skipping scheduled poll, previous poll still in flight")
	}
}

func (c *Client) recordPoll(outcome string) {
	if c.metrics != nil {
		c.metrics.PollCompleted(outcome)
	}
}
