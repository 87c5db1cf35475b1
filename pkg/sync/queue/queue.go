package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"verity-health/outpost/pkg/cloud"
	"verity-health/outpost/pkg/store"
)

// DefaultBatchSize bounds how many items one drain pass pulls from the
// store. Remaining items are picked up by the next scheduled pass.
const DefaultBatchSize = 100

// Deliverer pushes a single queued item to the control plane.
// cloud.Client satisfies this.
type Deliverer interface {
	Deliver(ctx context.Context, item store.QueueItem) error
}

// Metrics receives delivery outcomes. A nil Metrics is valid.
type Metrics interface {
	ItemDelivered(kind string)
	ItemRetained(kind, reason string)
}

// Result summarizes one drain pass.
type Result struct {
	Delivered int
	Retained  int
}

// Drainer forwards the durable outbound queue to the control plane.
// Items are stored before any delivery is attempted and stay queued
// until the control plane acknowledges them; nothing is ever dropped.
type Drainer struct {
	store     store.QueueStore
	deliverer Deliverer
	metrics   Metrics
	batchSize int
	logger    *slog.Logger
}

func NewDrainer(queueStore store.QueueStore, deliverer Deliverer, metrics Metrics) *Drainer {
	return &Drainer{
		store:     queueStore,
		deliverer: deliverer,
		metrics:   metrics,
		batchSize: DefaultBatchSize,
		logger:    slog.Default().With("component", "queue"),
	}
}

// Drain pushes pending items oldest first. A transport failure aborts
// the pass immediately: the link is down and every remaining item would
// fail the same way, so they stay queued for the next pass. A rejection
// (4xx) is recorded against the item but retained; the control plane
// may accept it after a rule or schema update.
func (d *Drainer) Drain(ctx context.Context) (Result, error) {
	var res Result

	items, err := d.store.PendingOutbound(ctx, d.batchSize)
	if err != nil {
		return res, fmt.Errorf("loading outbound queue: %w", err)
	}
	if len(items) == 0 {
		return res, nil
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			res.Retained += remaining(items, res)
			return res, err
		}

		err := d.deliverer.Deliver(ctx, item)
		switch {
		case err == nil:
			if markErr := d.store.MarkOutbound(ctx, item.Kind, item.ID, store.SyncSent, ""); markErr != nil {
				return res, fmt.Errorf("marking %s %s sent: %w", item.Kind, item.ID, markErr)
			}
			res.Delivered++
			d.recordDelivered(item.Kind)

		case errors.Is(err, cloud.ErrRejected):
			d.logger.Warn("control plane rejected queued item",
				"kind", item.Kind,
				"id", item.ID,
				"attempts", item.Attempts+1,
				"error", err,
			)
			if markErr := d.store.MarkOutbound(ctx, item.Kind, item.ID, store.SyncFailed, err.Error()); markErr != nil {
				return res, fmt.Errorf("marking %s %s failed: %w", item.Kind, item.ID, markErr)
			}
			res.Retained++
			d.recordRetained(item.Kind, "rejected")

		default:
			// Transport failure. Keep the item pending and stop;
			// the connectivity monitor handles status transitions.
			if markErr := d.store.MarkOutbound(ctx, item.Kind, item.ID, store.SyncPending, err.Error()); markErr != nil {
				d.logger.Error("recording delivery attempt failed",
					"kind", item.Kind,
					"id", item.ID,
					"error", markErr,
				)
			}
			res.Retained += remaining(items, res)
			d.recordRetained(item.Kind, "transport_error")
			return res, fmt.Errorf("delivering %s %s: %w", item.Kind, item.ID, err)
		}
	}

	if res.Delivered > 0 {
		d.logger.Info("outbound queue drained",
			"delivered", res.Delivered,
			"retained", res.Retained,
		)
	}
	return res, nil
}

// Depth reports the current undelivered backlog.
func (d *Drainer) Depth(ctx context.Context) (int, error) {
	return d.store.PendingCount(ctx)
}

func remaining(items []store.QueueItem, res Result) int {
	return len(items) - res.Delivered - res.Retained
}

func (d *Drainer) recordDelivered(kind store.QueueKind) {
	if d.metrics != nil {
		d.metrics.ItemDelivered(string(kind))
	}
}

func (d *Drainer) recordRetained(kind store.QueueKind, reason string) {
	if d.metrics != nil {
		d.metrics.ItemRetained(string(kind), reason)
	}
}
