package worker

import (
	"context"
	"log/slog"
	"storefront/internal/domain"
	"storefront/internal/infrastructure/payment"
	"storefront/internal/service"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// OutcomeSource yields the callback the processor would post for a charge.
type OutcomeSource interface {
	Outcome(checkoutRequestID string) (domain.CallbackEvent, bool)
}

type ReplayStats struct {
	Callbacks int
	Applied   int
	Duplicate int
	Failed    int
}

// CallbackReplayer delivers each charge's outcome several times at once, the
// way a processor retrying on timeouts would. A replay ends when every copy
// has been handled.
type CallbackReplayer struct {
	source     OutcomeSource
	reconciler service.CallbackReconciler
	copies     int
	log        *slog.Logger
}

func NewCallbackReplayer(
	source OutcomeSource,
	reconciler service.CallbackReconciler,
	copies int,
	log *slog.Logger,
) *CallbackReplayer {
	if copies < 1 {
		copies = 1
	}
	return &CallbackReplayer{
		source:     source,
		reconciler: reconciler,
		copies:     copies,
		log:        log,
	}
}

func (rw *CallbackReplayer) Replay(ctx context.Context, checkoutRequestIDs []string) (ReplayStats, error) {
	var applied, duplicate, failed, callbacks atomic.Int32

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range checkoutRequestIDs {
		ev, ok := rw.source.Outcome(id)
		if !ok {
			rw.log.Warn("no outcome for checkout request", "checkout_request_id", id)
			continue
		}
		body, err := payment.EncodeCallback(ev)
		if err != nil {
			return ReplayStats{}, err
		}

		for range rw.copies {
			callbacks.Add(1)
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				switch rw.deliver(ctx, body) {
				case service.OutcomeApplied:
					applied.Add(1)
				case service.OutcomeDuplicate:
					duplicate.Add(1)
				default:
					failed.Add(1)
				}
				return nil
			})
		}
	}
	err := g.Wait()

	stats := ReplayStats{
		Callbacks: int(callbacks.Load()),
		Applied:   int(applied.Load()),
		Duplicate: int(duplicate.Load()),
		Failed:    int(failed.Load()),
	}
	rw.log.Info("callback replay finished",
		"callbacks", stats.Callbacks,
		"applied", stats.Applied,
		"duplicate", stats.Duplicate,
		"failed", stats.Failed,
	)
	return stats, err
}

// deliver goes through the wire format so parsing is exercised like a real webhook.
func (rw *CallbackReplayer) deliver(ctx context.Context, body []byte) service.ReconcileOutcome {
	ev, err := payment.ParseCallback(body)
	if err != nil {
		rw.log.Error("replayed callback did not parse", "error", err)
		return ""
	}
	outcome, err := rw.reconciler.Reconcile(ctx, ev)
	if err != nil {
		rw.log.Error("replayed callback failed", "checkout_request_id", ev.CheckoutRequestID, "error", err)
		return ""
	}
	return outcome
}
