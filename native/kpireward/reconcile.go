package kpireward

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"auxrewards/core/events"
)

// Reconciler stores partial issuance records until an operator completes them.
type Reconciler interface {
	// RecordPartial inserts or replaces the record with the same ID.
	RecordPartial(ctx context.Context, rec PartialIssuance) error
	Partial(ctx context.Context, id string) (PartialIssuance, error)
	Resolve(ctx context.Context, id string, at time.Time) error
}

func (e *Engine) partial(ctx context.Context, rec PartialIssuance, stage Stage, cause error, now time.Time) error {
	rec.ID = uuid.NewString()
	rec.Stage = stage
	rec.Cause = cause.Error()
	rec.CreatedAt = now
	perr := &PartialIssuanceError{Record: rec, Err: cause}
	if e.reconciler != nil {
		if err := e.reconciler.RecordPartial(ctx, rec); err != nil {
			perr.JournalErr = err
		}
	}
	e.metrics.RecordPartial(string(stage))
	e.logger.Error("kpireward: partial issuance",
		slog.String("record", rec.ID),
		slog.String("founder", rec.Founder.String()),
		slog.String("stage", string(stage)),
		slog.Uint64("amount", rec.Amount),
		slog.Uint64("burn", rec.Burn),
		slog.Bool("burn_applied", rec.BurnApplied),
		slog.String("digest", rec.Digest.Hex()),
		slog.Any("error", cause),
		slog.Any("journal_error", perr.JournalErr))
	e.emitter.Emit(events.RewardPartial{
		RecordID:  rec.ID,
		Founder:   rec.Founder,
		Amount:    rec.Amount,
		Burn:      rec.Burn,
		Stage:     string(stage),
		Reason:    rec.Cause,
		Timestamp: now.Unix(),
	})
	return perr
}

// Reconcile completes the partial issuance identified by id: unsaved daily
// counters are restored, the pending burn is applied and the program totals
// recorded. Each step is checkpointed with the reconciler before the next one
// runs, so a retry after any failure never repeats a completed step.
func (e *Engine) Reconcile(ctx context.Context, id string) (*IssuanceEvent, error) {
	if e.reconciler == nil {
		return nil, fmt.Errorf("kpireward: reconciler not configured")
	}
	pending, err := e.reconciler.Partial(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(pending.Founder)
	defer unlock()

	// Reload under the lock: a concurrent attempt may have advanced the record.
	rec, err := e.reconciler.Partial(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Resolved() {
		return nil, fmt.Errorf("kpireward: record %s already resolved", id)
	}
	checkpoint := func(step string) error {
		if err := e.reconciler.RecordPartial(ctx, rec); err != nil {
			return fmt.Errorf("kpireward: reconcile %s checkpoint: %w", step, err)
		}
		return nil
	}

	if rec.Stage == StageState && !rec.StateApplied {
		if err := e.restoreState(rec); err != nil {
			return nil, fmt.Errorf("kpireward: reconcile state: %w", err)
		}
		rec.StateApplied = true
		if err := checkpoint("state"); err != nil {
			return nil, err
		}
	}
	if !rec.BurnApplied {
		if rec.Burn > 0 {
			if err := e.tokens.Burn(ctx, rec.Founder, rec.Burn); err != nil {
				return nil, fmt.Errorf("kpireward: reconcile burn: %w", err)
			}
		}
		rec.BurnApplied = true
		if err := checkpoint("burn"); err != nil {
			return nil, err
		}
	}
	if !rec.LedgerApplied {
		if _, err := e.ledger.Record(rec.Amount, rec.Burn); err != nil {
			return nil, fmt.Errorf("kpireward: reconcile ledger: %w", err)
		}
		rec.LedgerApplied = true
		if err := checkpoint("ledger"); err != nil {
			e.logger.Error("kpireward: ledger recorded but checkpoint failed",
				slog.String("record", rec.ID), slog.Any("error", err))
			return nil, err
		}
	}
	now := e.now().UTC()
	if err := e.reconciler.Resolve(ctx, rec.ID, now); err != nil {
		return nil, fmt.Errorf("kpireward: resolve partial record %s: %w", rec.ID, err)
	}

	evt := &IssuanceEvent{
		Founder:   rec.Founder,
		NetAmount: rec.Amount - rec.Burn,
		Burned:    rec.Burn,
		KpiType:   rec.KpiType,
		Timestamp: now.Unix(),
		Digest:    rec.Digest,
	}
	e.metrics.RecordReconciled()
	e.completed(evt, rec.Amount)
	return evt, nil
}

// restoreState applies a claim whose daily counters were never persisted.
func (e *Engine) restoreState(rec PartialIssuance) error {
	stored, _, err := e.quotas.Load(ModuleName, rec.Founder[:])
	if err != nil {
		return err
	}
	next, changed, err := restoreAdmitted(rewardStateFromQuota(stored), rec.Amount, rec.CreatedAt.Unix())
	if err != nil || !changed {
		return err
	}
	return e.quotas.Save(ModuleName, rec.Founder[:], next.quota())
}
