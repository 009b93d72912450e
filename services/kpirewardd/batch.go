package kpirewardd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alitto/pond/v2"

	"auxrewards/native/kpireward"
)

var errNotProcessed = errors.New("kpirewardd: claim not processed")

// ClaimIssuer is the engine surface the batch processor drives.
type ClaimIssuer interface {
	ClaimReward(ctx context.Context, req kpireward.ClaimRequest) (*kpireward.IssuanceEvent, error)
}

// BatchResult pairs a claim with its outcome.
type BatchResult struct {
	Event *kpireward.IssuanceEvent
	Err   error
}

// BatchProcessor fans claims out over a bounded worker pool. Claims of the
// same founder still serialise on the engine's founder lock.
type BatchProcessor struct {
	issuer    ClaimIssuer
	pool      pond.Pool
	maxClaims int
	logger    *slog.Logger
}

func NewBatchProcessor(issuer ClaimIssuer, cfg BatchConfig, logger *slog.Logger) *BatchProcessor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		issuer:    issuer,
		pool:      pond.NewPool(workers, pond.WithQueueSize(cfg.MaxClaims)),
		maxClaims: cfg.MaxClaims,
		logger:    logger,
	}
}

// Process issues every claim and returns results in input order.
func (b *BatchProcessor) Process(ctx context.Context, claims []kpireward.ClaimRequest) ([]BatchResult, error) {
	if b.maxClaims > 0 && len(claims) > b.maxClaims {
		return nil, fmt.Errorf("batch of %d claims exceeds limit %d", len(claims), b.maxClaims)
	}
	results := make([]BatchResult, len(claims))
	for i := range results {
		results[i].Err = errNotProcessed
	}
	group := b.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i := range claims {
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				results[i] = BatchResult{Err: err}
				return
			}
			evt, err := b.issuer.ClaimReward(groupCtx, claims[i])
			results[i] = BatchResult{Event: evt, Err: err}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		b.logger.Warn("kpirewardd: batch processing interrupted", slog.Any("error", err))
	}
	return results, nil
}

// Stop drains queued claims and stops the workers.
func (b *BatchProcessor) Stop() {
	b.pool.StopAndWait()
}
