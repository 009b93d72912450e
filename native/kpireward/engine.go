package kpireward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"auxrewards/core/events"
	nativecommon "auxrewards/native/common"
	"auxrewards/native/system/quotas"
	"auxrewards/observability"
)

const tracerName = "auxrewards/native/kpireward"

// Engine coordinates claim validation, token issuance and ledger updates.
type Engine struct {
	programs   *ProgramStore
	ledger     *RewardLedger
	quotas     *quotas.Store
	tokens     TokenLedger
	verifier   SignatureVerifier
	replay     ReplayCache
	reconciler Reconciler
	emitter    events.Emitter
	metrics    *observability.KPIRewardMetrics
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
	locks      *founderLocks

	pauseMu sync.RWMutex
	paused  bool
}

// Option customises the engine instance.
type Option func(*Engine)

// WithVerifier overrides the Ed25519 signature verifier.
func WithVerifier(v SignatureVerifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// WithReplayCache supplies the store used to reject duplicate claims.
func WithReplayCache(c ReplayCache) Option {
	return func(e *Engine) { e.replay = c }
}

// WithReconciler supplies the sink for partial issuance records.
func WithReconciler(r Reconciler) Option {
	return func(e *Engine) { e.reconciler = r }
}

func WithEmitter(em events.Emitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *observability.KPIRewardMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the function used to derive the authoritative time.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.now = clock }
}

// WithPaused starts the engine with the pause guard engaged.
func WithPaused(paused bool) Option {
	return func(e *Engine) { e.paused = paused }
}

// NewEngine constructs an issuance engine over state. The program record must
// already be initialised.
func NewEngine(state StateStore, tokens TokenLedger, opts ...Option) (*Engine, error) {
	if state == nil {
		return nil, fmt.Errorf("kpireward: state store required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("kpireward: token ledger required")
	}
	programs := NewProgramStore(state)
	ledger, err := NewRewardLedger(programs)
	if err != nil {
		return nil, err
	}
	engine := &Engine{
		programs: programs,
		ledger:   ledger,
		quotas:   quotas.NewStore(state),
		tokens:   tokens,
		verifier: Ed25519Verifier{},
		emitter:  events.NoopEmitter{},
		now:      time.Now,
		locks:    newFounderLocks(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.replay == nil {
		engine.replay = NewMemoryReplayCache()
	}
	if engine.emitter == nil {
		engine.emitter = events.NoopEmitter{}
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}
	if engine.now == nil {
		engine.now = time.Now
	}
	engine.tracer = otel.Tracer(tracerName)
	engine.metrics.SetPause(engine.paused)
	return engine, nil
}

// ClaimReward validates a signed claim and, when admissible, mints the reward
// to the founder, burns the issuance fee and records the totals. Errors other
// than *PartialIssuanceError leave no side effects.
func (e *Engine) ClaimReward(ctx context.Context, req ClaimRequest) (evt *IssuanceEvent, err error) {
	ctx, span := e.tracer.Start(ctx, "kpireward.ClaimReward", trace.WithAttributes(
		attribute.String("founder", req.Founder.String()),
		attribute.Int64("amount", int64(req.Amount)),
		attribute.Int("kpi_type", int(req.KpiType)),
	))
	start := e.now()
	defer func() {
		e.metrics.ObserveClaim(outcome(err), e.now().Sub(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, ErrorCode(err))
		}
		span.End()
	}()

	if err := e.guard(); err != nil {
		return nil, err
	}
	if req.Founder.IsZero() {
		return nil, ErrInvalidFounder
	}
	if req.Amount > MaxRewardAmount {
		return nil, ErrExcessiveReward
	}
	digest := req.Digest()
	signer := e.ledger.Snapshot().SignerPubkey
	proof, err := verifyClaim(e.verifier, signer, digest, req.Signature)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	if err := CheckFresh(req.Timestamp, now.Unix(), MaxClaimAge); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(req.Founder)
	defer unlock()
	return e.issue(ctx, req, proof, now)
}

func (e *Engine) issue(ctx context.Context, req ClaimRequest, proof verifiedClaim, now time.Time) (*IssuanceEvent, error) {
	digest := req.Digest()
	if !proof.covers(e.ledger.Snapshot().SignerPubkey, digest) {
		return nil, ErrInvalidSignature
	}
	founder := req.Founder
	prev, _, err := e.quotas.Load(ModuleName, founder[:])
	if err != nil {
		return nil, err
	}
	next, err := Admit(rewardStateFromQuota(prev), req.Amount, now.Unix(), MaxDailyRewards)
	if err != nil {
		return nil, err
	}
	burn := BurnAmount(req.Amount)
	if err := e.ledger.CanRecord(req.Amount, burn); err != nil {
		return nil, err
	}
	reserved, err := e.replay.Reserve(ctx, digest, now, ReplayExpiry(req.Timestamp, now))
	if err != nil {
		return nil, fmt.Errorf("kpireward: reserve claim digest: %w", err)
	}
	if !reserved {
		return nil, ErrClaimReplayed
	}

	burnApplied := burn == 0
	if atomic, ok := e.tokens.(AtomicIssuer); ok {
		err = atomic.MintAndBurn(ctx, founder, req.Amount, burn)
		burnApplied = true
	} else {
		err = e.tokens.Mint(ctx, founder, req.Amount)
	}
	if err != nil {
		e.release(ctx, digest)
		if errors.Is(err, ErrInvalidMintAuthority) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrMintFailed, err)
	}

	pending := PartialIssuance{
		Founder:     founder,
		Digest:      digest,
		Amount:      req.Amount,
		Burn:        burn,
		BurnApplied: burnApplied,
		KpiType:     req.KpiType,
	}
	if err := e.quotas.Save(ModuleName, founder[:], next.quota()); err != nil {
		return nil, e.partial(ctx, pending, StageState, err, now)
	}
	pending.StateApplied = true
	if !pending.BurnApplied {
		if err := e.tokens.Burn(ctx, founder, burn); err != nil {
			return nil, e.partial(ctx, pending, StageBurn, err, now)
		}
		pending.BurnApplied = true
	}
	if _, err := e.ledger.Record(req.Amount, burn); err != nil {
		return nil, e.partial(ctx, pending, StageLedger, err, now)
	}

	evt := &IssuanceEvent{
		Founder:   founder,
		NetAmount: req.Amount - burn,
		Burned:    burn,
		KpiType:   req.KpiType,
		Timestamp: now.Unix(),
		Digest:    digest,
	}
	e.completed(evt, req.Amount)
	return evt, nil
}

func (e *Engine) completed(evt *IssuanceEvent, amount uint64) {
	e.emitter.Emit(events.RewardClaimed{
		Founder:   evt.Founder,
		Amount:    evt.NetAmount,
		Burned:    evt.Burned,
		KpiType:   evt.KpiType,
		Timestamp: evt.Timestamp,
		Digest:    evt.Digest,
	})
	e.metrics.RecordIssuance(amount, evt.Burned)
	e.logger.Info("kpireward: reward issued",
		slog.String("founder", evt.Founder.String()),
		slog.Uint64("net_amount", evt.NetAmount),
		slog.Uint64("burned", evt.Burned),
		slog.Int("kpi_type", int(evt.KpiType)),
		slog.String("digest", evt.Digest.Hex()))
}

func (e *Engine) release(ctx context.Context, digest Digest) {
	if err := e.replay.Release(ctx, digest); err != nil {
		e.logger.Warn("kpireward: release claim digest", slog.String("digest", digest.Hex()), slog.Any("error", err))
	}
}

func (e *Engine) guard() error {
	return nativecommon.Guard(e, ModuleName)
}

// IsPaused implements the module pause view.
func (e *Engine) IsPaused(module string) bool {
	if module != ModuleName {
		return false
	}
	e.pauseMu.RLock()
	defer e.pauseMu.RUnlock()
	return e.paused
}

// Pause halts claim processing until Resume is called.
func (e *Engine) Pause() {
	e.setPaused(true)
}

func (e *Engine) Resume() {
	e.setPaused(false)
}

func (e *Engine) setPaused(paused bool) {
	e.pauseMu.Lock()
	changed := e.paused != paused
	e.paused = paused
	e.pauseMu.Unlock()
	e.metrics.SetPause(paused)
	if changed {
		e.logger.Info("kpireward: pause state changed", slog.Bool("paused", paused))
	}
}

// ProgramState returns a snapshot of the program record.
func (e *Engine) ProgramState() ProgramState {
	return e.ledger.Snapshot()
}

// RewardState returns the stored daily counters for founder. Founders that
// never claimed yield the zero value.
func (e *Engine) RewardState(founder solana.PublicKey) (RewardState, error) {
	if founder.IsZero() {
		return RewardState{}, ErrInvalidFounder
	}
	stored, _, err := e.quotas.Load(ModuleName, founder[:])
	if err != nil {
		return RewardState{}, err
	}
	return rewardStateFromQuota(stored), nil
}

// RemainingDaily reports how much founder can still claim today.
func (e *Engine) RemainingDaily(founder solana.PublicKey) (uint64, error) {
	state, err := e.RewardState(founder)
	if err != nil {
		return 0, err
	}
	return Remaining(state, e.now().Unix(), MaxDailyRewards), nil
}

func outcome(err error) string {
	if err == nil {
		return "issued"
	}
	return ErrorCode(err)
}
