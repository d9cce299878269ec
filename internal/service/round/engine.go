package round

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"wager-service/internal/model"
	"wager-service/internal/service/fair"
	"wager-service/internal/service/settings"
	appErr "wager-service/pkg/errors"
	"wager-service/pkg/logger"
	"wager-service/pkg/utils/random"

	"github.com/coder/quartz"
	"go.uber.org/zap"
)

// roundCooldown separates a terminal round from the next one opening.
const roundCooldown = 10 * time.Second

// ConfigProvider hands engines the effective room configuration. A fresh
// copy is read for every new round so admin edits apply at the next round
// boundary.
type ConfigProvider interface {
	RoomConfig(ctx context.Context, roomID string) (settings.RoomConfig, error)
}

// Ledger is the money-movement surface the engine uses. The round's ledger
// entries are the source of truth for what has been paid; RoundTransactions
// lets a replayed resolution skip credits that already landed.
type Ledger interface {
	DebitForBet(ctx context.Context, userID, amount int64, roundID int64, desc string) error
	CreditPayout(ctx context.Context, userID, amount int64, roundID int64, desc string) error
	Refund(ctx context.Context, userID, amount int64, roundID int64, desc string) error
	RecordCommission(ctx context.Context, amount int64, roundID int64, desc string) error
	RoundTransactions(ctx context.Context, roundID int64) ([]model.Transaction, error)
}

// EngineDeps are the collaborators shared by every room engine.
type EngineDeps struct {
	Oracle    *fair.Oracle
	Ledger    Ledger
	Store     *Store
	Scheduler *Scheduler
	Notifier  Notifier
	Clock     quartz.Clock
	Config    ConfigProvider
}

// BetRequest carries one bet from the API layer. SuspendedUntil is the
// caller's gaming-suspension end, loaded with the user row, so the engine
// never touches the users table.
type BetRequest struct {
	UserID         int64
	Username       string
	Avatar         string
	Amount         int64
	Field          int
	SuspendedUntil *time.Time
}

// Engine runs one room: a single mutex-guarded state machine driving the
// active round through open, closing, resolving and a terminal status, then
// opening the next round after a cooldown. All money movement goes through
// the ledger before state changes commit.
type Engine struct {
	roomID  string
	variant variantLogic
	deps    EngineDeps

	mu            sync.Mutex
	cfg           settings.RoomConfig
	cur           *roundState
	deadlineEpoch int64
}

func NewEngine(cfg settings.RoomConfig, deps EngineDeps) (*Engine, error) {
	v, ok := variantFor(cfg.Variant)
	if !ok {
		return nil, fmt.Errorf("room %q: unknown variant %q", cfg.RoomID, cfg.Variant)
	}
	return &Engine{
		roomID:  cfg.RoomID,
		variant: v,
		deps:    deps,
		cfg:     cfg,
	}, nil
}

func (e *Engine) RoomID() string { return e.roomID }

func (e *Engine) Variant() string { return e.variant.name() }

// Config returns the configuration frozen for the active round.
func (e *Engine) Config() settings.RoomConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Start recovers the room's active round from the database or opens a fresh
// one. Rounds whose deadline passed while the process was down resolve
// immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	row, err := e.deps.Store.LatestActiveRound(ctx, e.roomID)
	if err != nil {
		return err
	}
	if row == nil {
		return e.openRoundLocked(ctx)
	}

	st, err := stateFromModel(row)
	if err != nil {
		return fmt.Errorf("room %q: rebuild round %d: %w", e.roomID, row.ID, err)
	}
	frozen, err := decodeFrozenConfig(row)
	if err != nil {
		logger.Log.Warn("round carries no usable frozen config, using current",
			zap.String("room", e.roomID),
			zap.Int64("round", row.ID),
			zap.Error(err),
		)
	} else {
		e.cfg = frozen
	}
	e.cur = st

	logger.Log.Info("recovered active round",
		zap.String("room", e.roomID),
		zap.Int64("round", st.ID),
		zap.String("status", st.Status),
	)

	switch {
	case st.Status == StatusResolving:
		// Crashed mid-resolution. resolveLocked is idempotent over the
		// snapshot, so run it again off the startup path.
		go func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.cur != nil && e.cur.ID == st.ID {
				e.resolveLocked(context.Background())
			}
		}()
	case st.DeadlineAt != nil:
		e.scheduleDeadlineLocked(*st.DeadlineAt)
	case st.EndsAt != nil:
		e.scheduleDeadlineLocked(*st.EndsAt)
	}
	return nil
}

// Stop cancels pending timers. In-flight resolutions finish on their own.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur != nil {
		e.deps.Scheduler.Cancel(e.cur.ID)
	}
	e.deadlineEpoch++
}

// CurrentRound returns a snapshot of the active round.
func (e *Engine) CurrentRound() (View, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return View{}, false
	}
	return e.cur.view(e.roomID, e.variant.name()), true
}

// PlaceBet validates, debits and records one bet. The stake is debited
// before the state mutates and refunded if the snapshot fails to persist, so
// wallet and round never disagree.
func (e *Engine) PlaceBet(ctx context.Context, req BetRequest) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur == nil || !e.cur.accepting() {
		return View{}, appErr.ErrRoundNotAcceptingBets
	}
	now := e.deps.Clock.Now()
	if req.SuspendedUntil != nil && now.Before(*req.SuspendedUntil) {
		return View{}, appErr.ErrGamingSuspended
	}
	if err := e.variant.validateStake(e.cur, e.cfg, req); err != nil {
		return View{}, err
	}

	desc := fmt.Sprintf("bet on %s round %d", e.roomID, e.cur.Number)
	if err := e.deps.Ledger.DebitForBet(ctx, req.UserID, req.Amount, e.cur.ID, desc); err != nil {
		return View{}, err
	}

	work := e.cur.clone()
	prevStatus := work.Status
	directive := e.variant.applyStake(work, e.cfg, req, now)

	if directive == timerStart || directive == timerReset {
		deadline := now.Add(time.Duration(e.cfg.TimerSeconds) * time.Second)
		work.Status = StatusClosing
		work.DeadlineAt = &deadline
	}
	work.appendLog(fmt.Sprintf("%s staked %d", req.Username, req.Amount))

	if err := e.persistLocked(ctx, work); err != nil {
		refundDesc := fmt.Sprintf("refund failed bet on %s round %d", e.roomID, work.Number)
		if rerr := e.deps.Ledger.Refund(ctx, req.UserID, req.Amount, work.ID, refundDesc); rerr != nil {
			logger.Log.Error("refund after failed snapshot also failed",
				zap.String("room", e.roomID),
				zap.Int64("user", req.UserID),
				zap.Int64("amount", req.Amount),
				zap.Error(rerr),
			)
		}
		return View{}, err
	}
	e.cur = work

	if directive == timerStart || directive == timerReset {
		e.scheduleDeadlineLocked(*work.DeadlineAt)
	}

	e.deps.Store.AppendEvent(ctx, work.ID, EventBetAccepted, map[string]interface{}{
		"userId": req.UserID, "amount": req.Amount, "field": req.Field,
	})
	e.publishLocked(EventBetAccepted, map[string]interface{}{
		"userId":   req.UserID,
		"username": req.Username,
		"amount":   req.Amount,
		"field":    req.Field,
	})
	e.publishLocked(EventPotUpdate, map[string]interface{}{"pot": work.Pot})
	if work.Status != prevStatus {
		e.publishLocked(EventPhaseChanged, map[string]interface{}{
			"status":     work.Status,
			"deadlineAt": work.DeadlineAt,
		})
	}
	return work.view(e.roomID, e.variant.name()), nil
}

// UpdateClientSeed lets a participant replace the round's client seed while
// betting is still open. The seed in force at resolution is the one the
// draw uses.
func (e *Engine) UpdateClientSeed(ctx context.Context, userID int64, seed string) (View, error) {
	if len(seed) < 1 || len(seed) > 64 {
		return View{}, appErr.ErrInvalidClientSeed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur == nil || !e.cur.accepting() {
		return View{}, appErr.ErrRoundNotAcceptingBets
	}
	if e.cur.participant(userID) == nil {
		return View{}, appErr.ErrNotParticipant
	}

	work := e.cur.clone()
	work.ClientSeed = seed
	work.appendLog(fmt.Sprintf("client seed updated by user %d", userID))
	if err := e.persistLocked(ctx, work); err != nil {
		return View{}, err
	}
	e.cur = work

	e.deps.Store.AppendEvent(ctx, work.ID, EventClientSeedUpdated, map[string]interface{}{
		"userId": userID, "clientSeed": seed,
	})
	e.publishLocked(EventClientSeedUpdated, map[string]interface{}{
		"userId":     userID,
		"clientSeed": seed,
	})
	return work.view(e.roomID, e.variant.name()), nil
}

// openRoundLocked creates and persists a fresh round. Caller holds e.mu.
func (e *Engine) openRoundLocked(ctx context.Context) error {
	cfg, err := e.deps.Config.RoomConfig(ctx, e.roomID)
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		logger.Log.Info("room disabled, not opening a round", zap.String("room", e.roomID))
		return nil
	}
	e.cfg = cfg

	number, err := e.deps.Store.NextRoundNumber(ctx, e.roomID)
	if err != nil {
		return err
	}
	pair, err := e.deps.Oracle.Commit()
	if err != nil {
		return err
	}

	now := e.deps.Clock.Now()
	st := &roundState{
		Number:           number,
		ServerSeed:       pair.ServerSeed,
		HashedServerSeed: pair.HashedServerSeed,
		ClientSeed:       random.Code(16),
		Nonce:            number,
		Distinct:         make(map[int64]bool),
		StartedAt:        now,
	}
	e.variant.onRoundStart(st, cfg, now)

	row, err := st.toModel(e.roomID, e.variant.name(), e.cfg)
	if err != nil {
		return err
	}
	if err := e.deps.Store.CreateRound(ctx, row); err != nil {
		return err
	}
	st.ID = row.ID
	st.CreatedAt = row.CreatedAt
	e.cur = st

	if st.EndsAt != nil {
		e.scheduleDeadlineLocked(*st.EndsAt)
	}

	logger.Log.Info("round opened",
		zap.String("room", e.roomID),
		zap.Int64("round", st.ID),
		zap.Int64("number", st.Number),
	)
	e.deps.Store.AppendEvent(ctx, st.ID, EventRoundCreated, map[string]interface{}{
		"number": st.Number, "hashedServerSeed": st.HashedServerSeed,
	})
	e.publishLocked(EventRoundCreated, st.view(e.roomID, e.variant.name()))
	return nil
}

// scheduleDeadlineLocked arms the countdown. The epoch counter invalidates
// callbacks from timers that were superseded before firing.
func (e *Engine) scheduleDeadlineLocked(at time.Time) {
	e.deadlineEpoch++
	epoch := e.deadlineEpoch
	roundID := e.cur.ID
	e.deps.Scheduler.ScheduleAt(roundID, at, func() {
		e.onDeadline(roundID, epoch)
	})
}

func (e *Engine) onDeadline(roundID, epoch int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil || e.cur.ID != roundID || epoch != e.deadlineEpoch {
		return
	}
	e.resolveLocked(context.Background())
}

// resolveLocked takes the round from its betting phase to a terminal status:
// draw, payouts, commission, reveal. Caller holds e.mu.
func (e *Engine) resolveLocked(ctx context.Context) {
	st := e.cur
	if st == nil || (!st.accepting() && st.Status != StatusResolving) {
		return
	}

	if st.Status != StatusResolving {
		st.Status = StatusResolving
		if err := e.persistLocked(ctx, st); err != nil {
			logger.Log.Error("persist resolving status", zap.String("room", e.roomID), zap.Error(err))
		}
		e.publishLocked(EventPhaseChanged, map[string]interface{}{"status": StatusResolving})
	}

	if got, want := st.Pot-st.HouseContribution, st.stakeTotal(); got != want {
		e.failRoundLocked(ctx, fmt.Sprintf("pot %d disagrees with staked total %d", got, want))
		return
	}

	out, err := e.variant.resolve(st, e.cfg, e.deps.Oracle)
	if err != nil {
		e.failRoundLocked(ctx, err.Error())
		return
	}
	var paid int64
	for _, p := range out.Payouts {
		paid += p.Amount
	}
	if paid+out.Commission > st.Pot {
		e.failRoundLocked(ctx, fmt.Sprintf("payouts %d + commission %d exceed pot %d", paid, out.Commission, st.Pot))
		return
	}

	// Resolution may be a replay after a crash, so consult the round's
	// ledger entries before moving money. Every variant emits at most one
	// payout per user; a win entry for that user means the credit landed.
	credited, commissionDone, lerr := e.settledEntries(ctx, st.ID)
	if lerr != nil {
		e.retryResolveLocked("read round ledger entries: " + lerr.Error())
		return
	}

	var creditErr error
	for _, p := range out.Payouts {
		if credited[p.UserID] {
			continue
		}
		desc := fmt.Sprintf("won %s round %d", e.roomID, st.Number)
		if err := e.deps.Ledger.CreditPayout(ctx, p.UserID, p.Amount, st.ID, desc); err != nil {
			logger.Log.Error("payout credit failed",
				zap.String("room", e.roomID),
				zap.Int64("round", st.ID),
				zap.Int64("user", p.UserID),
				zap.Int64("amount", p.Amount),
				zap.Error(err),
			)
			creditErr = err
		}
	}
	if !commissionDone {
		commDesc := fmt.Sprintf("commission %s round %d", e.roomID, st.Number)
		if err := e.deps.Ledger.RecordCommission(ctx, out.Commission, st.ID, commDesc); err != nil {
			logger.Log.Error("commission entry failed", zap.String("room", e.roomID), zap.Error(err))
			creditErr = err
		}
	}
	if creditErr != nil {
		e.retryResolveLocked(creditErr.Error())
		return
	}

	now := e.deps.Clock.Now()
	st.Outcome = out
	st.Status = StatusFinished
	st.appendLog(fmt.Sprintf("resolved, %d winner(s)", len(out.WinnerIDs)))
	row, perr := st.toModel(e.roomID, e.variant.name(), e.cfg)
	if perr == nil {
		row.EndedAt = &now
		perr = e.deps.Store.SaveSnapshot(ctx, row)
	}
	if perr != nil {
		logger.Log.Error("persist finished round", zap.String("room", e.roomID), zap.Error(perr))
	}

	logger.Log.Info("round resolved",
		zap.String("room", e.roomID),
		zap.Int64("round", st.ID),
		zap.Int64("pot", st.Pot),
		zap.Int64("commission", out.Commission),
	)
	e.deps.Store.AppendEvent(ctx, st.ID, EventRoundResolved, st.view(e.roomID, e.variant.name()))
	e.publishLocked(EventRoundResolved, st.view(e.roomID, e.variant.name()))
	e.scheduleNextLocked()
}

// settledEntries reports which payout credits and whether the commission
// entry already exist for a round, keyed off the round's ledger entries.
func (e *Engine) settledEntries(ctx context.Context, roundID int64) (map[int64]bool, bool, error) {
	entries, err := e.deps.Ledger.RoundTransactions(ctx, roundID)
	if err != nil {
		return nil, false, err
	}
	credited := make(map[int64]bool)
	var commissionDone bool
	for _, tr := range entries {
		switch tr.Kind {
		case "win":
			if tr.UserID != nil {
				credited[*tr.UserID] = true
			}
		case "commission":
			commissionDone = true
		}
	}
	return credited, commissionDone, nil
}

// retryResolveLocked leaves the round in resolving and re-arms resolution
// after the cooldown. The round must not finish while a payout entry is
// missing; resolution replays until every credit lands.
func (e *Engine) retryResolveLocked(reason string) {
	logger.Log.Error("resolution incomplete, retrying",
		zap.String("room", e.roomID),
		zap.Int64("round", e.cur.ID),
		zap.String("reason", reason),
	)
	e.publishLocked(EventRoundError, map[string]interface{}{
		"reason":    "payout pending",
		"willRetry": true,
	})
	e.scheduleDeadlineLocked(e.deps.Clock.Now().Add(roundCooldown))
}

// failRoundLocked refunds every stake and marks the round errored. The house
// contribution is virtual and is simply not paid out. Refunds consult the
// round's ledger entries first so a replayed failure cannot refund twice.
func (e *Engine) failRoundLocked(ctx context.Context, reason string) {
	st := e.cur
	logger.Log.Error("round failed, refunding stakes",
		zap.String("room", e.roomID),
		zap.Int64("round", st.ID),
		zap.String("reason", reason),
	)

	refunded := make(map[int64]int64)
	if entries, err := e.deps.Ledger.RoundTransactions(ctx, st.ID); err == nil {
		for _, tr := range entries {
			if tr.Kind == "refund" && tr.UserID != nil {
				refunded[*tr.UserID] += tr.Amount
			}
		}
	} else {
		logger.Log.Error("read round ledger entries before refunds", zap.Error(err))
	}

	for _, p := range st.Participants {
		due := p.TotalStake - refunded[p.UserID]
		if due <= 0 {
			continue
		}
		desc := fmt.Sprintf("refund %s round %d", e.roomID, st.Number)
		if err := e.deps.Ledger.Refund(ctx, p.UserID, due, st.ID, desc); err != nil {
			logger.Log.Error("stake refund failed",
				zap.Int64("user", p.UserID),
				zap.Int64("amount", due),
				zap.Error(err),
			)
		}
	}

	now := e.deps.Clock.Now()
	st.Status = StatusError
	st.appendLog("round errored: " + reason)
	row, perr := st.toModel(e.roomID, e.variant.name(), e.cfg)
	if perr == nil {
		row.EndedAt = &now
		perr = e.deps.Store.SaveSnapshot(ctx, row)
	}
	if perr != nil {
		logger.Log.Error("persist errored round", zap.String("room", e.roomID), zap.Error(perr))
	}

	e.deps.Store.AppendEvent(ctx, st.ID, EventRoundError, map[string]interface{}{"reason": reason})
	e.publishLocked(EventRoundError, map[string]interface{}{"reason": reason})
	e.scheduleNextLocked()
}

// scheduleNextLocked opens the next round after the cooldown, keyed by the
// terminal round's ID so Stop can cancel it.
func (e *Engine) scheduleNextLocked() {
	roundID := e.cur.ID
	at := e.deps.Clock.Now().Add(roundCooldown)
	e.deps.Scheduler.ScheduleAt(roundID, at, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.cur != nil && e.cur.accepting() {
			return
		}
		if err := e.openRoundLocked(context.Background()); err != nil {
			logger.Log.Error("open next round", zap.String("room", e.roomID), zap.Error(err))
		}
	})
}

func (e *Engine) persistLocked(ctx context.Context, st *roundState) error {
	row, err := st.toModel(e.roomID, e.variant.name(), e.cfg)
	if err != nil {
		return err
	}
	return e.deps.Store.SaveSnapshot(ctx, row)
}

func (e *Engine) publishLocked(eventType string, data interface{}) {
	e.deps.Notifier.Publish(Event{
		Type:   eventType,
		RoomID: e.roomID,
		Data:   data,
		At:     e.deps.Clock.Now(),
	})
}

// decodeFrozenConfig reads the configuration frozen onto the round at
// creation, so recovery resolves with the rules the bets were placed under.
func decodeFrozenConfig(row *model.Round) (settings.RoomConfig, error) {
	if len(row.ConfigJSON) == 0 {
		return settings.RoomConfig{}, fmt.Errorf("round %d has no frozen config", row.ID)
	}
	var cfg settings.RoomConfig
	if err := json.Unmarshal(row.ConfigJSON, &cfg); err != nil {
		return settings.RoomConfig{}, err
	}
	return cfg, nil
}
