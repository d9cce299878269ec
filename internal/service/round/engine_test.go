package round

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wager-service/internal/model"
	"wager-service/internal/repo"
	"wager-service/internal/service/fair"
	"wager-service/internal/service/ledger"
	"wager-service/internal/service/settings"
	appErr "wager-service/pkg/errors"

	"github.com/coder/quartz"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type stubConfig struct {
	cfgs map[string]settings.RoomConfig
}

func (s stubConfig) RoomConfig(_ context.Context, roomID string) (settings.RoomConfig, error) {
	cfg, ok := s.cfgs[roomID]
	if !ok {
		return settings.RoomConfig{}, appErr.ErrRoomSettingNotFound
	}
	return cfg, nil
}

func (s stubConfig) ListRoomIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.cfgs))
	for id := range s.cfgs {
		ids = append(ids, id)
	}
	return ids, nil
}

type captureNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *captureNotifier) Publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *captureNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Type
	}
	return out
}

func (n *captureNotifier) has(eventType string) bool {
	for _, t := range n.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

// flakyLedger fails win credits on demand while passing everything else
// through to the real ledger.
type flakyLedger struct {
	*ledger.Service
	mu       sync.Mutex
	failWins bool
}

func (f *flakyLedger) setFailWins(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWins = v
}

func (f *flakyLedger) CreditPayout(ctx context.Context, userID, amount int64, roundID int64, desc string) error {
	f.mu.Lock()
	fail := f.failWins
	f.mu.Unlock()
	if fail {
		return errors.New("wallet store unavailable")
	}
	return f.Service.CreditPayout(ctx, userID, amount, roundID, desc)
}

type harness struct {
	db       *gorm.DB
	clock    *quartz.Mock
	ledger   *ledger.Service
	store    *Store
	notifier *captureNotifier
	engine   *Engine
}

func newHarness(t *testing.T, cfg settings.RoomConfig) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(repo.Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	h := &harness{
		db:       db,
		clock:    quartz.NewMock(t),
		ledger:   ledger.New(db),
		store:    NewStore(db),
		notifier: &captureNotifier{},
	}
	engine, err := NewEngine(cfg, EngineDeps{
		Oracle:    fair.New(),
		Ledger:    h.ledger,
		Store:     h.store,
		Scheduler: NewScheduler(h.clock),
		Notifier:  h.notifier,
		Clock:     h.clock,
		Config:    stubConfig{cfgs: map[string]settings.RoomConfig{cfg.RoomID: cfg}},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	h.engine = engine
	return h
}

func (h *harness) fund(t *testing.T, userID, amount int64) {
	t.Helper()
	err := h.ledger.Credit(context.Background(), &userID, ledger.EntryParams{Kind: "deposit", Amount: amount})
	if err != nil {
		t.Fatalf("fund user %d: %v", userID, err)
	}
}

func (h *harness) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	w, err := h.ledger.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance of %d: %v", userID, err)
	}
	return w.BalanceAvailable
}

func (h *harness) advance(t *testing.T, d time.Duration) {
	t.Helper()
	h.clock.Advance(d).MustWait(context.Background())
}

func poolDrawConfig() settings.RoomConfig {
	return settings.RoomConfig{
		RoomID:                "classic-1",
		Variant:               settings.VariantPoolDraw,
		Enabled:               true,
		MinStake:              10,
		TimerSeconds:          30,
		CommissionRatePercent: 5,
	}
}

func TestPoolDrawLifecycle(t *testing.T) {
	h := newHarness(t, poolDrawConfig())
	ctx := context.Background()
	h.fund(t, 1, 100)
	h.fund(t, 2, 100)

	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	v, ok := h.engine.CurrentRound()
	if !ok || v.Status != StatusOpen {
		t.Fatalf("fresh round status = %q, want open", v.Status)
	}
	if v.HashedServerSeed == "" || v.ServerSeed != "" {
		t.Fatal("open round must publish the hash and withhold the seed")
	}

	v, err := h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Username: "alice", Amount: 10})
	if err != nil {
		t.Fatalf("alice bet: %v", err)
	}
	if v.Status != StatusOpen || v.DeadlineAt != nil {
		t.Fatal("one distinct bettor must not start the countdown")
	}

	v, err = h.engine.PlaceBet(ctx, BetRequest{UserID: 2, Username: "bob", Amount: 30})
	if err != nil {
		t.Fatalf("bob bet: %v", err)
	}
	if v.Status != StatusClosing || v.DeadlineAt == nil {
		t.Fatal("second distinct bettor must start the countdown")
	}
	if v.Pot != 40 {
		t.Fatalf("pot = %d, want 40", v.Pot)
	}

	h.advance(t, 30*time.Second)

	v, _ = h.engine.CurrentRound()
	if v.Status != StatusFinished {
		t.Fatalf("status after deadline = %q, want finished", v.Status)
	}
	if v.ServerSeed == "" || v.Outcome == nil {
		t.Fatal("finished round must reveal seed and outcome")
	}
	oracle := fair.New()
	if !oracle.VerifyCommitment(v.ServerSeed, v.HashedServerSeed) {
		t.Fatal("revealed seed does not match the commitment")
	}
	if !oracle.Verify(v.ServerSeed, v.ClientSeed, v.Nonce, v.Outcome.Space, v.Outcome.Value) {
		t.Fatal("outcome does not verify")
	}
	if v.Outcome.Commission != 2 || v.Outcome.Payouts[0].Amount != 38 {
		t.Fatalf("outcome = %+v, want commission 2 and payout 38", v.Outcome)
	}

	winner := v.Outcome.WinnerIDs[0]
	wantWinner, wantLoser := int64(90+38), int64(70)
	if winner == 2 {
		wantWinner, wantLoser = 70+38, 90
	}
	if got := h.balance(t, winner); got != wantWinner {
		t.Fatalf("winner balance = %d, want %d", got, wantWinner)
	}
	loser := int64(3) - winner
	if got := h.balance(t, loser); got != wantLoser {
		t.Fatalf("loser balance = %d, want %d", got, wantLoser)
	}

	entries, err := h.ledger.RoundTransactions(ctx, v.RoundID)
	if err != nil {
		t.Fatalf("RoundTransactions: %v", err)
	}
	kinds := map[string]int{}
	for _, e := range entries {
		kinds[e.Kind]++
	}
	if kinds["bet"] != 2 || kinds["win"] != 1 || kinds["commission"] != 1 {
		t.Fatalf("ledger kinds = %v, want 2 bets, 1 win, 1 commission", kinds)
	}

	for _, want := range []string{EventRoundCreated, EventBetAccepted, EventPotUpdate, EventPhaseChanged, EventRoundResolved} {
		if !h.notifier.has(want) {
			t.Errorf("missing %s event", want)
		}
	}

	// cooldown, then the next round opens
	h.advance(t, roundCooldown)
	v, ok = h.engine.CurrentRound()
	if !ok || v.Status != StatusOpen || v.Number != 2 {
		t.Fatalf("after cooldown round = %+v, want open round number 2", v)
	}
}

func TestPoolDrawCountdownReset(t *testing.T) {
	h := newHarness(t, poolDrawConfig())
	ctx := context.Background()
	for uid := int64(1); uid <= 3; uid++ {
		h.fund(t, uid, 100)
	}
	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Username: "alice", Amount: 10})
	v, _ := h.engine.PlaceBet(ctx, BetRequest{UserID: 2, Username: "bob", Amount: 10})
	firstDeadline := *v.DeadlineAt

	h.advance(t, 20*time.Second)

	// repeat bettor does not move the deadline
	v, err := h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Username: "alice", Amount: 10})
	if err != nil {
		t.Fatalf("repeat bet: %v", err)
	}
	if !v.DeadlineAt.Equal(firstDeadline) {
		t.Fatal("repeat bettor moved the deadline")
	}

	// a new distinct bettor restarts the countdown
	v, err = h.engine.PlaceBet(ctx, BetRequest{UserID: 3, Username: "carol", Amount: 10})
	if err != nil {
		t.Fatalf("carol bet: %v", err)
	}
	if !v.DeadlineAt.After(firstDeadline) {
		t.Fatal("new distinct bettor did not restart the countdown")
	}

	// the original deadline passing must not resolve the round
	h.advance(t, 10*time.Second)
	v, _ = h.engine.CurrentRound()
	if v.Status != StatusClosing {
		t.Fatalf("status at the superseded deadline = %q, want closing", v.Status)
	}

	h.advance(t, 20*time.Second)
	v, _ = h.engine.CurrentRound()
	if v.Status != StatusFinished {
		t.Fatalf("status after reset deadline = %q, want finished", v.Status)
	}
}

func TestAscendingBidLifecycle(t *testing.T) {
	h := newHarness(t, settings.RoomConfig{
		RoomID:                "auction-1",
		Variant:               settings.VariantAscendingBid,
		Enabled:               true,
		FixedBid:              50,
		TimerSeconds:          15,
		HouseContribution:     100,
		CommissionRatePercent: 10,
	})
	ctx := context.Background()
	h.fund(t, 1, 100)
	h.fund(t, 2, 100)

	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	v, _ := h.engine.CurrentRound()
	if v.Pot != 100 || v.Status != StatusOpen || v.DeadlineAt != nil {
		t.Fatalf("fresh auction = %+v, want open, pot 100, no deadline", v)
	}

	v, err := h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Username: "alice", Amount: 50})
	if err != nil {
		t.Fatalf("alice bid: %v", err)
	}
	if v.Status != StatusClosing || v.LeaderID != 1 {
		t.Fatalf("after first bid: %+v, want closing with alice leading", v)
	}
	firstDeadline := *v.DeadlineAt

	if _, err := h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Username: "alice", Amount: 50}); !errors.Is(err, appErr.ErrAlreadyLeadBidder) {
		t.Fatalf("leader re-bid err = %v, want ErrAlreadyLeadBidder", err)
	}

	h.advance(t, 10*time.Second)
	v, err = h.engine.PlaceBet(ctx, BetRequest{UserID: 2, Username: "bob", Amount: 50})
	if err != nil {
		t.Fatalf("bob bid: %v", err)
	}
	if v.LeaderID != 2 || !v.DeadlineAt.After(firstDeadline) {
		t.Fatal("bob's bid must take the lead and restart the countdown")
	}

	h.advance(t, 15*time.Second)
	v, _ = h.engine.CurrentRound()
	if v.Status != StatusFinished {
		t.Fatalf("status = %q, want finished", v.Status)
	}
	if v.Outcome.WinnerIDs[0] != 2 {
		t.Fatalf("winner = %d, want bob", v.Outcome.WinnerIDs[0])
	}
	// pot 200, commission 20
	if v.Outcome.Commission != 20 || v.Outcome.Payouts[0].Amount != 180 {
		t.Fatalf("outcome = %+v, want commission 20, payout 180", v.Outcome)
	}
	if got := h.balance(t, 2); got != 230 {
		t.Fatalf("bob balance = %d, want 230", got)
	}
	if got := h.balance(t, 1); got != 50 {
		t.Fatalf("alice balance = %d, want 50", got)
	}
}

func TestFieldLotteryLifecycle(t *testing.T) {
	h := newHarness(t, settings.RoomConfig{
		RoomID:                "lottery-1",
		Variant:               settings.VariantFieldLottery,
		Enabled:               true,
		MinStakePerField:      5,
		FieldCount:            10,
		RoundDurationMinutes:  60,
		CommissionRatePercent: 10,
	})
	ctx := context.Background()
	h.fund(t, 1, 200)
	h.fund(t, 2, 200)

	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	v, _ := h.engine.CurrentRound()
	if v.Status != StatusClosing || v.EndsAt == nil {
		t.Fatalf("fresh lottery = %+v, want closing with a fixed end time", v)
	}

	// same package: peek at the seeds to stake deterministically
	h.engine.mu.Lock()
	value, err := fair.New().Draw(h.engine.cur.ServerSeed, h.engine.cur.ClientSeed, h.engine.cur.Nonce, 10)
	h.engine.mu.Unlock()
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	winning := int(value) + 1
	losing := winning%10 + 1

	if _, err := h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Username: "alice", Amount: 30, Field: winning}); err != nil {
		t.Fatalf("alice bet: %v", err)
	}
	if _, err := h.engine.PlaceBet(ctx, BetRequest{UserID: 2, Username: "bob", Amount: 70, Field: losing}); err != nil {
		t.Fatalf("bob bet: %v", err)
	}

	// betting never moves a lottery's end time
	v, _ = h.engine.CurrentRound()
	if v.DeadlineAt != nil {
		t.Fatal("lottery round must not carry a countdown deadline")
	}

	h.advance(t, time.Hour)
	v, _ = h.engine.CurrentRound()
	if v.Status != StatusFinished {
		t.Fatalf("status = %q, want finished", v.Status)
	}
	if v.Outcome.Field != winning {
		t.Fatalf("winning field = %d, want %d", v.Outcome.Field, winning)
	}
	// pot 100, commission 10, alice takes the full distributable 90
	if len(v.Outcome.Payouts) != 1 || v.Outcome.Payouts[0].UserID != 1 || v.Outcome.Payouts[0].Amount != 90 {
		t.Fatalf("payouts = %+v, want alice paid 90", v.Outcome.Payouts)
	}
	if got := h.balance(t, 1); got != 260 {
		t.Fatalf("alice balance = %d, want 260", got)
	}
}

func TestFieldLotteryNoBetsFinishesCleanly(t *testing.T) {
	h := newHarness(t, settings.RoomConfig{
		RoomID:                "lottery-1",
		Variant:               settings.VariantFieldLottery,
		Enabled:               true,
		MinStakePerField:      5,
		FieldCount:            10,
		RoundDurationMinutes:  60,
		CommissionRatePercent: 10,
	})
	ctx := context.Background()
	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.advance(t, time.Hour)
	v, _ := h.engine.CurrentRound()
	if v.Status != StatusFinished {
		t.Fatalf("status = %q, want finished", v.Status)
	}
	if len(v.Outcome.Payouts) != 0 || len(v.Outcome.WinnerIDs) != 0 {
		t.Fatalf("outcome = %+v, want no winners", v.Outcome)
	}

	entries, err := h.ledger.RoundTransactions(ctx, v.RoundID)
	if err != nil {
		t.Fatalf("RoundTransactions: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("ledger entries = %+v, want none for an empty round", entries)
	}
}

func TestPlaceBetRejections(t *testing.T) {
	h := newHarness(t, poolDrawConfig())
	ctx := context.Background()
	h.fund(t, 1, 15)

	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Amount: 5}); !errors.Is(err, appErr.ErrBelowMinimumStake) {
		t.Fatalf("err = %v, want ErrBelowMinimumStake", err)
	}
	if _, err := h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Amount: 20}); !errors.Is(err, appErr.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	until := h.clock.Now().Add(time.Hour)
	if _, err := h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Amount: 10, SuspendedUntil: &until}); !errors.Is(err, appErr.ErrGamingSuspended) {
		t.Fatalf("err = %v, want ErrGamingSuspended", err)
	}
	past := h.clock.Now().Add(-time.Hour)
	if _, err := h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Username: "alice", Amount: 10, SuspendedUntil: &past}); err != nil {
		t.Fatalf("expired suspension still blocks bets: %v", err)
	}

	// failed bets must leave the wallet untouched
	if got := h.balance(t, 1); got != 5 {
		t.Fatalf("balance = %d, want 5 after one accepted 10-coin bet", got)
	}
	v, _ := h.engine.CurrentRound()
	if v.Pot != 10 || len(v.Stakes) != 1 {
		t.Fatalf("round = %+v, want exactly the accepted stake", v)
	}
}

func TestUpdateClientSeed(t *testing.T) {
	h := newHarness(t, poolDrawConfig())
	ctx := context.Background()
	h.fund(t, 1, 100)
	h.fund(t, 2, 100)

	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Username: "alice", Amount: 10})

	if _, err := h.engine.UpdateClientSeed(ctx, 2, "lucky"); !errors.Is(err, appErr.ErrNotParticipant) {
		t.Fatalf("non-participant err = %v, want ErrNotParticipant", err)
	}
	if _, err := h.engine.UpdateClientSeed(ctx, 1, ""); !errors.Is(err, appErr.ErrInvalidClientSeed) {
		t.Fatalf("empty seed err = %v, want ErrInvalidClientSeed", err)
	}

	v, err := h.engine.UpdateClientSeed(ctx, 1, "alice-lucky-7")
	if err != nil {
		t.Fatalf("UpdateClientSeed: %v", err)
	}
	if v.ClientSeed != "alice-lucky-7" {
		t.Fatalf("client seed = %q", v.ClientSeed)
	}
	if !h.notifier.has(EventClientSeedUpdated) {
		t.Error("missing client_seed_updated event")
	}

	h.engine.PlaceBet(ctx, BetRequest{UserID: 2, Username: "bob", Amount: 10})
	h.advance(t, 30*time.Second)

	v, _ = h.engine.CurrentRound()
	if v.Status != StatusFinished {
		t.Fatalf("status = %q, want finished", v.Status)
	}
	if !fair.New().Verify(v.ServerSeed, "alice-lucky-7", v.Nonce, v.Outcome.Space, v.Outcome.Value) {
		t.Fatal("draw did not use the updated client seed")
	}

	if _, err := h.engine.UpdateClientSeed(ctx, 1, "too-late"); !errors.Is(err, appErr.ErrRoundNotAcceptingBets) {
		t.Fatalf("post-resolve err = %v, want ErrRoundNotAcceptingBets", err)
	}
}

func TestPotMatchesStakes(t *testing.T) {
	h := newHarness(t, settings.RoomConfig{
		RoomID:                "auction-1",
		Variant:               settings.VariantAscendingBid,
		Enabled:               true,
		FixedBid:              50,
		TimerSeconds:          15,
		HouseContribution:     100,
		CommissionRatePercent: 10,
	})
	ctx := context.Background()
	h.fund(t, 1, 200)
	h.fund(t, 2, 200)

	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Username: "alice", Amount: 50})
	h.engine.PlaceBet(ctx, BetRequest{UserID: 2, Username: "bob", Amount: 50})
	h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Username: "alice", Amount: 50})

	v, _ := h.engine.CurrentRound()
	var staked int64
	for _, s := range v.Stakes {
		staked += s.Amount
	}
	if v.Pot-v.HouseContribution != staked {
		t.Fatalf("pot %d - house %d != staked %d", v.Pot, v.HouseContribution, staked)
	}
}

func TestRecoveryReschedulesDeadline(t *testing.T) {
	h := newHarness(t, poolDrawConfig())
	ctx := context.Background()
	h.fund(t, 1, 100)
	h.fund(t, 2, 100)

	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Username: "alice", Amount: 10})
	h.engine.PlaceBet(ctx, BetRequest{UserID: 2, Username: "bob", Amount: 30})
	h.engine.Stop()

	// second process against the same database, deadline still ahead
	clock2 := quartz.NewMock(t)
	notifier2 := &captureNotifier{}
	engine2, err := NewEngine(poolDrawConfig(), EngineDeps{
		Oracle:    fair.New(),
		Ledger:    h.ledger,
		Store:     h.store,
		Scheduler: NewScheduler(clock2),
		Notifier:  notifier2,
		Clock:     clock2,
		Config:    stubConfig{cfgs: map[string]settings.RoomConfig{"classic-1": poolDrawConfig()}},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine2.Start(ctx); err != nil {
		t.Fatalf("recovery Start: %v", err)
	}

	v, ok := engine2.CurrentRound()
	if !ok || v.Status != StatusClosing || v.Pot != 40 {
		t.Fatalf("recovered round = %+v, want closing with pot 40", v)
	}

	clock2.Advance(30 * time.Second).MustWait(ctx)
	v, _ = engine2.CurrentRound()
	if v.Status != StatusFinished {
		t.Fatalf("status after recovered deadline = %q, want finished", v.Status)
	}
	if got := h.balance(t, v.Outcome.WinnerIDs[0]); got <= 70 {
		t.Fatalf("winner balance = %d, payout missing", got)
	}
}

func TestResolveReplayDoesNotPayTwice(t *testing.T) {
	h := newHarness(t, poolDrawConfig())
	ctx := context.Background()
	h.fund(t, 1, 100)
	h.fund(t, 2, 100)

	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Username: "alice", Amount: 10})
	h.engine.PlaceBet(ctx, BetRequest{UserID: 2, Username: "bob", Amount: 30})
	h.advance(t, 30*time.Second)

	v, _ := h.engine.CurrentRound()
	if v.Status != StatusFinished {
		t.Fatalf("status = %q, want finished", v.Status)
	}
	winner := v.Outcome.WinnerIDs[0]
	paidBalance := h.balance(t, winner)
	h.engine.Stop()

	// wind the snapshot back to the moment resolution had started but the
	// finished row had not committed, as a crash between the payout credit
	// and the final save would leave it
	err := h.db.Model(&model.Round{}).Where("id = ?", v.RoundID).
		Updates(map[string]interface{}{
			"status":       StatusResolving,
			"outcome_json": nil,
			"winner_id":    nil,
			"ended_at":     nil,
		}).Error
	if err != nil {
		t.Fatalf("rewind snapshot: %v", err)
	}

	clock2 := quartz.NewMock(t)
	engine2, err := NewEngine(poolDrawConfig(), EngineDeps{
		Oracle:    fair.New(),
		Ledger:    h.ledger,
		Store:     h.store,
		Scheduler: NewScheduler(clock2),
		Notifier:  &captureNotifier{},
		Clock:     clock2,
		Config:    stubConfig{cfgs: map[string]settings.RoomConfig{"classic-1": poolDrawConfig()}},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine2.Start(ctx); err != nil {
		t.Fatalf("recovery Start: %v", err)
	}

	// replayed resolution runs on its own goroutine
	waitUntil := time.Now().Add(2 * time.Second)
	for {
		v2, _ := engine2.CurrentRound()
		if v2.Status == StatusFinished {
			break
		}
		if time.Now().After(waitUntil) {
			t.Fatalf("replay did not finish, status %q", v2.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := h.balance(t, winner); got != paidBalance {
		t.Fatalf("winner balance = %d after replay, want %d (paid once)", got, paidBalance)
	}
	entries, err := h.ledger.RoundTransactions(ctx, v.RoundID)
	if err != nil {
		t.Fatalf("RoundTransactions: %v", err)
	}
	kinds := map[string]int{}
	for _, e := range entries {
		kinds[e.Kind]++
	}
	if kinds["win"] != 1 || kinds["commission"] != 1 {
		t.Fatalf("ledger kinds = %v, replay must not duplicate win or commission entries", kinds)
	}
}

func TestResolveRetriesFailedPayout(t *testing.T) {
	h := newHarness(t, poolDrawConfig())
	ctx := context.Background()
	h.fund(t, 1, 100)
	h.fund(t, 2, 100)

	fl := &flakyLedger{Service: h.ledger}
	fl.setFailWins(true)
	engine, err := NewEngine(poolDrawConfig(), EngineDeps{
		Oracle:    fair.New(),
		Ledger:    fl,
		Store:     h.store,
		Scheduler: NewScheduler(h.clock),
		Notifier:  h.notifier,
		Clock:     h.clock,
		Config:    stubConfig{cfgs: map[string]settings.RoomConfig{"classic-1": poolDrawConfig()}},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	engine.PlaceBet(ctx, BetRequest{UserID: 1, Username: "alice", Amount: 10})
	engine.PlaceBet(ctx, BetRequest{UserID: 2, Username: "bob", Amount: 30})
	h.advance(t, 30*time.Second)

	// the credit failed, so the round must stay in resolving
	v, _ := engine.CurrentRound()
	if v.Status != StatusResolving {
		t.Fatalf("status = %q, want resolving while the payout is missing", v.Status)
	}
	entries, err := h.ledger.RoundTransactions(ctx, v.RoundID)
	if err != nil {
		t.Fatalf("RoundTransactions: %v", err)
	}
	for _, e := range entries {
		if e.Kind == "win" {
			t.Fatalf("win entry %+v written despite the failed credit", e)
		}
	}
	if !h.notifier.has(EventRoundError) {
		t.Error("missing round_error event for the pending payout")
	}

	// ledger back up, the scheduled retry completes the round
	fl.setFailWins(false)
	h.advance(t, roundCooldown)

	v, _ = engine.CurrentRound()
	if v.Status != StatusFinished {
		t.Fatalf("status after retry = %q, want finished", v.Status)
	}
	winner := v.Outcome.WinnerIDs[0]
	stakeOf := map[int64]int64{1: 10, 2: 30}
	if got, want := h.balance(t, winner), 100-stakeOf[winner]+38; got != want {
		t.Fatalf("winner balance = %d, want %d", got, want)
	}
	entries, _ = h.ledger.RoundTransactions(ctx, v.RoundID)
	wins := 0
	for _, e := range entries {
		if e.Kind == "win" {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("win entries = %d, want exactly 1", wins)
	}
}

func TestRecoveryResolvesPastDeadline(t *testing.T) {
	h := newHarness(t, poolDrawConfig())
	ctx := context.Background()
	h.fund(t, 1, 100)
	h.fund(t, 2, 100)

	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.engine.PlaceBet(ctx, BetRequest{UserID: 1, Username: "alice", Amount: 10})
	h.engine.PlaceBet(ctx, BetRequest{UserID: 2, Username: "bob", Amount: 30})
	h.engine.Stop()

	// second process comes up an hour after the deadline passed
	clock2 := quartz.NewMock(t)
	clock2.Advance(time.Hour).MustWait(ctx)
	engine2, err := NewEngine(poolDrawConfig(), EngineDeps{
		Oracle:    fair.New(),
		Ledger:    h.ledger,
		Store:     h.store,
		Scheduler: NewScheduler(clock2),
		Notifier:  &captureNotifier{},
		Clock:     clock2,
		Config:    stubConfig{cfgs: map[string]settings.RoomConfig{"classic-1": poolDrawConfig()}},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine2.Start(ctx); err != nil {
		t.Fatalf("recovery Start: %v", err)
	}

	// past-deadline resolution runs on its own goroutine
	deadline := time.Now().Add(2 * time.Second)
	for {
		v, _ := engine2.CurrentRound()
		if v.Status == StatusFinished {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("round not resolved after recovery, status %q", v.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
