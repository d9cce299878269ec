package round

import (
	"fmt"
	"time"

	"wager-service/internal/service/fair"
	"wager-service/internal/service/settings"
	appErr "wager-service/pkg/errors"
)

// poolDrawVariant: everyone bets into one pot, each coin staked maps to a
// slice of the ticket space, one ticket is drawn and its owner takes the pot
// minus commission. The countdown starts once the configured minimum of
// distinct players has joined (default 2) and restarts whenever a further
// new player joins during it.
type poolDrawVariant struct{}

func (poolDrawVariant) name() string { return settings.VariantPoolDraw }

func (poolDrawVariant) onRoundStart(st *roundState, _ settings.RoomConfig, _ time.Time) {
	st.Status = StatusOpen
}

func (poolDrawVariant) validateStake(st *roundState, cfg settings.RoomConfig, req BetRequest) error {
	if req.Amount < cfg.MinStake {
		return appErr.ErrBelowMinimumStake
	}
	if cfg.MaxStakePerPlayer > 0 {
		var existing int64
		if p := st.participant(req.UserID); p != nil {
			existing = p.TotalStake
		}
		if existing+req.Amount > cfg.MaxStakePerPlayer {
			return appErr.ErrAboveMaximumStake
		}
	}
	return nil
}

func (poolDrawVariant) applyStake(st *roundState, cfg settings.RoomConfig, req BetRequest, now time.Time) timerDirective {
	newPlayer := !st.Distinct[req.UserID]
	recordStake(st, req, now)
	poolDrawTickets(st)

	if !newPlayer {
		return timerNone
	}
	need := cfg.MinDistinctBettors
	if need < 2 {
		need = 2
	}
	switch {
	case len(st.Distinct) == need:
		return timerStart
	case len(st.Distinct) > need && st.Status == StatusClosing:
		return timerReset
	}
	return timerNone
}

// poolDrawTickets recomputes the ticket partition from the current stakes.
// It runs on every accepted stake so snapshots and bet events always carry
// each player's live range. Using the cumulative floor for every boundary
// makes the ranges contiguous and exactly cover [0, PoolDrawTicketSpace),
// so no drawable ticket is unowned.
func poolDrawTickets(st *roundState) {
	pot := st.stakeTotal()
	if pot <= 0 {
		return
	}
	var cum int64
	for i := range st.Participants {
		st.Participants[i].TicketStart = cum * PoolDrawTicketSpace / pot
		cum += st.Participants[i].TotalStake
		st.Participants[i].TicketEnd = cum * PoolDrawTicketSpace / pot
	}
}

func (poolDrawVariant) resolve(st *roundState, cfg settings.RoomConfig, oracle *fair.Oracle) (*Outcome, error) {
	if len(st.Participants) < 2 {
		return nil, fmt.Errorf("pool draw resolved with %d participants", len(st.Participants))
	}
	pot := st.stakeTotal()
	if pot <= 0 {
		return nil, fmt.Errorf("pool draw resolved with empty pot")
	}

	// Recomputed here as well so a round rebuilt from an older snapshot
	// resolves from its current stakes.
	poolDrawTickets(st)

	value, err := oracle.Draw(st.ServerSeed, st.ClientSeed, st.Nonce, PoolDrawTicketSpace)
	if err != nil {
		return nil, err
	}

	var winner *Participant
	for i := range st.Participants {
		p := &st.Participants[i]
		if value >= p.TicketStart && value < p.TicketEnd {
			winner = p
			break
		}
	}
	if winner == nil {
		return nil, fmt.Errorf("ticket %d matched no participant range", value)
	}

	commission := commissionOf(pot, cfg.CommissionRatePercent)
	return &Outcome{
		Value:      value,
		Space:      PoolDrawTicketSpace,
		WinnerIDs:  []int64{winner.UserID},
		Payouts: []Payout{{
			UserID:     winner.UserID,
			Username:   winner.Username,
			Amount:     pot - commission,
			StakeOnWin: winner.TotalStake,
		}},
		Commission: commission,
	}, nil
}
