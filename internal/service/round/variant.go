package round

import (
	"time"

	"wager-service/internal/service/fair"
	"wager-service/internal/service/settings"
)

type timerDirective int

const (
	timerNone timerDirective = iota
	timerStart
	timerReset
)

// variantLogic captures what differs between the three game types. The
// engine owns locking, persistence, money movement and timers; variants only
// decide stake validity, state mutation and winner selection.
type variantLogic interface {
	name() string

	// onRoundStart sets the variant's initial status and, for fixed-close
	// rounds, the absolute end time.
	onRoundStart(st *roundState, cfg settings.RoomConfig, now time.Time)

	// validateStake runs before any money moves. It must not mutate state.
	validateStake(st *roundState, cfg settings.RoomConfig, req BetRequest) error

	// applyStake records an accepted, already-debited stake and tells the
	// engine what to do with the countdown timer.
	applyStake(st *roundState, cfg settings.RoomConfig, req BetRequest, now time.Time) timerDirective

	// resolve computes the outcome. It must be a pure function of the state
	// and the seeds so the draw is reproducible by auditors.
	resolve(st *roundState, cfg settings.RoomConfig, oracle *fair.Oracle) (*Outcome, error)
}

func variantFor(name string) (variantLogic, bool) {
	switch name {
	case settings.VariantPoolDraw:
		return poolDrawVariant{}, true
	case settings.VariantAscendingBid:
		return ascendingBidVariant{}, true
	case settings.VariantFieldLottery:
		return fieldLotteryVariant{}, true
	}
	return nil, false
}

func commissionOf(pot int64, ratePercent int) int64 {
	return pot * int64(ratePercent) / 100
}

// recordStake appends the stake and keeps the participant aggregate in sync.
func recordStake(st *roundState, req BetRequest, now time.Time) {
	st.Stakes = append(st.Stakes, Stake{
		UserID:   req.UserID,
		Username: req.Username,
		Avatar:   req.Avatar,
		Amount:   req.Amount,
		Field:    req.Field,
		PlacedAt: now,
	})
	if p := st.participant(req.UserID); p != nil {
		p.TotalStake += req.Amount
	} else {
		st.Participants = append(st.Participants, Participant{
			UserID:     req.UserID,
			Username:   req.Username,
			Avatar:     req.Avatar,
			TotalStake: req.Amount,
		})
	}
	st.Pot += req.Amount
	st.Distinct[req.UserID] = true
}
