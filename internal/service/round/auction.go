package round

import (
	"fmt"
	"time"

	"wager-service/internal/service/fair"
	"wager-service/internal/service/settings"
	appErr "wager-service/pkg/errors"
)

// ascendingBidVariant: every bid costs the same fixed amount and grows the
// pot, each bid restarts the countdown, and whoever holds the lead when the
// countdown expires wins. The house seeds the pot so the first bid is worth
// making. No draw is involved; the winner is determined by bid order alone.
type ascendingBidVariant struct{}

func (ascendingBidVariant) name() string { return settings.VariantAscendingBid }

func (ascendingBidVariant) onRoundStart(st *roundState, cfg settings.RoomConfig, _ time.Time) {
	st.Status = StatusOpen
	st.HouseContribution = cfg.HouseContribution
	st.Pot = cfg.HouseContribution
}

func (ascendingBidVariant) validateStake(st *roundState, cfg settings.RoomConfig, req BetRequest) error {
	if req.Amount != cfg.FixedBid {
		return appErr.ErrFixedBidMismatch
	}
	if st.LeaderID == req.UserID {
		return appErr.ErrAlreadyLeadBidder
	}
	return nil
}

func (ascendingBidVariant) applyStake(st *roundState, _ settings.RoomConfig, req BetRequest, now time.Time) timerDirective {
	recordStake(st, req, now)
	st.LeaderID = req.UserID
	return timerReset
}

func (ascendingBidVariant) resolve(st *roundState, cfg settings.RoomConfig, _ *fair.Oracle) (*Outcome, error) {
	if st.LeaderID == 0 {
		return nil, fmt.Errorf("ascending bid resolved without a lead bidder")
	}
	leader := st.participant(st.LeaderID)
	if leader == nil {
		return nil, fmt.Errorf("lead bidder %d missing from participants", st.LeaderID)
	}

	commission := commissionOf(st.Pot, cfg.CommissionRatePercent)
	return &Outcome{
		WinnerIDs: []int64{leader.UserID},
		Payouts: []Payout{{
			UserID:     leader.UserID,
			Username:   leader.Username,
			Amount:     st.Pot - commission,
			StakeOnWin: leader.TotalStake,
		}},
		Commission: commission,
	}, nil
}
