package round

import (
	"time"

	"wager-service/internal/service/fair"
	"wager-service/internal/service/settings"
	appErr "wager-service/pkg/errors"
)

// fieldLotteryVariant: players stake on numbered fields until a fixed close
// time, one field is drawn, and the pot minus commission is split among the
// winning field's backers in proportion to their stakes. The close time is
// set at round creation and never moves, so these rounds spend their whole
// life in the closing status.
type fieldLotteryVariant struct{}

func (fieldLotteryVariant) name() string { return settings.VariantFieldLottery }

func (fieldLotteryVariant) onRoundStart(st *roundState, cfg settings.RoomConfig, now time.Time) {
	st.Status = StatusClosing
	endsAt := now.Add(time.Duration(cfg.RoundDurationMinutes) * time.Minute)
	st.EndsAt = &endsAt
}

func (fieldLotteryVariant) validateStake(st *roundState, cfg settings.RoomConfig, req BetRequest) error {
	if req.Field < 1 || req.Field > cfg.FieldCount {
		return appErr.ErrInvalidField
	}
	if req.Amount < cfg.MinStakePerField {
		return appErr.ErrBelowMinimumStake
	}
	return nil
}

func (fieldLotteryVariant) applyStake(st *roundState, _ settings.RoomConfig, req BetRequest, now time.Time) timerDirective {
	recordStake(st, req, now)
	return timerNone
}

func (fieldLotteryVariant) resolve(st *roundState, cfg settings.RoomConfig, oracle *fair.Oracle) (*Outcome, error) {
	value, err := oracle.Draw(st.ServerSeed, st.ClientSeed, st.Nonce, int64(cfg.FieldCount))
	if err != nil {
		return nil, err
	}
	winningField := int(value) + 1

	// Aggregate each user's stake on the winning field, keeping first-stake
	// order so payouts list deterministically.
	var (
		order        []int64
		stakeOnField = make(map[int64]int64)
		names        = make(map[int64]string)
		totalWinning int64
	)
	for _, s := range st.Stakes {
		if s.Field != winningField {
			continue
		}
		if _, seen := stakeOnField[s.UserID]; !seen {
			order = append(order, s.UserID)
			names[s.UserID] = s.Username
		}
		stakeOnField[s.UserID] += s.Amount
		totalWinning += s.Amount
	}

	commission := commissionOf(st.Pot, cfg.CommissionRatePercent)
	distributable := st.Pot - commission

	out := &Outcome{
		Value:      value,
		Space:      int64(cfg.FieldCount),
		Field:      winningField,
		WinnerIDs:  order,
		Commission: commission,
	}
	if totalWinning == 0 {
		// Nobody backed the drawn field; the house keeps the pot.
		out.Remainder = distributable
		return out, nil
	}

	var paid int64
	for _, uid := range order {
		amount := stakeOnField[uid] * distributable / totalWinning
		paid += amount
		out.Payouts = append(out.Payouts, Payout{
			UserID:     uid,
			Username:   names[uid],
			Amount:     amount,
			StakeOnWin: stakeOnField[uid],
		})
	}
	out.Remainder = distributable - paid
	return out, nil
}
