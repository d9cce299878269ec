package payment

import (
	"context"
	"fmt"

	"wager-service/internal/config"
	"wager-service/internal/model"
	"wager-service/internal/service/ledger"
	appErr "wager-service/pkg/errors"
	"wager-service/pkg/logger"

	"go.uber.org/zap"
)

// Service converts external money movement into ledger entries. Deposits
// credit immediately at the configured rate; withdrawals debit immediately
// and leave a pending entry for operators to pay out.
type Service struct {
	ledger *ledger.Service
	cfg    config.PaymentConfig
}

func New(ledgerSvc *ledger.Service, cfg config.PaymentConfig) *Service {
	return &Service{ledger: ledgerSvc, cfg: cfg}
}

// Deposit credits amount*rate coins against an external payment reference.
func (s *Service) Deposit(ctx context.Context, userID, amount int64, reference string) (int64, error) {
	if amount <= 0 {
		return 0, appErr.ErrInvalidAmount
	}
	rate := s.cfg.DepositRate
	if rate <= 0 {
		rate = 1
	}
	coins := amount * rate
	err := s.ledger.Credit(ctx, &userID, ledger.EntryParams{
		Kind:        "deposit",
		Amount:      coins,
		Description: fmt.Sprintf("deposit ref %s", reference),
	})
	if err != nil {
		return 0, err
	}
	logger.Log.Info("deposit credited",
		zap.Int64("user", userID),
		zap.Int64("coins", coins),
		zap.String("reference", reference),
	)
	return coins, nil
}

// Withdraw debits the coins up front and records a pending withdrawal entry.
// The debit-first order means a withdrawal can never overdraw even if the
// operator payout lags.
func (s *Service) Withdraw(ctx context.Context, userID, coins int64, account string) error {
	if coins <= 0 {
		return appErr.ErrInvalidAmount
	}
	if coins < s.cfg.MinWithdrawal {
		return appErr.ErrBelowMinimumOut
	}
	err := s.ledger.Debit(ctx, userID, ledger.EntryParams{
		Kind:        "withdrawal",
		Amount:      coins,
		Description: fmt.Sprintf("withdraw to %s", account),
		Status:      "pending",
	})
	if err != nil {
		return err
	}
	logger.Log.Info("withdrawal requested",
		zap.Int64("user", userID),
		zap.Int64("coins", coins),
	)
	return nil
}

// Wallet returns the user's current wallet.
func (s *Service) Wallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.ledger.Balance(ctx, userID)
}

// History returns the user's most recent ledger entries.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]model.Transaction, error) {
	return s.ledger.Transactions(ctx, userID, limit)
}
