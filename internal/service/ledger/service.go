package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"wager-service/internal/model"
	appErr "wager-service/pkg/errors"
	"wager-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxAttempts  = 3
	retryBackoff = 50 * time.Millisecond
)

// Service owns every wallet balance mutation. Each mutation runs inside a
// database transaction that updates the wallet and appends exactly one
// Transaction row; partial writes never commit. Entries for the same user
// are serialized through an in-process mutex so concurrent bets cannot
// double-spend a balance.
type Service struct {
	db    *gorm.DB
	locks sync.Map // userID -> *sync.Mutex
}

func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

// EntryParams describes one ledger entry. Amount is always positive; Debit
// and Credit decide the direction.
type EntryParams struct {
	Kind        string
	Amount      int64
	Currency    string
	RoundID     *int64
	Description string
	Status      string
}

func (p *EntryParams) normalize() {
	if p.Currency == "" {
		p.Currency = "coins"
	}
	if p.Status == "" {
		p.Status = "completed"
	}
}

func (s *Service) userLock(userID int64) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Debit removes Amount from the user's available balance and records the
// entry. Returns ErrInsufficientFunds without retrying when the balance
// cannot cover the amount; transient database errors are retried up to
// maxAttempts times.
func (s *Service) Debit(ctx context.Context, userID int64, p EntryParams) error {
	if p.Amount <= 0 {
		return appErr.ErrInvalidAmount
	}
	p.normalize()

	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	return s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			wallet, err := ensureWallet(tx, userID)
			if err != nil {
				return err
			}
			if wallet.BalanceAvailable < p.Amount {
				return appErr.ErrInsufficientFunds
			}
			wallet.BalanceAvailable -= p.Amount
			switch p.Kind {
			case "bet":
				wallet.TotalWagered += p.Amount
			case "withdrawal":
				// available balance already reduced; nothing extra to track
			}
			if err := tx.Save(wallet).Error; err != nil {
				return err
			}
			entry := model.Transaction{
				UserID:      &userID,
				Kind:        p.Kind,
				Amount:      -p.Amount,
				Currency:    p.Currency,
				RoundID:     p.RoundID,
				Description: p.Description,
				Status:      p.Status,
			}
			return tx.Create(&entry).Error
		})
	})
}

// Credit adds Amount to a user's balance, or records a house-only entry when
// userID is nil (commission sweeps have no wallet to touch).
func (s *Service) Credit(ctx context.Context, userID *int64, p EntryParams) error {
	if p.Amount <= 0 {
		return appErr.ErrInvalidAmount
	}
	p.normalize()

	if userID == nil {
		return s.withRetry(ctx, func() error {
			entry := model.Transaction{
				Kind:        p.Kind,
				Amount:      p.Amount,
				Currency:    p.Currency,
				RoundID:     p.RoundID,
				Description: p.Description,
				Status:      p.Status,
			}
			return s.db.WithContext(ctx).Create(&entry).Error
		})
	}

	uid := *userID
	mu := s.userLock(uid)
	mu.Lock()
	defer mu.Unlock()

	return s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			wallet, err := ensureWallet(tx, uid)
			if err != nil {
				return err
			}
			wallet.BalanceAvailable += p.Amount
			switch p.Kind {
			case "win":
				wallet.TotalWon += p.Amount
			case "deposit":
				wallet.TotalDeposited += p.Amount
			}
			if err := tx.Save(wallet).Error; err != nil {
				return err
			}
			entry := model.Transaction{
				UserID:      &uid,
				Kind:        p.Kind,
				Amount:      p.Amount,
				Currency:    p.Currency,
				RoundID:     p.RoundID,
				Description: p.Description,
				Status:      p.Status,
			}
			return tx.Create(&entry).Error
		})
	})
}

// DebitForBet takes the stake for one bet.
func (s *Service) DebitForBet(ctx context.Context, userID, amount int64, roundID int64, desc string) error {
	return s.Debit(ctx, userID, EntryParams{
		Kind:        "bet",
		Amount:      amount,
		RoundID:     &roundID,
		Description: desc,
	})
}

// CreditPayout pays out winnings for a resolved round.
func (s *Service) CreditPayout(ctx context.Context, userID, amount int64, roundID int64, desc string) error {
	return s.Credit(ctx, &userID, EntryParams{
		Kind:        "win",
		Amount:      amount,
		RoundID:     &roundID,
		Description: desc,
	})
}

// Refund returns a stake after a failed bet persist or an errored round.
func (s *Service) Refund(ctx context.Context, userID, amount int64, roundID int64, desc string) error {
	return s.Credit(ctx, &userID, EntryParams{
		Kind:        "refund",
		Amount:      amount,
		RoundID:     &roundID,
		Description: desc,
	})
}

// RecordCommission appends the house commission entry for a round.
func (s *Service) RecordCommission(ctx context.Context, amount int64, roundID int64, desc string) error {
	if amount == 0 {
		return nil
	}
	return s.Credit(ctx, nil, EntryParams{
		Kind:        "commission",
		Amount:      amount,
		RoundID:     &roundID,
		Description: desc,
	})
}

// Balance returns the wallet for a user, creating a zeroed one on first read.
func (s *Service) Balance(ctx context.Context, userID int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := s.db.WithContext(ctx).
		Where(model.Wallet{UserID: userID}).
		FirstOrCreate(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Transactions returns the most recent ledger entries for a user.
func (s *Service) Transactions(ctx context.Context, userID int64, limit int) ([]model.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []model.Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// RoundTransactions returns every ledger entry tied to a round, for audits.
func (s *Service) RoundTransactions(ctx context.Context, roundID int64) ([]model.Transaction, error) {
	var entries []model.Transaction
	err := s.db.WithContext(ctx).
		Where("round_id = ?", roundID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

func ensureWallet(tx *gorm.DB, userID int64) (*model.Wallet, error) {
	var wallet model.Wallet
	if err := tx.Where(model.Wallet{UserID: userID}).FirstOrCreate(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// withRetry retries transient failures. Sentinel errors describe a business
// outcome, not a fault, so they return immediately.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, appErr.ErrInsufficientFunds) || errors.Is(err, appErr.ErrInvalidAmount) {
			return err
		}
		if attempt < maxAttempts {
			logger.Log.Warn("ledger entry failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}
	}
	logger.Log.Error("ledger entry failed after retries", zap.Error(err))
	return err
}
