package round

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"wager-service/internal/model"
	appErr "wager-service/pkg/errors"
	"wager-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	storeMaxAttempts = 3
	storeBackoff     = 50 * time.Millisecond
)

// Store persists round snapshots and the append-only event log. Writes are
// retried a few times before surfacing an error; losing a snapshot write
// aborts the bet that caused it, so the retries keep transient database
// hiccups from rejecting players.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateRound(ctx context.Context, row *model.Round) error {
	return s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Create(row).Error
	})
}

func (s *Store) SaveSnapshot(ctx context.Context, row *model.Round) error {
	return s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Save(row).Error
	})
}

// AppendEvent records one round event. Event loss is tolerable, so failures
// are logged rather than returned.
func (s *Store) AppendEvent(ctx context.Context, roundID int64, eventType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Error("marshal round event", zap.Error(err))
		return
	}
	row := model.RoundEvent{
		RoundID:     roundID,
		Type:        eventType,
		PayloadJSON: datatypes.JSON(raw),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		logger.Log.Error("append round event",
			zap.Int64("round", roundID),
			zap.String("type", eventType),
			zap.Error(err),
		)
	}
}

// NextRoundNumber returns 1 + the highest round number the room has used.
func (s *Store) NextRoundNumber(ctx context.Context, roomID string) (int64, error) {
	var highest int64
	err := s.db.WithContext(ctx).
		Model(&model.Round{}).
		Where("room_id = ?", roomID).
		Select("COALESCE(MAX(round_number), 0)").
		Scan(&highest).Error
	if err != nil {
		return 0, err
	}
	return highest + 1, nil
}

// LatestActiveRound returns the room's newest round that has not reached a
// terminal status, or nil when every round is settled.
func (s *Store) LatestActiveRound(ctx context.Context, roomID string) (*model.Round, error) {
	var row model.Round
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND status IN ?", roomID, []string{StatusOpen, StatusClosing, StatusResolving}).
		Order("id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) GetRound(ctx context.Context, roundID int64) (*model.Round, error) {
	var row model.Round
	err := s.db.WithContext(ctx).First(&row, roundID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErr.ErrRoundNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FinishedRounds returns a room's most recent terminal rounds.
func (s *Store) FinishedRounds(ctx context.Context, roomID string, limit int) ([]model.Round, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []model.Round
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND status IN ?", roomID, []string{StatusFinished, StatusError}).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Events returns the event log of one round in append order.
func (s *Store) Events(ctx context.Context, roundID int64) ([]model.RoundEvent, error) {
	var rows []model.RoundEvent
	err := s.db.WithContext(ctx).
		Where("round_id = ?", roundID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= storeMaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt < storeMaxAttempts {
			logger.Log.Warn("round store write failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(storeBackoff * time.Duration(attempt)):
			}
		}
	}
	return err
}
