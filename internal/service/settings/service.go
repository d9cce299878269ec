package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wager-service/internal/config"
	"wager-service/internal/model"
	appErr "wager-service/pkg/errors"
	"wager-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	VariantPoolDraw     = "pool_draw"
	VariantAscendingBid = "ascending_bid"
	VariantFieldLottery = "field_lottery"
)

// RoomConfig is the effective configuration of one room. Engines read a copy
// at round creation and freeze it onto the round; edits apply from the next
// round onward.
type RoomConfig struct {
	RoomID                string `json:"roomId"`
	Name                  string `json:"name"`
	Variant               string `json:"variant"`
	Currency              string `json:"currency"`
	Enabled               bool   `json:"enabled"`
	MinStake              int64  `json:"minStake"`
	MaxStakePerPlayer     int64  `json:"maxStakePerPlayer"`
	MinDistinctBettors    int    `json:"minDistinctBettors"`
	FixedBid              int64  `json:"fixedBid"`
	MinStakePerField      int64  `json:"minStakePerField"`
	FieldCount            int    `json:"fieldCount"`
	TimerSeconds          int    `json:"timerSeconds"`
	RoundDurationMinutes  int    `json:"roundDurationMinutes"`
	CommissionRatePercent int    `json:"commissionRatePercent"`
	HouseContribution     int64  `json:"houseContribution"`
}

func (c RoomConfig) Validate() error {
	switch c.Variant {
	case VariantPoolDraw:
		if c.MinStake <= 0 || c.TimerSeconds <= 0 {
			return appErr.ErrInvalidRoomSetting
		}
		if c.MaxStakePerPlayer > 0 && c.MaxStakePerPlayer < c.MinStake {
			return appErr.ErrInvalidRoomSetting
		}
		// a draw needs at least two distinct players; zero means default
		if c.MinDistinctBettors < 0 || c.MinDistinctBettors == 1 {
			return appErr.ErrInvalidRoomSetting
		}
	case VariantAscendingBid:
		if c.FixedBid <= 0 || c.TimerSeconds <= 0 {
			return appErr.ErrInvalidRoomSetting
		}
		if c.HouseContribution < 0 {
			return appErr.ErrInvalidRoomSetting
		}
	case VariantFieldLottery:
		if c.MinStakePerField <= 0 || c.FieldCount < 2 || c.RoundDurationMinutes <= 0 {
			return appErr.ErrInvalidRoomSetting
		}
	default:
		return appErr.ErrInvalidRoomSetting
	}
	if c.CommissionRatePercent < 0 || c.CommissionRatePercent > 100 {
		return appErr.ErrInvalidRoomSetting
	}
	return nil
}

// Service stores per-room configuration in the game_settings table and hands
// effective RoomConfig values to the round engines.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

// SeedDefaults inserts rooms from the config file that do not yet exist in
// the database. Existing rows win; editing the file never silently reverts
// an admin change.
func (s *Service) SeedDefaults(ctx context.Context, rooms []config.RoomSeedConfig) error {
	for _, seed := range rooms {
		rc := RoomConfig{
			RoomID:                seed.ID,
			Name:                  seed.Name,
			Variant:               seed.Variant,
			Currency:              seed.Currency,
			Enabled:               true,
			MinStake:              seed.MinStake,
			MaxStakePerPlayer:     seed.MaxStakePerPlayer,
			MinDistinctBettors:    seed.MinDistinctBettors,
			FixedBid:              seed.FixedBid,
			MinStakePerField:      seed.MinStakePerField,
			FieldCount:            seed.FieldCount,
			TimerSeconds:          seed.TimerSeconds,
			RoundDurationMinutes:  seed.RoundDurationMinutes,
			CommissionRatePercent: seed.CommissionRatePercent,
			HouseContribution:     seed.HouseContribution,
		}
		if err := rc.Validate(); err != nil {
			return fmt.Errorf("seed room %q: %w", seed.ID, err)
		}

		var existing model.GameSetting
		err := s.db.WithContext(ctx).Where("room_id = ?", seed.ID).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		raw, err := json.Marshal(rc)
		if err != nil {
			return err
		}
		row := model.GameSetting{
			RoomID:     seed.ID,
			Variant:    seed.Variant,
			Name:       seed.Name,
			Enabled:    true,
			ConfigJSON: datatypes.JSON(raw),
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
		logger.Log.Info("seeded room setting",
			zap.String("room", seed.ID),
			zap.String("variant", seed.Variant),
		)
	}
	return nil
}

// RoomConfig loads the effective configuration for one room.
func (s *Service) RoomConfig(ctx context.Context, roomID string) (RoomConfig, error) {
	var row model.GameSetting
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RoomConfig{}, appErr.ErrRoomSettingNotFound
	}
	if err != nil {
		return RoomConfig{}, err
	}
	return decodeRow(&row)
}

// ListRoomIDs returns the IDs of every enabled room.
func (s *Service) ListRoomIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&model.GameSetting{}).
		Where("enabled = ?", true).
		Order("room_id ASC").
		Pluck("room_id", &ids).Error
	return ids, err
}

// ListRooms returns the effective configuration of every room, enabled or
// not, for the admin console.
func (s *Service) ListRooms(ctx context.Context) ([]RoomConfig, error) {
	var rows []model.GameSetting
	if err := s.db.WithContext(ctx).Order("room_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]RoomConfig, 0, len(rows))
	for i := range rows {
		rc, err := decodeRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, nil
}

// UpdateRoom replaces a room's configuration. The variant is fixed at seed
// time; attempts to change it are rejected.
func (s *Service) UpdateRoom(ctx context.Context, roomID string, rc RoomConfig) (RoomConfig, error) {
	var row model.GameSetting
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RoomConfig{}, appErr.ErrRoomSettingNotFound
	}
	if err != nil {
		return RoomConfig{}, err
	}

	rc.RoomID = roomID
	if rc.Variant == "" {
		rc.Variant = row.Variant
	}
	if rc.Variant != row.Variant {
		return RoomConfig{}, appErr.ErrInvalidRoomSetting
	}
	if err := rc.Validate(); err != nil {
		return RoomConfig{}, err
	}

	raw, err := json.Marshal(rc)
	if err != nil {
		return RoomConfig{}, err
	}
	row.Name = rc.Name
	row.Enabled = rc.Enabled
	row.ConfigJSON = datatypes.JSON(raw)
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return RoomConfig{}, err
	}
	return rc, nil
}

func decodeRow(row *model.GameSetting) (RoomConfig, error) {
	var rc RoomConfig
	if err := json.Unmarshal(row.ConfigJSON, &rc); err != nil {
		return RoomConfig{}, fmt.Errorf("decode room %q config: %w", row.RoomID, err)
	}
	rc.RoomID = row.RoomID
	rc.Variant = row.Variant
	rc.Name = row.Name
	rc.Enabled = row.Enabled
	return rc, nil
}
