package model

import (
	"time"

	"gorm.io/datatypes"
)

// 1. Identity

type User struct {
	ID                   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Phone                string `gorm:"unique;not null" json:"phone"`
	Nickname             string `json:"nickname"`
	Avatar               string `json:"avatar"`
	InviteCode           string `gorm:"unique" json:"inviteCode"`
	Status               string `gorm:"default:normal;not null" json:"status"` // normal/banned
	GamingSuspendedUntil *time.Time `json:"gamingSuspendedUntil,omitempty"`
	SuspendReason        string     `json:"suspendReason,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// SuspendedAt reports whether the user is serving a gaming suspension at t.
func (u *User) SuspendedAt(t time.Time) bool {
	return u.GamingSuspendedUntil != nil && t.Before(*u.GamingSuspendedUntil)
}

type Admin struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"unique;not null"`
	PasswordHash string `gorm:"not null"`
	DisplayName  string
	Status       string `gorm:"default:active;not null"` // active/disabled
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// 2. Wallet & ledger

type Wallet struct {
	UserID           int64 `gorm:"primaryKey" json:"userId"`
	BalanceAvailable int64 `json:"balanceAvailable"`
	TotalDeposited   int64 `json:"totalDeposited"`
	TotalWon         int64 `json:"totalWon"`
	TotalWagered     int64 `json:"totalWagered"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Transaction is an immutable ledger entry: one balance mutation, created
// once and never rewritten (admins may flip Status on pending withdrawals,
// nothing else).
type Transaction struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      *int64 `gorm:"index" json:"userId,omitempty"` // nil for house-only entries
	Kind        string `gorm:"size:24;not null;index" json:"kind"` // bet/win/commission/refund/deposit/withdrawal
	Amount      int64  `gorm:"not null" json:"amount"`
	Currency    string `gorm:"size:16;default:coins" json:"currency"`
	RoundID     *int64 `gorm:"index" json:"roundId,omitempty"`
	Description string `gorm:"size:255" json:"description"`
	Status      string `gorm:"size:32;default:completed;not null" json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// 3. Rounds

// Round is the durable snapshot of one wagering round. The owning room
// engine is its only writer; once Status is finished or error the row is
// immutable and doubles as the provably-fair audit record.
type Round struct {
	ID                    int64  `gorm:"primaryKey;autoIncrement"`
	RoomID                string `gorm:"size:64;not null;uniqueIndex:idx_room_round,priority:1"`
	RoundNumber           int64  `gorm:"not null;uniqueIndex:idx_room_round,priority:2"`
	Variant               string `gorm:"size:32;not null"`
	Status                string `gorm:"size:16;not null;index"` // open/closing/resolving/finished/error
	Pot                   int64
	HouseContribution     int64
	CommissionRatePercent int
	CommissionAmount      int64
	ServerSeed            string `gorm:"size:128"`
	HashedServerSeed      string `gorm:"size:128"`
	ClientSeed            string `gorm:"size:64"`
	Nonce                 int64
	WinnerID              *int64
	ParticipantsJSON      datatypes.JSON `gorm:"type:jsonb"`
	StakesJSON            datatypes.JSON `gorm:"type:jsonb"`
	OutcomeJSON           datatypes.JSON `gorm:"type:jsonb"`
	ConfigJSON            datatypes.JSON `gorm:"type:jsonb"` // room config frozen at round creation
	LogJSON               datatypes.JSON `gorm:"type:jsonb"`
	StartedAt             time.Time
	DeadlineAt            *time.Time // countdown deadline (pool-draw, ascending-bid)
	EndsAt                *time.Time // absolute close (field-lottery)
	EndedAt               *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// RoundEvent is the append-only per-round event log. Rows are ordered by ID.
type RoundEvent struct {
	ID          int64          `gorm:"primaryKey;autoIncrement"`
	RoundID     int64          `gorm:"not null;index"`
	Type        string         `gorm:"size:32;not null"`
	PayloadJSON datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time
}

// 4. Configuration

// GameSetting holds the per-room configuration. It may change between
// rounds; engines copy it onto the Round at creation so it never changes
// mid-round.
type GameSetting struct {
	ID         int64          `gorm:"primaryKey;autoIncrement"`
	RoomID     string         `gorm:"size:64;unique;not null"`
	Variant    string         `gorm:"size:32;not null"`
	Name       string         `gorm:"size:128"`
	Enabled    bool           `gorm:"default:true"`
	ConfigJSON datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
