package service

import (
	"context"

	"wager-service/internal/config"
	"wager-service/internal/service/admin"
	"wager-service/internal/service/auth"
	"wager-service/internal/service/fair"
	"wager-service/internal/service/ledger"
	"wager-service/internal/service/payment"
	"wager-service/internal/service/round"
	"wager-service/internal/service/settings"
	"wager-service/internal/service/user"

	"github.com/coder/quartz"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Container wires the service layer together. Handlers receive the
// container and pick the services they need.
type Container struct {
	DB  *gorm.DB
	RDB *redis.Client

	Users    *user.Service
	Auth     *auth.Service
	Admins   *admin.Service
	Ledger   *ledger.Service
	Payments *payment.Service
	Settings *settings.Service
	Rounds   *round.Service
}

func NewContainer(db *gorm.DB, rdb *redis.Client, notifier round.Notifier) *Container {
	ledgerSvc := ledger.New(db)
	settingsSvc := settings.New(db)
	usersSvc := user.New(db)
	clock := quartz.NewReal()

	roundsSvc := round.NewService(round.EngineDeps{
		Oracle:    fair.New(),
		Ledger:    ledgerSvc,
		Store:     round.NewStore(db),
		Scheduler: round.NewScheduler(clock),
		Notifier:  notifier,
		Clock:     clock,
		Config:    settingsSvc,
	}, settingsSvc)

	return &Container{
		DB:       db,
		RDB:      rdb,
		Users:    usersSvc,
		Auth:     auth.New(usersSvc, rdb),
		Admins:   admin.New(db),
		Ledger:   ledgerSvc,
		Payments: payment.New(ledgerSvc, config.GlobalConfig.Payment),
		Settings: settingsSvc,
		Rounds:   roundsSvc,
	}
}

// Start seeds bootstrap data and brings the room engines up.
func (c *Container) Start(ctx context.Context) error {
	if err := c.Admins.EnsureDefaultAdmin(ctx, config.GlobalConfig.Admin); err != nil {
		return err
	}
	if err := c.Settings.SeedDefaults(ctx, config.GlobalConfig.Rooms); err != nil {
		return err
	}
	return c.Rounds.Start(ctx)
}

func (c *Container) Stop() {
	c.Rounds.Stop()
}
