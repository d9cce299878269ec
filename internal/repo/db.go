package repo

import (
	"log"

	"wager-service/internal/config"
	"wager-service/internal/model"
	"wager-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB() {
	dsn := config.GlobalConfig.Database.DSN
	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Log.Fatal("Failed to connect to database",
			zap.Error(err),
		)
	}

	if err := DB.AutoMigrate(Models()...); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
}

// Models lists every persisted model; shared with test harnesses that
// migrate in-memory sqlite databases.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Admin{},
		&model.Wallet{},
		&model.Transaction{},
		&model.Round{},
		&model.RoundEvent{},
		&model.GameSetting{},
	}
}
