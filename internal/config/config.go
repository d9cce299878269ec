package config

import (
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Database DatabaseConfig   `mapstructure:"database"`
	Redis    RedisConfig      `mapstructure:"redis"`
	JWT      JWTConfig        `mapstructure:"jwt"`
	Admin    AdminSeedConfig  `mapstructure:"admin"`
	Payment  PaymentConfig    `mapstructure:"payment"`
	Rooms    []RoomSeedConfig `mapstructure:"rooms"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"` // hours
}

type AdminSeedConfig struct {
	DefaultUsername string `mapstructure:"defaultUsername"`
	DefaultPassword string `mapstructure:"defaultPassword"`
}

type PaymentConfig struct {
	MinWithdrawal int64 `mapstructure:"minWithdrawal"`
	DepositRate   int64 `mapstructure:"depositRate"` // coins credited per external unit
}

// RoomSeedConfig seeds the game_settings table on first boot. After that the
// stored settings are authoritative; see internal/service/settings.
type RoomSeedConfig struct {
	ID                    string `mapstructure:"id"`
	Name                  string `mapstructure:"name"`
	Variant               string `mapstructure:"variant"` // pool_draw, ascending_bid, field_lottery
	Currency              string `mapstructure:"currency"`
	MinStake              int64  `mapstructure:"minStake"`
	MaxStakePerPlayer     int64  `mapstructure:"maxStakePerPlayer"`
	MinDistinctBettors    int    `mapstructure:"minDistinctBettors"`
	FixedBid              int64  `mapstructure:"fixedBid"`
	MinStakePerField      int64  `mapstructure:"minStakePerField"`
	FieldCount            int    `mapstructure:"fieldCount"`
	TimerSeconds          int    `mapstructure:"timerSeconds"`
	RoundDurationMinutes  int    `mapstructure:"roundDurationMinutes"`
	CommissionRatePercent int    `mapstructure:"commissionRatePercent"`
	HouseContribution     int64  `mapstructure:"houseContribution"`
}

var GlobalConfig *Config

func LoadConfig(path string) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
	GlobalConfig = &cfg
}
