package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"lottofun/internal/lottery"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Ticket TicketConfig `mapstructure:"ticket"`
	Draw   DrawConfig   `mapstructure:"draw"`
	Prizes PrizesConfig `mapstructure:"prizes"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type TicketConfig struct {
	Price       float64 `mapstructure:"price"`
	NumberCount int     `mapstructure:"number_count"`
	NumberMin   int     `mapstructure:"number_min"`
	NumberMax   int     `mapstructure:"number_max"`
}

func (t TicketConfig) PriceDecimal() decimal.Decimal {
	return decimal.NewFromFloat(t.Price).Round(2)
}

// validate rejects number-range settings the engine is not compiled for.
// The selection rules are constants in the lottery package; a config that
// silently disagrees with them would mis-validate every purchase.
func (t TicketConfig) validate() error {
	if t.NumberCount != lottery.NumberCount || t.NumberMin != lottery.MinNumber || t.NumberMax != lottery.MaxNumber {
		return fmt.Errorf("unsupported ticket number rules: %d numbers in [%d,%d], engine supports %d in [%d,%d]",
			t.NumberCount, t.NumberMin, t.NumberMax,
			lottery.NumberCount, lottery.MinNumber, lottery.MaxNumber)
	}
	return nil
}

type DrawConfig struct {
	Frequency           time.Duration `mapstructure:"frequency"`
	ProcessingBatchSize int           `mapstructure:"processing_batch_size"`
	RecoverySweep       time.Duration `mapstructure:"recovery_sweep"`
}

// PrizesConfig maps match counts 2-5 to a percentage of the draw's prize pool.
// Percentages need not sum to 100; the operator keeps the remainder.
type PrizesConfig struct {
	Tier2Percentage float64 `mapstructure:"tier2_percentage"`
	Tier3Percentage float64 `mapstructure:"tier3_percentage"`
	Tier4Percentage float64 `mapstructure:"tier4_percentage"`
	Tier5Percentage float64 `mapstructure:"tier5_percentage"`
}

func (p PrizesConfig) TierPercentages() map[int]decimal.Decimal {
	return map[int]decimal.Decimal{
		2: decimal.NewFromFloat(p.Tier2Percentage),
		3: decimal.NewFromFloat(p.Tier3Percentage),
		4: decimal.NewFromFloat(p.Tier4Percentage),
		5: decimal.NewFromFloat(p.Tier5Percentage),
	}
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("ticket.price", 10.00)
	v.SetDefault("ticket.number_count", 5)
	v.SetDefault("ticket.number_min", 1)
	v.SetDefault("ticket.number_max", 49)
	v.SetDefault("draw.frequency", "1h")
	v.SetDefault("draw.processing_batch_size", 1000)
	v.SetDefault("draw.recovery_sweep", "1m")
	v.SetDefault("prizes.tier2_percentage", 5)
	v.SetDefault("prizes.tier3_percentage", 10)
	v.SetDefault("prizes.tier4_percentage", 25)
	v.SetDefault("prizes.tier5_percentage", 50)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Ticket.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
