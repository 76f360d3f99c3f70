package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cron     CronConfig     `mapstructure:"cron"`
	Binance  BinanceConfig  `mapstructure:"binance"`
	SecondMe SecondMeConfig `mapstructure:"secondme"`
	Session  SessionConfig  `mapstructure:"session"`
	Trading  TradingConfig  `mapstructure:"trading"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr   string `mapstructure:"http_addr"`
	CronSecret string `mapstructure:"cron_secret"`
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

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PriceTTL time.Duration `mapstructure:"price_ttl"`
}

type CronConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Cron specs (robfig/cron, with seconds field).
	TradeBatch string `mapstructure:"trade_batch"`
	Snapshot   string `mapstructure:"snapshot"`
}

type BinanceConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	TopSymbols []string      `mapstructure:"top_symbols"`

	// Optional miniTicker websocket stream feeding the live price cache.
	StreamEnabled bool          `mapstructure:"stream_enabled"`
	StreamURL     string        `mapstructure:"stream_url"`
	StreamMaxAge  time.Duration `mapstructure:"stream_max_age"`
}

type SecondMeConfig struct {
	APIBase      string        `mapstructure:"api_base"`
	OAuthURL     string        `mapstructure:"oauth_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RedirectURI  string        `mapstructure:"redirect_uri"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TTL          time.Duration `mapstructure:"ttl"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

type TradingConfig struct {
	InitialFund  float64       `mapstructure:"initial_fund"`
	Concurrency  int           `mapstructure:"concurrency"`
	MaxDecisions int           `mapstructure:"max_decisions"`
	MinSpend     float64       `mapstructure:"min_spend"`
	TokenLeeway  time.Duration `mapstructure:"token_leeway"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.cron_secret", "")
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
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.price_ttl", "10s")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.trade_batch", "0 0 * * * *")
	v.SetDefault("cron.snapshot", "0 55 23 * * *")
	v.SetDefault("binance.base_url", "https://api.binance.com")
	v.SetDefault("binance.timeout", "15s")
	v.SetDefault("binance.top_symbols", []string{
		"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT",
		"DOGEUSDT", "ADAUSDT", "AVAXUSDT", "DOTUSDT", "MATICUSDT",
	})
	v.SetDefault("binance.stream_enabled", false)
	v.SetDefault("binance.stream_url", "wss://stream.binance.com:9443/stream")
	v.SetDefault("binance.stream_max_age", "30s")
	v.SetDefault("secondme.api_base", "https://app.mindos.com/gate/lab")
	v.SetDefault("secondme.oauth_url", "https://go.second.me/oauth/")
	v.SetDefault("secondme.timeout", "60s")
	v.SetDefault("session.ttl", "168h")
	v.SetDefault("session.cookie_name", "pt_session")
	v.SetDefault("session.cookie_secure", false)
	v.SetDefault("trading.initial_fund", 100000)
	v.SetDefault("trading.concurrency", 5)
	v.SetDefault("trading.max_decisions", 3)
	v.SetDefault("trading.min_spend", 1)
	v.SetDefault("trading.token_leeway", "5m")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
