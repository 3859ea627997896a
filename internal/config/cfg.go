package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Server struct {
	Host        string `envconfig:"SERVER_HOST" default:"localhost"`
	Port        string `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout int    `envconfig:"SERVER_TIMEOUT" default:"10"`
}

type Db struct {
	Dialect        string `envconfig:"DB_DIALECT" default:"sqlite"`
	Source         string `envconfig:"DB_NAME" default:"bikeweather.db"`
	MigrationsPath string `envconfig:"DB_MIGRATIONS_DIR" default:"./migrations"`
}

type Email struct {
	Host     string `envconfig:"EMAIL_HOST" required:"true"`
	Port     int    `envconfig:"EMAIL_PORT" default:"587"`
	User     string `envconfig:"EMAIL_USER"`
	Password string `envconfig:"EMAIL_PASSWORD"`
	From     string `envconfig:"EMAIL_FROM" required:"true"`
	ReplyTo  string `envconfig:"EMAIL_REPLY_TO"`
}

type OpenWeather struct {
	APIKey      string        `envconfig:"OPENWEATHER_API_KEY" required:"true"`
	GeoURL      string        `envconfig:"OPENWEATHER_GEO_URL" default:"http://api.openweathermap.org/geo/1.0/direct"`
	ForecastURL string        `envconfig:"OPENWEATHER_FORECAST_URL" default:"https://api.openweathermap.org/data/2.5/forecast"`
	Timeout     time.Duration `envconfig:"OPENWEATHER_TIMEOUT" default:"10s"`
}

type Redis struct {
	Addr     string        `envconfig:"REDIS_ADDR"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	TTL      time.Duration `envconfig:"REDIS_FORECAST_TTL" default:"30m"`
}

// Dispatch tunes the daily digest run.
type Dispatch struct {
	Cron               string        `envconfig:"DISPATCH_CRON" default:"0 0 6 * * *"`
	MaxConcurrentSends int           `envconfig:"DISPATCH_MAX_CONCURRENT_SENDS" default:"5"`
	RetryDelay         time.Duration `envconfig:"DISPATCH_RETRY_DELAY" default:"2s"`
	SendTimeout        time.Duration `envconfig:"DISPATCH_SEND_TIMEOUT" default:"15s"`
	FetchTimeout       time.Duration `envconfig:"DISPATCH_FETCH_TIMEOUT" default:"15s"`
}

type Config struct {
	// BaseURL is used to build unsubscribe links embedded in digests.
	BaseURL      string `envconfig:"APP_BASE_URL" default:"http://localhost:8080"`
	AdminKey     string `envconfig:"ADMIN_KEY" required:"true"`
	TemplatesDir string `envconfig:"TEMPLATES_DIR" default:"./templates"`
	LogsPath     string `envconfig:"LOGS_PATH" default:"./logs/bikeweather.log"`

	Server      Server
	DB          Db
	Email       Email
	OpenWeather OpenWeather
	Redis       Redis
	Dispatch    Dispatch
}

func NewConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	// envconfig's required tag passes a present-but-empty variable, and an
	// empty admin key would let keyless requests through KeyAuth.
	if cfg.AdminKey == "" {
		return nil, errors.New("ADMIN_KEY must not be empty")
	}
	return &cfg, nil
}

func (c *Config) ServerAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}
