package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/raido/internal/cache"
)

// Store drivers.
const (
	StoreDriverSQLite = "sqlite"
	StoreDriverMemory = "memory"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Store     StoreConfig       `yaml:"store"`
	Redis     RedisConfig       `yaml:"redis"`
	Auth      AuthConfig        `yaml:"auth"`
	RateLimit RateLimitConfig   `yaml:"rate_limit"`
	Cache     CacheConfig       `yaml:"cache"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	return c.Cache.Validate()
}

// LogLevel is a slog.Level that unmarshals from YAML names like
// "debug" or "warn" (yaml.v3 does not consult TextUnmarshaler).
type LogLevel slog.Level

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *LogLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", s, err)
	}
	*l = LogLevel(lvl)
	return nil
}

// Level returns the underlying slog level.
func (l LogLevel) Level() slog.Level {
	return slog.Level(l)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel LogLevel   `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig selects and configures the persistence driver.
//
// Driver controls where itinerary data lives:
//   - "sqlite" (default): durable single-file database; Path must be set.
//   - "memory": process-local store, suitable for tests and demos.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	// Normalise empty driver to sqlite.
	if c.Driver == "" {
		c.Driver = StoreDriverSQLite
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(StoreDriverSQLite, StoreDriverMemory)),
	); err != nil {
		return err
	}
	if c.Driver == StoreDriverSQLite && c.Path == "" {
		return fmt.Errorf("store: driver is %q but path is empty", StoreDriverSQLite)
	}
	return nil
}

// RedisConfig holds the optional Redis connection. Without an address
// the cache and the rate limiter run on their in-process
// implementations instead.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled returns true when a Redis address is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// Validate validates the Redis configuration.
func (c *RedisConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DB, validation.Min(0)),
	)
}

// AuthConfig holds token verification configuration. Tokens are issued
// by the identity service; this process only needs the shared secret.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.JWTSecret, validation.Required, validation.Length(16, 0)),
	)
}

// RateLimitConfig holds the per-identity request quota.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
}

// Validate validates the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	// Normalise an absent quota to the documented default.
	if c.PerMinute == 0 {
		c.PerMinute = 100
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.PerMinute, validation.Required, validation.Min(1)),
	)
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "90s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// CacheConfig overrides per-resource-class cache expiries. Entries the
// file leaves unset keep their documented defaults.
type CacheConfig struct {
	UserTrips   Duration `yaml:"user_trips"`
	PublicTrips Duration `yaml:"public_trips"`
	PublicTrip  Duration `yaml:"public_trip"`
	AdminStats  Duration `yaml:"admin_stats"`
	Stops       Duration `yaml:"stops"`
	Items       Duration `yaml:"items"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	for name, d := range map[string]Duration{
		"user_trips":   c.UserTrips,
		"public_trips": c.PublicTrips,
		"public_trip":  c.PublicTrip,
		"admin_stats":  c.AdminStats,
		"stops":        c.Stops,
		"items":        c.Items,
	} {
		if d < 0 {
			return fmt.Errorf("cache: %s must not be negative", name)
		}
	}
	return nil
}

// TTLs converts the section into the cache expiry table, filling unset
// entries from the defaults.
func (c *CacheConfig) TTLs() cache.TTLs {
	def := cache.DefaultTTLs()
	pick := func(d Duration, fallback time.Duration) time.Duration {
		if d > 0 {
			return time.Duration(d)
		}
		return fallback
	}
	return cache.TTLs{
		PublicTrips: pick(c.PublicTrips, def.PublicTrips),
		PublicTrip:  pick(c.PublicTrip, def.PublicTrip),
		UserTrips:   pick(c.UserTrips, def.UserTrips),
		AdminStats:  pick(c.AdminStats, def.AdminStats),
		Stops:       pick(c.Stops, def.Stops),
		Items:       pick(c.Items, def.Items),
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
// The JWT secret has no default; the process refuses to start without
// one.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: LogLevel(slog.LevelInfo),
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Driver: StoreDriverSQLite,
			Path:   "./raido.db",
		},
		RateLimit: RateLimitConfig{
			PerMinute: 100,
		},
	}
}
