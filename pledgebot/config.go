package pledgebot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
	"github.com/goalpledge/pledgebot/internal/domain/meta"
	"github.com/goalpledge/pledgebot/pledgebot/database"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	cfg := DefaultConfig()
	if err = toml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Log:   LogConfig{Level: slog.LevelInfo, Format: "text"},
		Store: StoreConfig{Driver: StoreDriverPostgres},
		DB:    database.DBConfig{Host: "localhost", Port: 5432, PoolSize: 10},
		Ledger: LedgerConfig{
			MinDeadlineBuffer: Duration{time.Hour},
			ZeroWinnerPolicy:  string(ledger.DefaultZeroWinnerPolicy),
		},
		API: APIConfig{Addr: ":8080", AllowOrigins: "*"},
		Meta: MetaConfig{
			Network:   "base-sepolia",
			CacheSize: meta.DefaultCacheSize,
		},
		Archiver: ArchiverConfig{Interval: Duration{15 * time.Minute}, BatchSize: 500, Prefix: "ledger-events"},
		Keeper:   KeeperConfig{Interval: Duration{time.Minute}, Concurrency: 4, Address: "keeper"},
	}
}

type Config struct {
	Log      LogConfig         `toml:"log"`
	Bot      BotConfig         `toml:"bot"`
	Store    StoreConfig       `toml:"store"`
	DB       database.DBConfig `toml:"db"`
	Ledger   LedgerConfig      `toml:"ledger"`
	API      APIConfig         `toml:"api"`
	Meta     MetaConfig        `toml:"meta"`
	Spaces   SpacesConfig      `toml:"spaces"`
	Archiver ArchiverConfig    `toml:"archiver"`
	Keeper   KeeperConfig      `toml:"keeper"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type BotConfig struct {
	DevGuilds []snowflake.ID `toml:"dev_guilds"`
	Token     string         `toml:"token"`
	// AnnounceChannel receives an embed for every committed ledger event when set.
	AnnounceChannel snowflake.ID `toml:"announce_channel"`
}

type StoreConfig struct {
	Driver string `toml:"driver"`
}

type LedgerConfig struct {
	MinDeadlineBuffer Duration `toml:"min_deadline_buffer"`
	Treasury          string   `toml:"treasury"`
	ZeroWinnerPolicy  string   `toml:"zero_winner_policy"`
}

// Ledger converts the section into the processor configuration.
func (c LedgerConfig) Ledger() (ledger.Config, error) {
	policy, err := ledger.ParseZeroWinnerPolicy(c.ZeroWinnerPolicy)
	if err != nil {
		return ledger.Config{}, err
	}
	return ledger.Config{
		MinDeadlineBuffer: c.MinDeadlineBuffer.Duration,
		Treasury:          ledger.Address(c.Treasury),
		ZeroWinnerPolicy:  policy,
	}, nil
}

type APIConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	JWTSecret    string `toml:"jwt_secret"`
	AllowOrigins string `toml:"allow_origins"`
}

type MetaConfig struct {
	Network   string           `toml:"network"`
	Contract  string           `toml:"contract"`
	CacheSize int              `toml:"cache_size"`
	Mongo     meta.MongoConfig `toml:"mongo"`
}

func (c MetaConfig) Scope() string {
	return meta.Scope(c.Network, c.Contract)
}

type SpacesConfig struct {
	Key    string `toml:"key"`
	Secret string `toml:"secret"`
	Region string `toml:"region"`
	Bucket string `toml:"bucket"`
	// Endpoint defaults to https://<region>.digitaloceanspaces.com.
	Endpoint string `toml:"endpoint"`
}

type ArchiverConfig struct {
	Enabled   bool     `toml:"enabled"`
	Interval  Duration `toml:"interval"`
	BatchSize int      `toml:"batch_size"`
	Prefix    string   `toml:"prefix"`
}

type KeeperConfig struct {
	Enabled     bool     `toml:"enabled"`
	Interval    Duration `toml:"interval"`
	Concurrency int      `toml:"concurrency"`
	Address     string   `toml:"address"`
}

// Duration reads "90s", "1h30m" style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ApplyEnv overrides secrets from the environment. lookup is os.Getenv outside tests.
func (c *Config) ApplyEnv(lookup func(string) string) {
	set := func(dst *string, key string) {
		if v := lookup(key); v != "" {
			*dst = v
		}
	}
	set(&c.Bot.Token, "DISCORD_TOKEN")
	set(&c.DB.Password, "DB_PASSWORD")
	set(&c.Meta.Mongo.URI, "MONGO_URI")
	set(&c.Spaces.Key, "SPACES_KEY")
	set(&c.Spaces.Secret, "SPACES_SECRET")
	set(&c.API.JWTSecret, "API_JWT_SECRET")
	set(&c.Ledger.Treasury, "LEDGER_TREASURY")
}

// Validate checks the settings needed by the enabled components.
// needBot is false for the api-only and migrate commands.
func (c *Config) Validate(needBot bool) error {
	var errs []error

	if needBot && c.Bot.Token == "" {
		errs = append(errs, errors.New("bot.token (or DISCORD_TOKEN) is required"))
	}
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.DB.Host == "" || c.DB.Database == "" || c.DB.User == "" {
			errs = append(errs, errors.New("db.host, db.database and db.user are required for the postgres store"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Ledger.Treasury == "" {
		errs = append(errs, errors.New("ledger.treasury is required"))
	}
	if c.Ledger.MinDeadlineBuffer.Duration < 0 {
		errs = append(errs, errors.New("ledger.min_deadline_buffer must not be negative"))
	}
	if _, err := ledger.ParseZeroWinnerPolicy(c.Ledger.ZeroWinnerPolicy); err != nil {
		errs = append(errs, fmt.Errorf("ledger.zero_winner_policy: %w", err))
	}
	if c.API.Enabled && len(c.API.JWTSecret) < 32 {
		errs = append(errs, errors.New("api.jwt_secret (or API_JWT_SECRET) must be at least 32 bytes"))
	}
	if c.Archiver.Enabled {
		if c.Spaces.Bucket == "" || c.Spaces.Key == "" || c.Spaces.Secret == "" {
			errs = append(errs, errors.New("spaces.bucket, spaces.key and spaces.secret are required by the archiver"))
		}
		if c.Archiver.Interval.Duration <= 0 {
			errs = append(errs, errors.New("archiver.interval must be positive"))
		}
	}
	if c.Keeper.Enabled {
		if c.Keeper.Interval.Duration <= 0 {
			errs = append(errs, errors.New("keeper.interval must be positive"))
		}
		if strings.TrimSpace(c.Keeper.Address) == "" {
			errs = append(errs, errors.New("keeper.address is required when the keeper is enabled"))
		}
	}

	return errors.Join(errs...)
}
