package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
	"github.com/goalpledge/pledgebot/internal/domain/meta"
	"github.com/goalpledge/pledgebot/internal/gateways/database/repositories"
	"github.com/goalpledge/pledgebot/pledgebot"
	"github.com/goalpledge/pledgebot/pledgebot/database"
	"github.com/goalpledge/pledgebot/pledgebot/services"
)

const startupTimeout = 10 * time.Minute

// runtime holds the ledger wiring shared by serve and api.
type runtime struct {
	cfg       *pledgebot.Config
	db        *database.DB
	store     ledger.Store
	ledgerCfg ledger.Config
	processor *ledger.Processor
	query     *ledger.Query
	meta      *meta.Cache
	mongo     *meta.MongoBackend
}

func openStore(ctx context.Context, cfg *pledgebot.Config) (*runtime, error) {
	ledgerCfg, err := cfg.Ledger.Ledger()
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, ledgerCfg: ledgerCfg}

	switch cfg.Store.Driver {
	case pledgebot.StoreDriverMemory:
		slog.Warn("Using the in-memory ledger store, nothing will survive a restart", slog.String("type", "sys"))
		rt.store = ledger.NewMemoryStore()
	default:
		start := time.Now()
		slog.Info("Initializing database connection...", slog.String("type", "db"))
		db, err := database.New(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := db.InitializeSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize database schema: %w", err)
		}
		slog.Info("Database connected successfully",
			slog.String("type", "db"),
			slog.String("database", cfg.DB.Database),
			slog.Duration("took", time.Since(start)),
		)
		rt.db = db
		rt.store = repositories.NewLedgerStore(db.BunDB())
	}

	var backend meta.Backend = meta.NewMemoryBackend()
	if cfg.Meta.Mongo.URI != "" {
		mongo, err := meta.NewMongoBackend(ctx, cfg.Meta.Mongo)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		rt.mongo = mongo
		backend = mongo
	}
	rt.meta, err = meta.NewCache(cfg.Meta.Scope(), backend, cfg.Meta.CacheSize)
	if err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

// startLedger builds the processor with the given publishers plus the log publisher.
func (rt *runtime) startLedger(publishers ...ledger.Publisher) {
	opts := []ledger.Option{ledger.WithPublisher(services.LogPublisher())}
	for _, p := range publishers {
		opts = append(opts, ledger.WithPublisher(p))
	}
	rt.processor = ledger.NewProcessor(rt.store, rt.ledgerCfg, opts...)
	rt.query = ledger.NewQuery(rt.store, rt.ledgerCfg, ledger.SystemClock)
}

// backgroundTasks returns the archiver and keeper loops enabled in the config.
func (rt *runtime) backgroundTasks(ctx context.Context) ([]func(context.Context) error, error) {
	var tasks []func(context.Context) error

	if rt.cfg.Archiver.Enabled {
		s := rt.cfg.Spaces
		client, err := services.NewSpacesClient(ctx, services.SpacesOptions{
			Key:      s.Key,
			Secret:   s.Secret,
			Region:   s.Region,
			Bucket:   s.Bucket,
			Endpoint: s.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		archiver := services.NewArchiver(rt.query, client, s.Bucket, rt.cfg.Archiver.Prefix, rt.cfg.Archiver.BatchSize)
		interval := rt.cfg.Archiver.Interval.Duration
		tasks = append(tasks, func(ctx context.Context) error { return archiver.Run(ctx, interval) })
	}

	if rt.cfg.Keeper.Enabled {
		k := rt.cfg.Keeper
		keeper := services.NewKeeper(rt.query, rt.processor, ledger.Address(k.Address), k.Concurrency)
		tasks = append(tasks, func(ctx context.Context) error { return keeper.Run(ctx, k.Interval.Duration) })
	}
	return tasks, nil
}

func (rt *runtime) close() {
	if rt.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rt.mongo.Close(ctx); err != nil {
			slog.Error("Failed to close mongo client", slog.String("type", "db"), slog.Any("error", err))
		}
		cancel()
	}
	if rt.db != nil {
		rt.db.Close()
	}
}
