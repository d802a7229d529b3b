package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
)

const (
	keeperScanBatch  = 200
	keeperRunTimeout = 5 * time.Minute
)

// Settler is the part of the processor the keeper drives.
type Settler interface {
	ForfeitGoal(ctx context.Context, id uint64, caller ledger.Address) (ledger.Transfer, error)
	ResolveChallenge(ctx context.Context, id uint64, caller ledger.Address) (ledger.Payout, error)
}

// Scanner pages through goals and challenges by id.
type Scanner interface {
	Goals(ctx context.Context, fromID uint64, limit int) ([]ledger.Goal, error)
	Challenges(ctx context.Context, fromID uint64, limit int) ([]ledger.Challenge, error)
	Now() time.Time
}

// KeeperResult counts what one pass settled.
type KeeperResult struct {
	Forfeited int
	Resolved  int
	Failed    int
}

// Keeper forfeits missed goals and resolves ended challenges so nobody has to call the
// commands by hand. Anyone may call them, so the keeper acts under its own address.
type Keeper struct {
	scanner Scanner
	settler Settler
	address ledger.Address
	sem     *semaphore.Weighted

	mu sync.Mutex
	// Records below the floors are settled for good and are not scanned again.
	goalFloor      uint64
	challengeFloor uint64
}

func NewKeeper(scanner Scanner, settler Settler, address ledger.Address, concurrency int) *Keeper {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Keeper{
		scanner:        scanner,
		settler:        settler,
		address:        address,
		sem:            semaphore.NewWeighted(int64(concurrency)),
		goalFloor:      1,
		challengeFloor: 1,
	}
}

// RunOnce scans every unsettled goal and challenge once.
func (k *Keeper) RunOnce(ctx context.Context) (KeeperResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var (
		wg                            sync.WaitGroup
		forfeited, resolved, failures atomic.Int64
	)
	now := k.scanner.Now()

	spawn := func(fn func(context.Context) error, done *atomic.Int64) error {
		if err := k.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer k.sem.Release(1)
			if err := fn(ctx); err != nil {
				// Another caller may have settled the record first.
				if !ledger.IsRejection(err) {
					failures.Add(1)
				}
				return
			}
			done.Add(1)
		}()
		return nil
	}

	scanErr := k.scanGoals(ctx, now, func(g ledger.Goal) error {
		return spawn(func(ctx context.Context) error {
			transfer, err := k.settler.ForfeitGoal(ctx, g.ID, k.address)
			if err != nil {
				logSettleFailure("goal", g.ID, err)
				return err
			}
			slog.Info("Keeper forfeited goal",
				slog.String("type", "keeper"),
				slog.Uint64("goal_id", g.ID),
				slog.String("to", transfer.To.String()),
				slog.Int64("amount", transfer.Amount),
			)
			return nil
		}, &forfeited)
	})
	if scanErr == nil {
		scanErr = k.scanChallenges(ctx, now, func(c ledger.Challenge) error {
			return spawn(func(ctx context.Context) error {
				payout, err := k.settler.ResolveChallenge(ctx, c.ID, k.address)
				if err != nil {
					logSettleFailure("challenge", c.ID, err)
					return err
				}
				slog.Info("Keeper resolved challenge",
					slog.String("type", "keeper"),
					slog.Uint64("challenge_id", c.ID),
					slog.Int("winners", payout.Winners),
					slog.Int64("pool", payout.Pool),
				)
				return nil
			}, &resolved)
		})
	}

	wg.Wait()
	result := KeeperResult{
		Forfeited: int(forfeited.Load()),
		Resolved:  int(resolved.Load()),
		Failed:    int(failures.Load()),
	}
	return result, scanErr
}

func logSettleFailure(kind string, id uint64, err error) {
	level := slog.LevelError
	if ledger.IsRejection(err) {
		level = slog.LevelDebug
	}
	slog.Log(context.Background(), level, "Keeper settlement skipped",
		slog.String("type", "keeper"),
		slog.String("kind", kind),
		slog.Uint64("id", id),
		slog.Any("error", err),
	)
}

func (k *Keeper) scanGoals(ctx context.Context, now time.Time, settle func(ledger.Goal) error) error {
	from := k.goalFloor
	advancing := true
	for {
		goals, err := k.scanner.Goals(ctx, from, keeperScanBatch)
		if err != nil {
			return fmt.Errorf("failed to scan goals from %d: %w", from, err)
		}
		for _, g := range goals {
			settled := g.Forfeited || (g.Completed && g.Claimed)
			if advancing && settled && g.ID == k.goalFloor {
				k.goalFloor = g.ID + 1
			} else {
				advancing = false
			}
			if ledger.CanForfeitGoal(g, now) {
				if err := settle(g); err != nil {
					return err
				}
			}
		}
		if len(goals) < keeperScanBatch {
			return nil
		}
		from = goals[len(goals)-1].ID + 1
	}
}

func (k *Keeper) scanChallenges(ctx context.Context, now time.Time, settle func(ledger.Challenge) error) error {
	from := k.challengeFloor
	advancing := true
	for {
		challenges, err := k.scanner.Challenges(ctx, from, keeperScanBatch)
		if err != nil {
			return fmt.Errorf("failed to scan challenges from %d: %w", from, err)
		}
		for _, c := range challenges {
			if advancing && c.Resolved && c.ID == k.challengeFloor {
				k.challengeFloor = c.ID + 1
			} else {
				advancing = false
			}
			if ledger.CanResolveChallenge(c, now) {
				if err := settle(c); err != nil {
					return err
				}
			}
		}
		if len(challenges) < keeperScanBatch {
			return nil
		}
		from = challenges[len(challenges)-1].ID + 1
	}
}

// Run settles on every tick until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Keeper started",
		slog.String("type", "keeper"),
		slog.String("address", k.address.String()),
		slog.Duration("interval", interval),
	)

	for {
		k.tick(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			slog.Info("Keeper stopped", slog.String("type", "keeper"))
			return nil
		}
	}
}

func (k *Keeper) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, keeperRunTimeout)
	defer cancel()

	start := time.Now()
	result, err := k.RunOnce(runCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Keeper run failed",
			slog.String("type", "keeper"),
			slog.Any("error", err),
		)
	}
	if result.Forfeited+result.Resolved+result.Failed > 0 {
		slog.Info("Keeper run finished",
			slog.String("type", "keeper"),
			slog.Int("forfeited", result.Forfeited),
			slog.Int("resolved", result.Resolved),
			slog.Int("failed", result.Failed),
			slog.Duration("took", time.Since(start)),
		)
	}
}
