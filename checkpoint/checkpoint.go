// Package checkpoint takes periodic snapshots of committed ledger state and
// restores a ledger from the newest one on startup.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xraph/chainledger/id"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/store/sqlite"
)

// DefaultSchedule takes a checkpoint every five minutes. Schedules use the
// six-field cron syntax with a leading seconds field.
const DefaultSchedule = "0 */5 * * * *"

// ErrCorrupt is returned when a stored checkpoint does not hash to its
// recorded digest.
var ErrCorrupt = errors.New("checkpoint: digest mismatch")

// Source exposes committed state.
type Source interface {
	WithReadLock(fn func(*store.State))
}

// Store persists checkpoints.
type Store interface {
	Save(ctx context.Context, cp *sqlite.Checkpoint) error
	Latest(ctx context.Context) (*sqlite.Checkpoint, error)
	Prune(ctx context.Context, keep int) (int, error)
}

// Take snapshots the committed state of src. Objects are encoded under the
// read lock; the digest is computed after it is released.
func Take(src Source) (*sqlite.Checkpoint, error) {
	var (
		cp  *sqlite.Checkpoint
		err error
	)
	src.WithReadLock(func(s *store.State) {
		props, perr := s.Props()
		if perr != nil {
			err = perr
			return
		}
		snap, serr := s.Snapshot()
		if serr != nil {
			err = serr
			return
		}
		cp = &sqlite.Checkpoint{
			ID:        id.NewCheckpointID(),
			BlockNum:  props.HeadBlockNumber,
			BlockID:   props.HeadBlockID,
			BlockTime: props.Time,
			Snapshot:  snap,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: snapshot: %w", err)
	}
	cp.Digest, err = cp.Snapshot.Digest()
	if err != nil {
		return nil, fmt.Errorf("checkpoint: digest: %w", err)
	}
	return cp, nil
}

// Restore builds a state from the newest checkpoint in st. It returns
// sqlite.ErrNotFound when st holds no checkpoint.
func Restore(ctx context.Context, st Store) (*store.State, *sqlite.Checkpoint, error) {
	cp, err := st.Latest(ctx)
	if err != nil {
		return nil, nil, err
	}
	digest, err := cp.Snapshot.Digest()
	if err != nil {
		return nil, nil, err
	}
	if digest != cp.Digest {
		return nil, nil, fmt.Errorf("%w: block %d", ErrCorrupt, cp.BlockNum)
	}

	state := store.New()
	if err := state.Restore(cp.Snapshot); err != nil {
		return nil, nil, fmt.Errorf("checkpoint: restore block %d: %w", cp.BlockNum, err)
	}
	return state, cp, nil
}

// ──────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────

// Scheduler writes checkpoints on a cron schedule. A run is skipped when
// the head block has not moved since the last checkpoint.
type Scheduler struct {
	src      Source
	store    Store
	cron     *cron.Cron
	schedule string
	keep     int
	timeout  time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	last protocol.BlockID
	have bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSchedule sets the cron spec.
func WithSchedule(spec string) Option {
	return func(s *Scheduler) { s.schedule = spec }
}

// WithKeep sets how many checkpoints are retained. Zero keeps all.
func WithKeep(n int) Option {
	return func(s *Scheduler) { s.keep = n }
}

// WithTimeout bounds a single run.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a scheduler. It does not run until Start.
func NewScheduler(src Source, st Store, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		src:      src,
		store:    st,
		schedule: DefaultSchedule,
		keep:     10,
		timeout:  time.Minute,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	logger := cronLogger{s.logger}
	s.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := s.cron.AddFunc(s.schedule, s.tick); err != nil {
		return nil, fmt.Errorf("checkpoint: schedule %q: %w", s.schedule, err)
	}
	return s, nil
}

// Start begins scheduled runs.
func (s *Scheduler) Start(context.Context) error {
	s.cron.Start()
	s.logger.Info("checkpoint scheduler started", "schedule", s.schedule, "keep", s.keep)
	return nil
}

// Stop waits for a running checkpoint to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.Run(ctx); err != nil {
		s.logger.Warn("checkpoint failed", "error", err)
	}
}

// Run writes one checkpoint now and returns its id. It returns id.Nil when
// the head has not changed since the previous checkpoint.
func (s *Scheduler) Run(ctx context.Context) (id.ID, error) {
	cp, err := Take(s.src)
	if err != nil {
		return id.Nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.have && cp.BlockID == s.last {
		return id.Nil, nil
	}
	if err := s.store.Save(ctx, cp); err != nil {
		return id.Nil, fmt.Errorf("checkpoint: save block %d: %w", cp.BlockNum, err)
	}
	s.last, s.have = cp.BlockID, true

	pruned := 0
	if s.keep > 0 {
		if pruned, err = s.store.Prune(ctx, s.keep); err != nil {
			s.logger.Warn("checkpoint prune failed", "error", err)
		}
	}
	s.logger.Info("checkpoint written",
		"checkpoint_id", cp.ID.String(),
		"block", cp.BlockNum,
		"block_id", cp.BlockID.String(),
		"pruned", pruned,
	)
	return cp.ID, nil
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
