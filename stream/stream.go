// Package stream publishes applied blocks and their virtual operations to
// Redis streams for downstream indexers.
//
// Three streams are written under a common prefix:
//
//	<prefix>:blocks       one entry per applied block
//	<prefix>:virtual_ops  one entry per virtual operation
//	<prefix>:forks        reverted and irreversible block notices
//
// Publishing is best effort. A failed XADD is reported to the plugin
// registry, which logs it; the ledger never waits on Redis to commit.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/chainledger/id"
	"github.com/xraph/chainledger/plugin"
	"github.com/xraph/chainledger/protocol"
)

// Defaults.
const (
	DefaultPrefix = "chainledger"
	DefaultMaxLen = 10000
)

// Stream suffixes.
const (
	BlocksStream     = "blocks"
	VirtualOpsStream = "virtual_ops"
	ForksStream      = "forks"
)

// Client is the subset of the Redis API the publisher uses.
type Client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Compile-time interface checks.
var (
	_ plugin.Plugin          = (*Publisher)(nil)
	_ plugin.OnBlockApplied  = (*Publisher)(nil)
	_ plugin.OnBlockReverted = (*Publisher)(nil)
	_ plugin.OnIrreversible  = (*Publisher)(nil)
	_ plugin.OnShutdown      = (*Publisher)(nil)
	_ Client                 = (*redis.Client)(nil)
)

// Publisher is a ledger plugin writing to Redis streams.
type Publisher struct {
	client Client
	prefix string
	maxLen int64
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithPrefix sets the stream key prefix.
func WithPrefix(prefix string) Option {
	return func(p *Publisher) { p.prefix = prefix }
}

// WithMaxLen caps every stream at roughly n entries. Zero means unlimited.
func WithMaxLen(n int64) Option {
	return func(p *Publisher) { p.maxLen = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// New creates a publisher writing through client.
func New(client Client, opts ...Option) *Publisher {
	p := &Publisher{
		client: client,
		prefix: DefaultPrefix,
		maxLen: DefaultMaxLen,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Options describes a Redis connection.
type Options struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, o Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("stream: connect to redis at %s: %w", o.Addr, err)
	}
	return rdb, nil
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "stream" }

// Key returns the full key of a stream.
func (p *Publisher) Key(stream string) string { return p.prefix + ":" + stream }

// OnBlockApplied writes the block and each of its virtual operations.
func (p *Publisher) OnBlockApplied(ctx context.Context, b *protocol.AnnotatedBlock) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("stream: encode block %d: %w", b.BlockNum, err)
	}
	if err := p.add(ctx, BlocksStream, map[string]any{
		"block_num":    b.BlockNum,
		"block_id":     b.BlockID.String(),
		"timestamp":    b.TimestampMsec,
		"witness":      b.Witness,
		"transactions": len(b.TransactionIDs),
		"virtual_ops":  len(b.VirtualOperations),
		"payload":      payload,
	}); err != nil {
		return err
	}

	var errs []error
	for _, vop := range b.VirtualOperations {
		data, err := json.Marshal(vop)
		if err != nil {
			errs = append(errs, fmt.Errorf("stream: encode %s: %w", vop.Op.Type(), err))
			continue
		}
		errs = append(errs, p.add(ctx, VirtualOpsStream, map[string]any{
			"block_num":    b.BlockNum,
			"trx_in_block": vop.TrxInBlock,
			"op_in_trx":    vop.OpInTrx,
			"virtual_op":   vop.VirtualOp,
			"type":         string(vop.Op.Type()),
			"payload":      data,
		}))
	}
	return errors.Join(errs...)
}

// OnBlockReverted announces a popped block so consumers can discard it.
func (p *Publisher) OnBlockReverted(ctx context.Context, blockNum uint32, blockID protocol.BlockID) error {
	return p.add(ctx, ForksStream, map[string]any{
		"event":     "reverted",
		"block_num": blockNum,
		"block_id":  blockID.String(),
	})
}

// OnIrreversible announces the new irreversible block.
func (p *Publisher) OnIrreversible(ctx context.Context, blockNum uint32) error {
	return p.add(ctx, ForksStream, map[string]any{
		"event":     "irreversible",
		"block_num": blockNum,
	})
}

// OnShutdown closes the Redis client.
func (p *Publisher) OnShutdown(context.Context) error {
	return p.client.Close()
}

func (p *Publisher) add(ctx context.Context, stream string, values map[string]any) error {
	values["event_id"] = id.NewEventID().String()
	args := &redis.XAddArgs{Stream: p.Key(stream), Values: values}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	entry, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("stream: xadd %s: %w", args.Stream, err)
	}
	p.logger.Debug("stream entry added",
		"stream", args.Stream,
		"entry", entry,
		"event_id", values["event_id"],
		"block_num", values["block_num"],
	)
	return nil
}
