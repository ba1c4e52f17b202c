package extension

import (
	"time"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/checkpoint"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/stream"
)

// Config holds the chainledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.chainledger" or "chainledger" keys).
type Config struct {
	// Params are the chain constants. Zero-valued params are replaced by
	// chainledger.DefaultParams().
	Params chainledger.Params `json:"params" mapstructure:"params" yaml:"params"`

	// Genesis seeds the state when no checkpoint can be restored.
	Genesis *store.Genesis `json:"genesis" mapstructure:"genesis" yaml:"genesis"`

	// Policy is the transaction failure policy: "reject_block" (default)
	// or "skip_transaction".
	Policy string `json:"policy" mapstructure:"policy" yaml:"policy"`

	// CheckpointPath is the SQLite database holding checkpoints. Empty
	// disables checkpointing and restore.
	CheckpointPath string `json:"checkpoint_path" mapstructure:"checkpoint_path" yaml:"checkpoint_path"`

	// CheckpointSchedule is a cron expression with seconds
	// (default: every five minutes).
	CheckpointSchedule string `json:"checkpoint_schedule" mapstructure:"checkpoint_schedule" yaml:"checkpoint_schedule"`

	// CheckpointKeep is the number of checkpoints retained (default: 10).
	CheckpointKeep int `json:"checkpoint_keep" mapstructure:"checkpoint_keep" yaml:"checkpoint_keep"`

	// Redis enables the stream publisher when Addr is set.
	Redis stream.Options `json:"redis" mapstructure:"redis" yaml:"redis"`

	// StreamPrefix is the key prefix of the published streams
	// (default: "chainledger").
	StreamPrefix string `json:"stream_prefix" mapstructure:"stream_prefix" yaml:"stream_prefix"`

	// StreamMaxLen caps every stream (default: 10000).
	StreamMaxLen int64 `json:"stream_max_len" mapstructure:"stream_max_len" yaml:"stream_max_len"`

	// QueryCacheSize is the number of cached query pages (default: 1024).
	QueryCacheSize int `json:"query_cache_size" mapstructure:"query_cache_size" yaml:"query_cache_size"`

	// DisableInvariantAudit skips the state audit on start.
	DisableInvariantAudit bool `json:"disable_invariant_audit" mapstructure:"disable_invariant_audit" yaml:"disable_invariant_audit"`

	// DisableMetrics prevents registering the metrics plugin.
	DisableMetrics bool `json:"disable_metrics" mapstructure:"disable_metrics" yaml:"disable_metrics"`

	// PluginTimeout bounds every plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Params:             chainledger.DefaultParams(),
		Policy:             "reject_block",
		CheckpointSchedule: checkpoint.DefaultSchedule,
		CheckpointKeep:     10,
		StreamPrefix:       stream.DefaultPrefix,
		StreamMaxLen:       stream.DefaultMaxLen,
		QueryCacheSize:     1024,
		PluginTimeout:      5 * time.Second,
	}
}
