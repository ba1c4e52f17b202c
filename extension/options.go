package extension

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	chainledger "github.com/xraph/chainledger"
	audithook "github.com/xraph/chainledger/audit_hook"
	"github.com/xraph/chainledger/chain"
	"github.com/xraph/chainledger/plugin"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/stream"
)

// Option configures the chainledger Forge extension.
type Option func(*Extension)

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithLogger sets the logger handed to the ledger and its components.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}

// WithParams sets the chain constants.
func WithParams(p chainledger.Params) Option {
	return func(e *Extension) { e.config.Params = p }
}

// WithGenesis sets the genesis used when no checkpoint can be restored.
func WithGenesis(g *store.Genesis) Option {
	return func(e *Extension) { e.config.Genesis = g }
}

// WithPolicy sets the transaction failure policy.
func WithPolicy(p chain.Policy) Option {
	return func(e *Extension) { e.config.Policy = p.String() }
}

// WithCheckpoints enables checkpointing into the SQLite database at path.
func WithCheckpoints(path, schedule string, keep int) Option {
	return func(e *Extension) {
		e.config.CheckpointPath = path
		e.config.CheckpointSchedule = schedule
		e.config.CheckpointKeep = keep
	}
}

// WithRedis enables the stream publisher.
func WithRedis(o stream.Options) Option {
	return func(e *Extension) { e.config.Redis = o }
}

// WithStreamClient publishes through an existing client instead of dialing
// the configured Redis.
func WithStreamClient(c stream.Client) Option {
	return func(e *Extension) { e.streamCli = c }
}

// WithQueryCacheSize sets the number of cached query pages.
func WithQueryCacheSize(n int) Option {
	return func(e *Extension) { e.config.QueryCacheSize = n }
}

// WithPluginTimeout bounds every plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithDisableInvariantAudit skips the state audit on start.
func WithDisableInvariantAudit() Option {
	return func(e *Extension) { e.config.DisableInvariantAudit = true }
}

// WithDisableMetrics prevents registering the metrics plugin.
func WithDisableMetrics() Option {
	return func(e *Extension) { e.config.DisableMetrics = true }
}

// WithRegisterer sets the Prometheus registerer of the metrics plugin.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(e *Extension) { e.registerer = r }
}

// WithAuditRecorder records security relevant ledger events through r.
func WithAuditRecorder(r audithook.Recorder) Option {
	return func(e *Extension) { e.recorder = r }
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) { e.plugins = append(e.plugins, p) }
}

// WithChainOption passes a chain.Option through to the ledger.
func WithChainOption(opt chain.Option) Option {
	return func(e *Extension) { e.chainOpts = append(e.chainOpts, opt) }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
