// Package extension provides the Forge extension adapter for chainledger.
//
// It implements the forge.Extension interface to integrate the ledger into
// a Forge application: it builds the state (from the newest checkpoint or
// from genesis), the block driver, the query engine and the invariant
// checker, wires the configured plugins, registers everything in the DI
// container and runs the checkpoint scheduler while the app is up.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.chainledger" or
// "chainledger" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	chainledger "github.com/xraph/chainledger"
	audithook "github.com/xraph/chainledger/audit_hook"
	"github.com/xraph/chainledger/chain"
	"github.com/xraph/chainledger/checkpoint"
	"github.com/xraph/chainledger/invariant"
	"github.com/xraph/chainledger/observability"
	"github.com/xraph/chainledger/plugin"
	"github.com/xraph/chainledger/query"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/store/sqlite"
	"github.com/xraph/chainledger/stream"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "chainledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Account and vesting-stake ledger for a delegated proof-of-stake chain"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts chainledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	logger     *slog.Logger
	registerer prometheus.Registerer
	recorder   audithook.Recorder
	plugins    []plugin.Plugin
	chainOpts  []chain.Option
	streamCli  stream.Client

	ledger      *chain.Ledger
	queries     *query.Engine
	checker     *invariant.Checker
	checkpoints *sqlite.Store
	scheduler   *checkpoint.Scheduler
}

// New creates a new chainledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ledger returns the block driver.
// This is nil until Register is called.
func (e *Extension) Ledger() *chain.Ledger { return e.ledger }

// Queries returns the query engine.
func (e *Extension) Queries() *query.Engine { return e.queries }

// Checker returns the invariant checker.
func (e *Extension) Checker() *invariant.Checker { return e.checker }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration, builds the
// ledger and registers its components in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(context.Background()); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*chain.Ledger, error) {
		return e.ledger, nil
	}); err != nil {
		return err
	}
	if err := vessel.Provide(fapp.Container(), func() (*query.Engine, error) {
		return e.queries, nil
	}); err != nil {
		return err
	}
	return vessel.Provide(fapp.Container(), func() (*invariant.Checker, error) {
		return e.checker, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.ledger == nil {
		return errors.New("chainledger: extension not initialized")
	}

	if err := e.ledger.Start(ctx); err != nil {
		return err
	}

	if !e.config.DisableInvariantAudit {
		if err := e.checker.Audit(ctx, e.ledger); err != nil {
			return fmt.Errorf("chainledger: restored state failed audit: %w", err)
		}
	}

	if e.scheduler != nil {
		if err := e.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension]. A final checkpoint is written before
// the ledger shuts down.
func (e *Extension) Stop(ctx context.Context) error {
	var errs []error
	if e.scheduler != nil {
		errs = append(errs, e.scheduler.Stop(ctx))
		if _, err := e.scheduler.Run(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if e.ledger != nil {
		errs = append(errs, e.ledger.Stop(ctx))
	}
	if e.checkpoints != nil {
		errs = append(errs, e.checkpoints.Close())
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.ledger == nil {
		return errors.New("chainledger: ledger not initialized")
	}
	if e.checkpoints != nil {
		return e.checkpoints.Ping(ctx)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Construction
// ──────────────────────────────────────────────────

// build creates the state, the ledger and its collaborators from the
// resolved config.
func (e *Extension) build(ctx context.Context) error {
	policy, err := chain.ParsePolicy(e.config.Policy)
	if err != nil {
		return err
	}

	state, err := e.openState(ctx)
	if err != nil {
		return err
	}

	registry := plugin.NewRegistry().WithLogger(e.logger).WithTimeout(e.config.PluginTimeout)
	for _, p := range e.collectPlugins() {
		if err := registry.Register(p); err != nil {
			return fmt.Errorf("chainledger: register plugin %s: %w", p.Name(), err)
		}
	}
	if e.config.Redis.Addr != "" || e.streamCli != nil {
		client := e.streamCli
		if client == nil {
			if client, err = stream.Dial(ctx, e.config.Redis); err != nil {
				return err
			}
		}
		publisher := stream.New(client,
			stream.WithPrefix(e.config.StreamPrefix),
			stream.WithMaxLen(e.config.StreamMaxLen),
			stream.WithLogger(e.logger),
		)
		if err := registry.Register(publisher); err != nil {
			return err
		}
	}

	opts := append([]chain.Option{
		chain.WithLogger(e.logger),
		chain.WithPlugins(registry),
		chain.WithParams(e.config.Params),
		chain.WithPolicy(policy),
	}, e.chainOpts...)
	if e.ledger, err = chain.New(state, opts...); err != nil {
		return err
	}

	if e.queries, err = query.New(e.ledger,
		query.WithCacheSize(e.config.QueryCacheSize),
		query.WithLogger(e.logger),
	); err != nil {
		return err
	}
	e.checker = invariant.New(invariant.WithLogger(e.logger))

	if e.checkpoints != nil {
		e.scheduler, err = checkpoint.NewScheduler(e.ledger, e.checkpoints,
			checkpoint.WithSchedule(e.config.CheckpointSchedule),
			checkpoint.WithKeep(e.config.CheckpointKeep),
			checkpoint.WithLogger(e.logger),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// openState restores the newest checkpoint when one exists and falls back
// to the configured genesis otherwise.
func (e *Extension) openState(ctx context.Context) (*store.State, error) {
	if e.config.CheckpointPath != "" {
		st, err := sqlite.Open(ctx, e.config.CheckpointPath)
		if err != nil {
			return nil, err
		}
		e.checkpoints = st

		state, cp, err := checkpoint.Restore(ctx, st)
		switch {
		case err == nil:
			e.logger.Info("chainledger: restored checkpoint",
				"block", cp.BlockNum,
				"block_id", cp.BlockID.String(),
			)
			return state, nil
		case !errors.Is(err, sqlite.ErrNotFound):
			return nil, err
		}
	}

	if e.config.Genesis == nil {
		return nil, errors.New("chainledger: no checkpoint to restore and no genesis configured")
	}
	state := store.New()
	if err := state.InitGenesis(e.config.Genesis, e.config.Params); err != nil {
		return nil, err
	}
	return state, nil
}

func (e *Extension) collectPlugins() []plugin.Plugin {
	out := make([]plugin.Plugin, 0, len(e.plugins)+2)
	if !e.config.DisableMetrics {
		reg := e.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		out = append(out, observability.NewMetricsExtension(observability.NewPrometheusFactory(reg)))
	}
	if e.recorder != nil {
		out = append(out, audithook.New(e.recorder, audithook.WithLogger(e.logger)))
	}
	return append(out, e.plugins...)
}

// ──────────────────────────────────────────────────
// Config loading
// ──────────────────────────────────────────────────

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("chainledger: configuration is required but not found in config files; " +
				"ensure 'extensions.chainledger' or 'chainledger' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("chainledger: configuration loaded",
		forge.F("policy", e.config.Policy),
		forge.F("checkpoint_path", e.config.CheckpointPath),
		forge.F("checkpoint_schedule", e.config.CheckpointSchedule),
		forge.F("checkpoint_keep", e.config.CheckpointKeep),
		forge.F("redis_addr", e.config.Redis.Addr),
		forge.F("query_cache_size", e.config.QueryCacheSize),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.chainledger", "chainledger"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("chainledger: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("chainledger: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Params == (chainledger.Params{}) {
		cfg.Params = defaults.Params
	}
	if cfg.Policy == "" {
		cfg.Policy = defaults.Policy
	}
	if cfg.CheckpointSchedule == "" {
		cfg.CheckpointSchedule = defaults.CheckpointSchedule
	}
	if cfg.CheckpointKeep == 0 {
		cfg.CheckpointKeep = defaults.CheckpointKeep
	}
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = defaults.StreamPrefix
	}
	if cfg.StreamMaxLen == 0 {
		cfg.StreamMaxLen = defaults.StreamMaxLen
	}
	if cfg.QueryCacheSize == 0 {
		cfg.QueryCacheSize = defaults.QueryCacheSize
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableInvariantAudit {
		yamlConfig.DisableInvariantAudit = true
	}
	if programmaticConfig.DisableMetrics {
		yamlConfig.DisableMetrics = true
	}

	if yamlConfig.Params == (chainledger.Params{}) {
		yamlConfig.Params = programmaticConfig.Params
	}
	if yamlConfig.Genesis == nil {
		yamlConfig.Genesis = programmaticConfig.Genesis
	}
	if yamlConfig.Policy == "" {
		yamlConfig.Policy = programmaticConfig.Policy
	}
	if yamlConfig.CheckpointPath == "" {
		yamlConfig.CheckpointPath = programmaticConfig.CheckpointPath
	}
	if yamlConfig.CheckpointSchedule == "" {
		yamlConfig.CheckpointSchedule = programmaticConfig.CheckpointSchedule
	}
	if yamlConfig.CheckpointKeep == 0 {
		yamlConfig.CheckpointKeep = programmaticConfig.CheckpointKeep
	}
	if yamlConfig.Redis.Addr == "" {
		yamlConfig.Redis = programmaticConfig.Redis
	}
	if yamlConfig.StreamPrefix == "" {
		yamlConfig.StreamPrefix = programmaticConfig.StreamPrefix
	}
	if yamlConfig.StreamMaxLen == 0 {
		yamlConfig.StreamMaxLen = programmaticConfig.StreamMaxLen
	}
	if yamlConfig.QueryCacheSize == 0 {
		yamlConfig.QueryCacheSize = programmaticConfig.QueryCacheSize
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}
	yamlConfig.RequireConfig = programmaticConfig.RequireConfig

	return mergeWithDefaults(yamlConfig)
}
