package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/chainledger/protocol"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onBlockApplied       []OnBlockApplied
	onBlockReverted      []OnBlockReverted
	onIrreversible       []OnIrreversible
	onTransactionApplied []OnTransactionApplied
	onTransactionFailed  []OnTransactionFailed
	onOperationApplied   []OnOperationApplied
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnBlockApplied); ok {
		r.onBlockApplied = append(r.onBlockApplied, v)
	}
	if v, ok := p.(OnBlockReverted); ok {
		r.onBlockReverted = append(r.onBlockReverted, v)
	}
	if v, ok := p.(OnIrreversible); ok {
		r.onIrreversible = append(r.onIrreversible, v)
	}
	if v, ok := p.(OnTransactionApplied); ok {
		r.onTransactionApplied = append(r.onTransactionApplied, v)
	}
	if v, ok := p.(OnTransactionFailed); ok {
		r.onTransactionFailed = append(r.onTransactionFailed, v)
	}
	if v, ok := p.(OnOperationApplied); ok {
		r.onOperationApplied = append(r.onOperationApplied, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnBlockApplied)(nil)).Elem(), "OnBlockApplied")
	checkInterface(reflect.TypeOf((*OnBlockReverted)(nil)).Elem(), "OnBlockReverted")
	checkInterface(reflect.TypeOf((*OnIrreversible)(nil)).Elem(), "OnIrreversible")
	checkInterface(reflect.TypeOf((*OnTransactionApplied)(nil)).Elem(), "OnTransactionApplied")
	checkInterface(reflect.TypeOf((*OnTransactionFailed)(nil)).Elem(), "OnTransactionFailed")
	checkInterface(reflect.TypeOf((*OnOperationApplied)(nil)).Elem(), "OnOperationApplied")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// HasOperationObservers reports whether any plugin wants per-operation
// events, so the ledger can skip building them otherwise.
func (r *Registry) HasOperationObservers() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.onOperationApplied) > 0
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for every plugin in ps, logging failures.
func emit[P Plugin](r *Registry, ctx context.Context, hook string, ps []P, call func(P) error) {
	for _, p := range ps {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

func snapshot[P any](r *Registry, list *[]P) []P {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger any) {
	emit(r, ctx, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, ledger)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, ctx, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitBlockApplied emits a block applied event.
func (r *Registry) EmitBlockApplied(ctx context.Context, block *protocol.AnnotatedBlock) {
	emit(r, ctx, "OnBlockApplied", snapshot(r, &r.onBlockApplied), func(p OnBlockApplied) error {
		return p.OnBlockApplied(ctx, block)
	})
}

// EmitBlockReverted emits a block reverted event.
func (r *Registry) EmitBlockReverted(ctx context.Context, blockNum uint32, blockID protocol.BlockID) {
	emit(r, ctx, "OnBlockReverted", snapshot(r, &r.onBlockReverted), func(p OnBlockReverted) error {
		return p.OnBlockReverted(ctx, blockNum, blockID)
	})
}

// EmitIrreversible emits an irreversibility event.
func (r *Registry) EmitIrreversible(ctx context.Context, blockNum uint32) {
	emit(r, ctx, "OnIrreversible", snapshot(r, &r.onIrreversible), func(p OnIrreversible) error {
		return p.OnIrreversible(ctx, blockNum)
	})
}

// EmitTransactionApplied emits a transaction applied event.
func (r *Registry) EmitTransactionApplied(ctx context.Context, blockNum uint32, index int, txID protocol.TransactionID) {
	emit(r, ctx, "OnTransactionApplied", snapshot(r, &r.onTransactionApplied), func(p OnTransactionApplied) error {
		return p.OnTransactionApplied(ctx, blockNum, index, txID)
	})
}

// EmitTransactionFailed emits a transaction failed event.
func (r *Registry) EmitTransactionFailed(ctx context.Context, blockNum uint32, index int, err error) {
	emit(r, ctx, "OnTransactionFailed", snapshot(r, &r.onTransactionFailed), func(p OnTransactionFailed) error {
		return p.OnTransactionFailed(ctx, blockNum, index, err)
	})
}

// EmitOperationApplied emits an operation applied event.
func (r *Registry) EmitOperationApplied(ctx context.Context, blockNum uint32, index int, op protocol.Operation) {
	emit(r, ctx, "OnOperationApplied", snapshot(r, &r.onOperationApplied), func(p OnOperationApplied) error {
		return p.OnOperationApplied(ctx, blockNum, index, op)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block block application.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
