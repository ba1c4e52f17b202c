// Package query serves paged reads over the ledger indices to downstream
// consumers. Reads run under the ledger read lock, so every page reflects
// the state between two blocks, and items are detached copies that later
// blocks cannot change.
package query

import (
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	chainledger "github.com/xraph/chainledger"
	"github.com/xraph/chainledger/account"
	"github.com/xraph/chainledger/bandwidth"
	"github.com/xraph/chainledger/chainbase"
	"github.com/xraph/chainledger/delegation"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/types"
)

// Page size bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Index names accepted by Engine.List.
const (
	AccountsByName                  = "accounts.by_name"
	DelegationsByDelegation         = "delegations.by_delegation"
	DelegationsByReceived           = "delegations.by_received"
	ExpirationsByAccount            = "expirations.by_account_expiration"
	OwnerHistoryByAccount           = "owner_history.by_account"
	RecoveryRequestsByAccount       = "recovery_requests.by_account"
	ChangeRecoveryRequestsByAccount = "change_recovery_requests.by_account"
	BandwidthByAccountType          = "bandwidth.by_account_type"
)

// Request selects a page of an index. StartAccount and StartItem form the
// lower bound of the composite key; StartItem is only meaningful together
// with StartAccount. A zero Limit means DefaultLimit.
type Request struct {
	Index        string `json:"index"`
	StartAccount string `json:"start_account,omitempty"`
	StartItem    string `json:"start_item,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// Cursor is the lower bound of the next page.
type Cursor struct {
	StartAccount string `json:"start_account"`
	StartItem    string `json:"start_item,omitempty"`
}

// Page is one result page. Items must be treated as read-only; pages may be
// served to several callers from the cache.
type Page struct {
	Index string  `json:"index"`
	Items []any   `json:"items"`
	Next  *Cursor `json:"next,omitempty"`
}

// Reader gives access to committed state.
type Reader interface {
	WithReadLock(fn func(*store.State))
}

type cacheKey struct {
	head protocol.BlockID
	req  Request
}

// Engine answers read queries.
type Engine struct {
	reader Reader
	cache  *lru.Cache[cacheKey, *Page]
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	cacheSize int
	logger    *slog.Logger
}

// WithCacheSize sets the number of cached pages. Zero disables the cache.
func WithCacheSize(n int) Option {
	return func(c *engineConfig) { c.cacheSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *engineConfig) { c.logger = l }
}

// New creates an engine reading through r.
func New(r Reader, opts ...Option) (*Engine, error) {
	cfg := engineConfig{cacheSize: 1024, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &Engine{reader: r, logger: cfg.logger}
	if cfg.cacheSize > 0 {
		cache, err := lru.New[cacheKey, *Page](cfg.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("query: cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

// Indices lists the accepted index names.
func Indices() []string {
	return []string{
		AccountsByName,
		DelegationsByDelegation,
		DelegationsByReceived,
		ExpirationsByAccount,
		OwnerHistoryByAccount,
		RecoveryRequestsByAccount,
		ChangeRecoveryRequestsByAccount,
		BandwidthByAccountType,
	}
}

// Normalize validates req and applies the default limit.
func Normalize(req Request) (Request, error) {
	if _, ok := listers[req.Index]; !ok {
		return req, fmt.Errorf("%w: unknown index %q", chainledger.ErrInvalidQuery, req.Index)
	}
	switch {
	case req.Limit == 0:
		req.Limit = DefaultLimit
	case req.Limit < 0 || req.Limit > MaxLimit:
		return req, fmt.Errorf("%w: limit %d outside 1..%d", chainledger.ErrInvalidQuery, req.Limit, MaxLimit)
	}
	if req.StartItem != "" && req.StartAccount == "" {
		return req, fmt.Errorf("%w: start_item requires start_account", chainledger.ErrInvalidQuery)
	}
	return req, nil
}

// List returns one page of req.Index.
func (e *Engine) List(req Request) (*Page, error) {
	req, err := Normalize(req)
	if err != nil {
		return nil, err
	}
	list := listers[req.Index]

	var page *Page
	e.reader.WithReadLock(func(s *store.State) {
		key := cacheKey{req: req}
		if p, perr := s.Props(); perr == nil {
			key.head = p.HeadBlockID
		}
		if e.cache != nil {
			if cached, ok := e.cache.Get(key); ok {
				page = cached
				return
			}
		}
		var items []any
		var next *Cursor
		items, next, err = list(s, req)
		if err != nil {
			return
		}
		page = &Page{Index: req.Index, Items: items, Next: next}
		e.logger.Debug("query page built",
			"index", req.Index,
			"start_account", req.StartAccount,
			"items", len(items),
		)
		if e.cache != nil {
			e.cache.Add(key, page)
		}
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Purge drops every cached page.
func (e *Engine) Purge() {
	if e.cache != nil {
		e.cache.Purge()
	}
}

// ──────────────────────────────────────────────────
// Index listers
// ──────────────────────────────────────────────────

type lister func(s *store.State, req Request) ([]any, *Cursor, error)

var listers = map[string]lister{
	AccountsByName: func(s *store.State, req Request) ([]any, *Cursor, error) {
		if req.StartItem != "" {
			return nil, nil, singleKey(req)
		}
		items, next := collect(s.Accounts.ByName.LowerBound(req.StartAccount), req.Limit,
			func(a *account.Account) Cursor { return Cursor{StartAccount: a.Name} })
		return items, next, nil
	},
	DelegationsByDelegation: func(s *store.State, req Request) ([]any, *Cursor, error) {
		idx := s.Delegations.ByDelegation
		items, next := collect(idx.LowerBound(chainbase.MakePair(req.StartAccount, req.StartItem)), req.Limit,
			func(d *delegation.VestingDelegation) Cursor { return Cursor{StartAccount: d.Delegator, StartItem: d.Delegatee} })
		return items, next, nil
	},
	DelegationsByReceived: func(s *store.State, req Request) ([]any, *Cursor, error) {
		idx := s.Delegations.ByReceived
		items, next := collect(idx.LowerBound(chainbase.MakePair(req.StartAccount, req.StartItem)), req.Limit,
			func(d *delegation.VestingDelegation) Cursor { return Cursor{StartAccount: d.Delegatee, StartItem: d.Delegator} })
		return items, next, nil
	},
	ExpirationsByAccount: func(s *store.State, req Request) ([]any, *Cursor, error) {
		ts, id, err := parseTimeItem(req.StartItem)
		if err != nil {
			return nil, nil, err
		}
		idx := s.Delegations.ByAccountExpiration
		items, next := collect(idx.LowerBound(chainbase.MakeTriple(req.StartAccount, ts, id)), req.Limit,
			func(x *delegation.Expiration) Cursor {
				return Cursor{StartAccount: x.Delegator, StartItem: timeItem(x.Expiration, x.ID)}
			})
		return items, next, nil
	},
	OwnerHistoryByAccount: func(s *store.State, req Request) ([]any, *Cursor, error) {
		ts, id, err := parseTimeItem(req.StartItem)
		if err != nil {
			return nil, nil, err
		}
		idx := s.Accounts.OwnerHistoryByAccount
		items, next := collect(idx.LowerBound(chainbase.MakeTriple(req.StartAccount, ts, id)), req.Limit,
			func(h *account.OwnerAuthorityHistory) Cursor {
				return Cursor{StartAccount: h.Account, StartItem: timeItem(h.LastValidTime, h.ID)}
			})
		return items, next, nil
	},
	RecoveryRequestsByAccount: func(s *store.State, req Request) ([]any, *Cursor, error) {
		if req.StartItem != "" {
			return nil, nil, singleKey(req)
		}
		items, next := collect(s.Accounts.RecoveryByAccount.LowerBound(req.StartAccount), req.Limit,
			func(r *account.AccountRecoveryRequest) Cursor { return Cursor{StartAccount: r.AccountToRecover} })
		return items, next, nil
	},
	ChangeRecoveryRequestsByAccount: func(s *store.State, req Request) ([]any, *Cursor, error) {
		if req.StartItem != "" {
			return nil, nil, singleKey(req)
		}
		items, next := collect(s.Accounts.ChangeRecoveryByAccount.LowerBound(req.StartAccount), req.Limit,
			func(r *account.ChangeRecoveryAccountRequest) Cursor { return Cursor{StartAccount: r.AccountToRecover} })
		return items, next, nil
	},
	BandwidthByAccountType: func(s *store.State, req Request) ([]any, *Cursor, error) {
		var kind bandwidth.Type
		if req.StartItem != "" {
			if err := kind.UnmarshalText([]byte(req.StartItem)); err != nil {
				return nil, nil, fmt.Errorf("%w: start_item: %w", chainledger.ErrInvalidQuery, err)
			}
		}
		idx := s.Bandwidth.ByAccountType
		items, next := collect(idx.LowerBound(chainbase.MakePair(req.StartAccount, kind)), req.Limit,
			func(b *bandwidth.AccountBandwidth) Cursor {
				return Cursor{StartAccount: b.Account, StartItem: b.Type.String()}
			})
		return items, next, nil
	},
}

// collect copies up to limit objects from seq. The key of the first object
// past the page becomes the next cursor.
func collect[T any, P chainbase.Record[T]](seq iter.Seq[P], limit int, cursorOf func(P) Cursor) ([]any, *Cursor) {
	items := make([]any, 0, limit)
	var next *Cursor
	for p := range seq {
		if len(items) == limit {
			c := cursorOf(p)
			next = &c
			break
		}
		items = append(items, chainbase.Copy[T](p))
	}
	return items, next
}

func singleKey(req Request) error {
	return fmt.Errorf("%w: %s takes no start_item", chainledger.ErrInvalidQuery, req.Index)
}

// timeItem formats the (time, id) tail of a composite key as a cursor item.
func timeItem(ts types.Timestamp, id chainbase.ID) string {
	return fmt.Sprintf("%d:%d", uint32(ts), uint64(id))
}

func parseTimeItem(s string) (types.Timestamp, chainbase.ID, error) {
	if s == "" {
		return 0, 0, nil
	}
	tsPart, idPart, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: start_item %q is not <time>:<id>", chainledger.ErrInvalidQuery, s)
	}
	ts, err := strconv.ParseUint(tsPart, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: start_item time: %w", chainledger.ErrInvalidQuery, err)
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: start_item id: %w", chainledger.ErrInvalidQuery, err)
	}
	return types.Timestamp(ts), chainbase.ID(id), nil
}
