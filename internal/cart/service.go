package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/0355290812/petapp-cart/internal/api"
	"github.com/0355290812/petapp-cart/internal/auth"
	"github.com/0355290812/petapp-cart/internal/domain"
	"github.com/0355290812/petapp-cart/internal/store"
)

// RemoteCart is the slice of the remote cart API the store mirrors into.
// Consumers define this interface, not the HTTP client.
type RemoteCart interface {
	GetCart(ctx context.Context) (*api.ServerCart, error)
	AddItem(ctx context.Context, productID string, quantity int) error
	UpdateQuantity(ctx context.Context, productID string, quantity int) error
	RemoveItem(ctx context.Context, productID string) error
	ClearCart(ctx context.Context) error
}

// AuthState answers whether mutations should be mirrored to the server.
type AuthState interface {
	LoggedIn() bool
}

// RemoteStatus tags what happened to the remote half of a mutation.
type RemoteStatus int

const (
	// RemoteSkipped: no mirror was attempted (logged out).
	RemoteSkipped RemoteStatus = iota
	// RemotePending: a best-effort mirror was launched. Its failure is
	// logged, never rolled back, and never reaches the caller.
	RemotePending
)

// Result reports a mutation's outcome. Err covers the local step only:
// validation failures (ErrStockExceeded, ErrItemNotFound) or a snapshot
// persistence failure. The in-memory cart is authoritative for the UI
// either way once Err is a persistence error.
type Result struct {
	Err    error
	Remote RemoteStatus
}

func (r Result) Success() bool { return r.Err == nil }

const mirrorTimeout = 5 * time.Second

// Service is the local-first cart store: one in-memory snapshot, persisted
// to the local store on every mutation and best-effort mirrored to the
// remote API while a user is logged in.
//
// Mutations commit the new in-memory state under the mutex before any I/O
// starts. Keep it that way: it is what makes rapid successive mutations
// safe without storage-level locking.
type Service struct {
	store  store.SnapshotStore
	remote RemoteCart
	authed AuthState
	log    *zap.Logger

	sfg singleflight.Group // collapses concurrent login pulls

	mu    sync.Mutex
	lines []domain.CartLine

	loading    atomic.Bool
	generation atomic.Uint64 // bumped on logout; stale pulls are discarded

	// mirrorDone is a test seam observing background mirror completion.
	mirrorDone func(op string, err error)
}

func NewService(snapshots store.SnapshotStore, remote RemoteCart, authed AuthState, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:  snapshots,
		remote: remote,
		authed: authed,
		log:    log,
	}
}

// Cart returns a copy of the current snapshot in display order.
func (s *Service) Cart() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneLines(s.lines)
}

// CartCount is the number of distinct lines, not the quantity sum.
func (s *Service) CartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.LineCount(s.lines)
}

// CartTotal sums unit price times quantity over the stored snapshot.
func (s *Service) CartTotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Total(s.lines)
}

// Loading reports whether the post-login server pull is still in flight.
func (s *Service) Loading() bool {
	return s.loading.Load()
}

// AddToCart merges quantity into an existing line for the same product or
// appends a new line built from the catalog snapshot. Quantities below 1
// are treated as 1. The stock guard uses the line's cached stock value,
// not a live catalog read.
func (s *Service) AddToCart(ctx context.Context, product domain.Product, quantity int) Result {
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	idx := s.indexOf(product.ID)
	if idx >= 0 {
		line := s.lines[idx]
		if line.Quantity+quantity > line.Stock {
			s.mu.Unlock()
			return Result{Err: fmt.Errorf("%w: %d in stock for %s", ErrStockExceeded, line.Stock, product.ID)}
		}
		s.lines[idx].Quantity += quantity
	} else {
		if quantity > product.Stock {
			s.mu.Unlock()
			return Result{Err: fmt.Errorf("%w: %d in stock for %s", ErrStockExceeded, product.Stock, product.ID)}
		}
		s.lines = append(s.lines, domain.NewLine(product, quantity))
	}
	snapshot := domain.CloneLines(s.lines)
	s.mu.Unlock()

	res := s.persist(ctx, snapshot)
	if s.authed.LoggedIn() {
		res.Remote = RemotePending
		s.mirror("add", func(ctx context.Context) error {
			return s.remote.AddItem(ctx, product.ID, quantity)
		})
	}
	return res
}

// UpdateItemQuantity sets a line's quantity. Quantities below 1 delegate
// to RemoveFromCart instead of erroring.
func (s *Service) UpdateItemQuantity(ctx context.Context, productID string, quantity int) Result {
	if quantity < 1 {
		return s.RemoveFromCart(ctx, productID)
	}

	s.mu.Lock()
	idx := s.indexOf(productID)
	if idx < 0 {
		s.mu.Unlock()
		return Result{Err: fmt.Errorf("%w: %s", ErrItemNotFound, productID)}
	}
	if quantity > s.lines[idx].Stock {
		stock := s.lines[idx].Stock
		s.mu.Unlock()
		return Result{Err: fmt.Errorf("%w: %d in stock for %s", ErrStockExceeded, stock, productID)}
	}
	s.lines[idx].Quantity = quantity
	snapshot := domain.CloneLines(s.lines)
	s.mu.Unlock()

	res := s.persist(ctx, snapshot)
	if s.authed.LoggedIn() {
		res.Remote = RemotePending
		s.mirror("update", func(ctx context.Context) error {
			return s.remote.UpdateQuantity(ctx, productID, quantity)
		})
	}
	return res
}

// RemoveFromCart drops the line for productID. Removing an absent line is
// a no-op success.
func (s *Service) RemoveFromCart(ctx context.Context, productID string) Result {
	s.mu.Lock()
	idx := s.indexOf(productID)
	if idx >= 0 {
		s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	}
	snapshot := domain.CloneLines(s.lines)
	s.mu.Unlock()

	res := s.persist(ctx, snapshot)
	if s.authed.LoggedIn() {
		res.Remote = RemotePending
		s.mirror("remove", func(ctx context.Context) error {
			return s.remote.RemoveItem(ctx, productID)
		})
	}
	return res
}

// ClearCart empties the snapshot unconditionally.
func (s *Service) ClearCart(ctx context.Context) Result {
	s.mu.Lock()
	s.lines = nil
	s.mu.Unlock()

	res := s.persist(ctx, []domain.CartLine{})
	if s.authed.LoggedIn() {
		res.Remote = RemotePending
		s.mirror("clear", func(ctx context.Context) error {
			return s.remote.ClearCart(ctx)
		})
	}
	return res
}

// SyncToAPI replaces the server cart with the local one: clear, then one
// add per line, sequentially. This is not atomic — a failure partway
// through leaves the server cart partially populated with no rollback.
// Unlike the per-mutation mirrors this call is awaited and its error
// returned.
func (s *Service) SyncToAPI(ctx context.Context) error {
	if !s.authed.LoggedIn() {
		return ErrNotAuthenticated
	}

	s.mu.Lock()
	snapshot := domain.CloneLines(s.lines)
	s.mu.Unlock()

	if len(snapshot) == 0 {
		return ErrEmptyCart
	}

	if err := s.remote.ClearCart(ctx); err != nil {
		return fmt.Errorf("clear server cart: %w", err)
	}
	for _, line := range snapshot {
		if err := s.remote.AddItem(ctx, line.ProductID, line.Quantity); err != nil {
			return fmt.Errorf("replay line %s: %w", line.ProductID, err)
		}
	}
	return nil
}

// OnLogin runs the one-time-per-login reconciliation: pull the
// authoritative server cart if this device has not done so since the last
// login, otherwise just reload the local snapshot. Concurrent calls
// collapse into a single pull. A pull failure falls back to the local
// snapshot and leaves the flag unset so the next login retries.
func (s *Service) OnLogin(ctx context.Context) error {
	_, err, _ := s.sfg.Do("login-pull", func() (interface{}, error) {
		initialized, err := s.store.ServerInit(ctx)
		if err != nil {
			s.log.Warn("read server-init flag failed, assuming uninitialized", zap.Error(err))
		}

		local, err := s.loadLocal(ctx)
		if err != nil {
			s.log.Warn("load local cart failed", zap.Error(err))
		}

		_, _, fetchNeeded := Reconcile(true, initialized, local, nil)
		if !fetchNeeded {
			s.replace(local)
			return nil, nil
		}

		if err := s.pullFromServer(ctx, initialized, local); err != nil {
			s.replace(local)
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("login cart pull: %w", err)
	}
	return nil
}

// OnLogout clears the server-init flag so the next login pulls again.
// Cart contents are left untouched and keep serving as the guest cart.
func (s *Service) OnLogout(ctx context.Context) error {
	s.generation.Add(1)
	if err := s.store.ClearServerInit(ctx); err != nil {
		return fmt.Errorf("clear server-init flag: %w", err)
	}
	return nil
}

// RefreshFromServer forces a server pull regardless of the flag and
// replaces local state with the result.
func (s *Service) RefreshFromServer(ctx context.Context) error {
	if !s.authed.LoggedIn() {
		return ErrNotAuthenticated
	}
	s.mu.Lock()
	local := domain.CloneLines(s.lines)
	s.mu.Unlock()
	return s.pullFromServer(ctx, false, local)
}

// LoadFromStorage replaces in-memory state with the persisted snapshot.
// An empty store yields an empty cart.
func (s *Service) LoadFromStorage(ctx context.Context) error {
	local, err := s.loadLocal(ctx)
	if err != nil {
		return err
	}
	s.replace(local)
	return nil
}

// Run consumes login-state changes until ctx is cancelled or the channel
// closes. Pull failures are logged only; the UI keeps whatever snapshot
// is loaded.
func (s *Service) Run(ctx context.Context, changes <-chan auth.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if c.LoggedIn {
				if err := s.OnLogin(ctx); err != nil {
					s.log.Warn("cart reconciliation after login failed", zap.Error(err))
				}
			} else {
				if err := s.OnLogout(ctx); err != nil {
					s.log.Warn("cart reset after logout failed", zap.Error(err))
				}
			}
		}
	}
}

// pullFromServer fetches the authoritative cart, maps it, and commits it
// to memory and storage. A response arriving after the session has since
// changed (logout mid-pull) is discarded.
func (s *Service) pullFromServer(ctx context.Context, initialized bool, local []domain.CartLine) error {
	gen := s.generation.Load()

	s.loading.Store(true)
	defer s.loading.Store(false)

	server, err := s.remote.GetCart(ctx)
	if err != nil {
		s.log.Warn("fetch server cart failed", zap.Error(err))
		return fmt.Errorf("fetch server cart: %w", err)
	}

	if s.generation.Load() != gen {
		s.log.Info("discarding stale server cart, session changed mid-pull")
		return nil
	}

	snapshot, newFlag, _ := Reconcile(true, initialized, local, server)
	s.replace(snapshot)

	if err := s.store.SaveCart(ctx, snapshot); err != nil {
		s.log.Error("persist pulled cart failed", zap.Error(err))
	}
	if newFlag {
		if err := s.store.SetServerInit(ctx); err != nil {
			s.log.Error("set server-init flag failed", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) loadLocal(ctx context.Context) ([]domain.CartLine, error) {
	lines, err := s.store.LoadCart(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart snapshot: %w", err)
	}
	return lines, nil
}

func (s *Service) replace(lines []domain.CartLine) {
	s.mu.Lock()
	s.lines = lines
	s.mu.Unlock()
}

// persist writes the committed snapshot. The in-memory state stands even
// when the write fails; the failure is logged and surfaced in Result.Err.
func (s *Service) persist(ctx context.Context, snapshot []domain.CartLine) Result {
	if err := s.store.SaveCart(ctx, snapshot); err != nil {
		s.log.Error("persist cart snapshot failed", zap.Error(err))
		return Result{Err: fmt.Errorf("persist cart snapshot: %w", err)}
	}
	return Result{}
}

// mirror runs one best-effort remote write in the background with its own
// timeout. Failures are logged and dropped; local state never rolls back.
func (s *Service) mirror(op string, call func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()

		err := call(ctx)
		if err != nil {
			s.log.Warn("remote cart mirror failed", zap.String("op", op), zap.Error(err))
		}
		if s.mirrorDone != nil {
			s.mirrorDone(op, err)
		}
	}()
}

// caller must hold s.mu
func (s *Service) indexOf(productID string) int {
	for i := range s.lines {
		if s.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}
