package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/okian/periodrank/internal/domain/model"
	"github.com/okian/periodrank/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: rating DESC, deviation ASC, then name ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the ranked list.

// treap node
type node struct {
	player model.PlayerRating
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

// namePriority derives a stable heap priority from the player name.
func namePriority(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

func insert(n *node, p model.PlayerRating) *node {
	if n == nil {
		return &node{player: p, prio: namePriority(p.Name), size: 1}
	}
	if ranksBefore(p, n.player) {
		n.left = insert(n.left, p)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, p)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, p model.PlayerRating) *node {
	if n == nil {
		return nil
	}
	if p.Name == n.player.Name {
		// Rotate the higher-priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, p)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, p)
		}
	} else if ranksBefore(p, n.player) {
		n.left = deleteNode(n.left, p)
	} else {
		n.right = deleteNode(n.right, p)
	}
	fix(n)
	return n
}

// collectAll appends all players in rank order.
func collectAll(n *node, out *[]model.PlayerRating) {
	if n == nil {
		return
	}
	collectAll(n.left, out)
	*out = append(*out, n.player)
	collectAll(n.right, out)
}

// MemoryStore keeps ratings and the ledger in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	root    *node
	byName  map[string]model.PlayerRating
	periods map[string]struct{}
	ledger  []string

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore constructs a treap-backed store with configuration options.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byName:                make(map[string]model.PlayerRating),
		periods:               make(map[string]struct{}),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background metrics goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// GetPlayer returns the stored rating of name.
func (s *MemoryStore) GetPlayer(_ context.Context, name string) (p model.PlayerRating, err error) {
	defer func(start time.Time) { observe(BackendMemory, "get_player", start, err) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byName[name]
	if !ok {
		return model.PlayerRating{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, name)
	}
	return p, nil
}

// ListPlayers returns all players in rank order.
func (s *MemoryStore) ListPlayers(_ context.Context) ([]model.PlayerRating, error) {
	defer func(start time.Time) { observe(BackendMemory, "list_players", start, nil) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PlayerRating, 0, len(s.byName))
	collectAll(s.root, &out)
	return out, nil
}

// CountPlayers returns the number of players.
func (s *MemoryStore) CountPlayers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName), nil
}

// IsPeriodApplied reports whether id is in the ledger.
func (s *MemoryStore) IsPeriodApplied(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.periods[id]
	return ok, nil
}

// AppliedPeriods returns the ledger in application order.
func (s *MemoryStore) AppliedPeriods(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ledger...), nil
}

// CreatePlayer implements Writer as a single-operation unit.
func (s *MemoryStore) CreatePlayer(ctx context.Context, name string, rating, deviation, volatility float64) error {
	return s.Atomically(ctx, func(ctx context.Context, w Writer) error {
		return w.CreatePlayer(ctx, name, rating, deviation, volatility)
	})
}

// UpdatePlayer implements Writer as a single-operation unit.
func (s *MemoryStore) UpdatePlayer(ctx context.Context, u model.RatingUpdate) error {
	return s.Atomically(ctx, func(ctx context.Context, w Writer) error {
		return w.UpdatePlayer(ctx, u)
	})
}

// MarkPeriodApplied implements Writer as a single-operation unit.
func (s *MemoryStore) MarkPeriodApplied(ctx context.Context, id string) error {
	return s.Atomically(ctx, func(ctx context.Context, w Writer) error {
		return w.MarkPeriodApplied(ctx, id)
	})
}

// Atomically stages writes made through w and publishes them together once
// fn returns nil. The store's write lock is held for the duration, so fn must
// not call back into the store.
func (s *MemoryStore) Atomically(ctx context.Context, fn func(ctx context.Context, w Writer) error) (err error) {
	defer func(start time.Time) { observe(BackendMemory, "commit", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		base:    s,
		players: make(map[string]model.PlayerRating),
		periods: make(map[string]struct{}),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory store: %w", err)
	}

	for _, name := range tx.order {
		p := tx.players[name]
		if old, ok := s.byName[name]; ok {
			s.root = deleteNode(s.root, old)
		}
		s.byName[name] = p
		s.root = insert(s.root, p)
	}
	for _, id := range tx.ledger {
		s.periods[id] = struct{}{}
		s.ledger = append(s.ledger, id)
	}
	return nil
}

// memoryTx overlays staged writes on the store's committed state.
type memoryTx struct {
	base    *MemoryStore
	players map[string]model.PlayerRating
	order   []string
	periods map[string]struct{}
	ledger  []string
}

func (t *memoryTx) lookup(name string) (model.PlayerRating, bool) {
	if p, ok := t.players[name]; ok {
		return p, true
	}
	p, ok := t.base.byName[name]
	return p, ok
}

func (t *memoryTx) stage(p model.PlayerRating) {
	if _, ok := t.players[p.Name]; !ok {
		t.order = append(t.order, p.Name)
	}
	t.players[p.Name] = p
}

func (t *memoryTx) CreatePlayer(_ context.Context, name string, rating, deviation, volatility float64) error {
	if name == "" {
		return ErrInvalidName
	}
	if _, ok := t.lookup(name); ok {
		return fmt.Errorf("%w: %s", ErrPlayerExists, name)
	}
	t.stage(model.NewPlayerRating(name, rating, deviation, volatility))
	return nil
}

func (t *memoryTx) UpdatePlayer(_ context.Context, u model.RatingUpdate) error {
	p, ok := t.lookup(u.Name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, u.Name)
	}
	t.stage(p.Apply(u))
	return nil
}

func (t *memoryTx) MarkPeriodApplied(_ context.Context, id string) error {
	if id == "" {
		return ErrInvalidName
	}
	if _, ok := t.base.periods[id]; ok {
		return fmt.Errorf("%w: %s", ErrPeriodApplied, id)
	}
	if _, ok := t.periods[id]; ok {
		return fmt.Errorf("%w: %s", ErrPeriodApplied, id)
	}
	t.periods[id] = struct{}{}
	t.ledger = append(t.ledger, id)
	return nil
}

// startMetricsUpdater periodically publishes the player count.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics() {
	s.mu.RLock()
	n := len(s.byName)
	s.mu.RUnlock()
	metrics.UpdatePlayersTotal(n)
}
