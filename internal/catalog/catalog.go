// Package catalog serves the auctionable players in auction order. Players
// are immutable once imported so the ordered list is cached after first use.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jensholdgaard/cricket-auction/internal/auctionerrors"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

// Catalog is an ordered, cached view over a PlayerRepository.
// It is safe for concurrent use.
type Catalog struct {
	repo store.PlayerRepository

	mu      sync.RWMutex
	ordered []store.Player
	index   map[int64]int
}

// New returns a Catalog reading from repo.
func New(repo store.PlayerRepository) *Catalog {
	return &Catalog{repo: repo}
}

// Import stores players and refreshes the cache.
func (c *Catalog) Import(ctx context.Context, players []store.Player) error {
	if err := c.repo.Import(ctx, players); err != nil {
		return fmt.Errorf("importing players: %w", err)
	}
	return c.Reload(ctx)
}

// Reload re-reads the catalog from the repository.
func (c *Catalog) Reload(ctx context.Context) error {
	players, err := c.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	sort.SliceStable(players, func(i, j int) bool { return less(players[i], players[j]) })

	index := make(map[int64]int, len(players))
	for i, p := range players {
		index[p.ID] = i
	}

	c.mu.Lock()
	c.ordered = players
	c.index = index
	c.mu.Unlock()
	return nil
}

// snapshot returns the cached list, loading it if the cache is empty.
func (c *Catalog) snapshot(ctx context.Context) ([]store.Player, map[int64]int, error) {
	c.mu.RLock()
	ordered, index := c.ordered, c.index
	c.mu.RUnlock()
	if len(ordered) > 0 {
		return ordered, index, nil
	}
	if err := c.Reload(ctx); err != nil {
		return nil, nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ordered, c.index, nil
}

// List returns every player in auction order.
func (c *Catalog) List(ctx context.Context) ([]store.Player, error) {
	ordered, _, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return append([]store.Player(nil), ordered...), nil
}

// First returns the first player by (set_no, id).
func (c *Catalog) First(ctx context.Context) (*store.Player, error) {
	ordered, _, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(ordered) == 0 {
		return nil, auctionerrors.ErrEmptyCatalog
	}
	p := ordered[0]
	return &p, nil
}

// Next returns the player after current: the next higher id in the same
// set, else the first player of the next higher set. ok is false when
// current was the last player.
func (c *Catalog) Next(ctx context.Context, current store.Player) (next *store.Player, ok bool, err error) {
	ordered, _, err := c.snapshot(ctx)
	if err != nil {
		return nil, false, err
	}
	i := sort.Search(len(ordered), func(i int) bool { return less(current, ordered[i]) })
	if i == len(ordered) {
		return nil, false, nil
	}
	p := ordered[i]
	return &p, true, nil
}

// Upcoming returns every player after current in auction order, or the
// whole catalog when current is nil.
func (c *Catalog) Upcoming(ctx context.Context, current *store.Player) ([]store.Player, error) {
	ordered, _, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return append([]store.Player(nil), ordered...), nil
	}
	i := sort.Search(len(ordered), func(i int) bool { return less(*current, ordered[i]) })
	return append([]store.Player(nil), ordered[i:]...), nil
}

// Get returns the player with id.
func (c *Catalog) Get(ctx context.Context, id int64) (*store.Player, error) {
	ordered, index, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := index[id]
	if !ok {
		// Imported after the cache was filled.
		p, err := c.repo.GetByID(ctx, id)
		if err != nil {
			return nil, auctionerrors.ErrPlayerNotFound.WithMessage("Player %d not found", id)
		}
		return p, nil
	}
	p := ordered[i]
	return &p, nil
}

// GetMany returns the players for ids in the order given, skipping unknown
// and repeated ids. Callers compare lengths to detect invalid input.
func (c *Catalog) GetMany(ctx context.Context, ids []int64) ([]store.Player, error) {
	ordered, index, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]store.Player, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if i, ok := index[id]; ok {
			out = append(out, ordered[i])
		}
	}
	return out, nil
}

func less(a, b store.Player) bool {
	if a.SetNo != b.SetNo {
		return a.SetNo < b.SetNo
	}
	return a.ID < b.ID
}
