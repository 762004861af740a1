package geo

import (
	"sort"
	"sync"

	"github.com/tidwall/rtree"
)

// DefaultMaxResults caps FindNear when the caller does not pass a limit.
const DefaultMaxResults = 50

// Entry is an indexed account location together with the attributes
// proximity queries filter on.
type Entry struct {
	ID       string
	Point    Point
	Role     string
	Approval string
	Active   bool
}

// Filter selects entries by attribute. Empty fields match anything.
type Filter struct {
	Role       string
	Approval   string
	ActiveOnly bool
}

// Match reports whether e satisfies the filter.
func (f Filter) Match(e Entry) bool {
	if f.Role != "" && e.Role != f.Role {
		return false
	}
	if f.Approval != "" && e.Approval != f.Approval {
		return false
	}
	if f.ActiveOnly && !e.Active {
		return false
	}
	return true
}

// Match is a FindNear result.
type Match struct {
	Entry
	DistanceMeters float64
}

// Index is a concurrency-safe spatial index of entries keyed by ID.
type Index struct {
	mu         sync.RWMutex
	tree       *rtree.RTreeG[string]
	entries    map[string]Entry
	maxResults int
}

func NewIndex(maxResults int) *Index {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Index{
		tree:       &rtree.RTreeG[string]{},
		entries:    make(map[string]Entry),
		maxResults: maxResults,
	}
}

// Upsert inserts e or moves an existing entry with the same ID.
func (ix *Index) Upsert(e Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.entries[e.ID]; ok {
		ix.tree.Delete(pointBounds(old.Point), pointBounds(old.Point), old.ID)
	}
	ix.entries[e.ID] = e
	ix.tree.Insert(pointBounds(e.Point), pointBounds(e.Point), e.ID)
}

// Remove drops the entry with the given ID, if present.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	old, ok := ix.entries[id]
	if !ok {
		return
	}
	ix.tree.Delete(pointBounds(old.Point), pointBounds(old.Point), id)
	delete(ix.entries, id)
}

// Replace swaps the whole index contents for entries. The new tree is built
// before the write lock is taken so readers only wait for the swap.
func (ix *Index) Replace(entries []Entry) {
	tree := &rtree.RTreeG[string]{}
	byID := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if !e.Point.Valid() {
			continue
		}
		if old, ok := byID[e.ID]; ok {
			tree.Delete(pointBounds(old.Point), pointBounds(old.Point), old.ID)
		}
		byID[e.ID] = e
		tree.Insert(pointBounds(e.Point), pointBounds(e.Point), e.ID)
	}

	ix.mu.Lock()
	ix.tree = tree
	ix.entries = byID
	ix.mu.Unlock()
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// FindNear returns entries within radiusMeters of p that satisfy f, nearest
// first, truncated to limit (or the index default when limit <= 0).
func (ix *Index) FindNear(p Point, radiusMeters float64, f Filter, limit int) []Match {
	if limit <= 0 || limit > ix.maxResults {
		limit = ix.maxResults
	}
	if radiusMeters <= 0 || !p.Valid() {
		return nil
	}

	ix.mu.RLock()
	var matches []Match
	seen := make(map[string]struct{})
	for _, rect := range BoundingBox(p, radiusMeters) {
		min, max := rect.bounds()
		ix.tree.Search(min, max, func(_, _ [2]float64, id string) bool {
			if _, dup := seen[id]; dup {
				return true
			}
			seen[id] = struct{}{}

			e := ix.entries[id]
			if !f.Match(e) {
				return true
			}
			d := Distance(p, e.Point)
			if d <= radiusMeters {
				matches = append(matches, Match{Entry: e, DistanceMeters: d})
			}
			return true
		})
	}
	ix.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DistanceMeters == matches[j].DistanceMeters {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].DistanceMeters < matches[j].DistanceMeters
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func pointBounds(p Point) [2]float64 {
	return [2]float64{p.Lng, p.Lat}
}
