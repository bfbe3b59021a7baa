package views

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"github.com/MarcoPoloResearchLab/marquee/internal/favorites"
	"github.com/MarcoPoloResearchLab/marquee/internal/notify"
)

// DefaultFavoritesPageSize is the client-side page size of the favorites list.
const DefaultFavoritesPageSize = 20

// FavoritesQuery is the favorites page state. Filtering and paging run over
// the in-memory list.
type FavoritesQuery struct {
	Filter catalog.FilterState `json:"filter"`
	Offset int                 `json:"offset"`
	Limit  int                 `json:"limit"`
}

func (q FavoritesQuery) normalized() FavoritesQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultFavoritesPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if strings.TrimSpace(q.Filter.OrderBy) == "" {
		q.Filter.OrderBy = catalog.OrderTitleAsc
	}
	return q
}

type FavoritesSnapshot struct {
	Listing
	Query FavoritesQuery `json:"query"`
}

// FavoritesPage shows the signed-in user's favorites of every media type.
type FavoritesPage struct {
	*base
	posterURL func(*string) string

	mu     sync.Mutex
	query  FavoritesQuery
	all    []catalog.Item
	loaded bool
}

// NewFavoritesPage builds the page. posterURL may be nil, in which case the
// default TMDB image host is used.
func NewFavoritesPage(shared Shared, posterURL func(*string) string, query FavoritesQuery) (*FavoritesPage, error) {
	b, err := newBase(shared)
	if err != nil {
		return nil, err
	}
	return &FavoritesPage{base: b, posterURL: posterURL, query: query.normalized()}, nil
}

// Load reads the whole favorites collection.
func (p *FavoritesPage) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, err := p.favorites.ListItems(ctx)
	if err != nil {
		if errors.Is(err, favorites.ErrUnauthenticated) {
			return p.fail(ctx, notify.MessageSignedOut, err)
		}
		return p.fail(ctx, notify.MessageLoadFailed, err)
	}
	ids := make(favorites.IDSet, len(items))
	for _, item := range items {
		ids[item.ID()] = struct{}{}
	}
	p.tracker.Sync(ids)
	p.all = items
	p.loaded = true
	if len(items) == 0 {
		p.inform(ctx, notify.MessageFavoritesEmpty)
	}
	return nil
}

// Search filters by title from the first page.
func (p *FavoritesPage) Search(_ context.Context, term string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.query.Filter.SearchTerm = term
	p.query.Offset = 0
	return nil
}

// Filter replaces order, synopsis and date filters, keeping the term.
func (p *FavoritesPage) Filter(_ context.Context, filter catalog.FilterState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	filter.SearchTerm = p.query.Filter.SearchTerm
	p.query.Filter = filter
	p.query.Offset = 0
	p.query = p.query.normalized()
	return nil
}

func (p *FavoritesPage) NextPage(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := len(catalog.ApplyFilters(p.all, p.query.Filter))
	if p.query.Offset+p.query.Limit >= total {
		return ErrNoNextPage
	}
	p.query.Offset += p.query.Limit
	return nil
}

func (p *FavoritesPage) PrevPage(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.query.Offset -= p.query.Limit
	if p.query.Offset < 0 {
		p.query.Offset = 0
	}
	return nil
}

func (p *FavoritesPage) ClearFilters(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.query = FavoritesQuery{Filter: catalog.DefaultFilterState(), Limit: p.query.Limit}.normalized()
	return nil
}

// Remove deletes one favorite through the toggle guard and drops it from
// the list.
func (p *FavoritesPage) Remove(ctx context.Context, itemID int64) error {
	if err := p.favorites.RemoveTracked(ctx, p.tracker, itemID); err != nil {
		switch {
		case errors.Is(err, favorites.ErrUnauthenticated):
			return p.fail(ctx, notify.MessageSignedOut, err)
		case errors.Is(err, favorites.ErrTogglePending):
			return p.fail(ctx, notify.MessageTogglePending, err)
		default:
			return p.fail(ctx, notify.MessageToggleFailed, err)
		}
	}
	p.drop(itemID)
	p.inform(ctx, notify.MessageRemoved)
	return nil
}

// ToggleFavorite removes a listed favorite through the toggle guard.
func (p *FavoritesPage) ToggleFavorite(ctx context.Context, item catalog.Item) (favorites.ToggleResult, error) {
	result, err := p.toggle(ctx, item)
	if err == nil && !result.Added {
		p.drop(item.ID())
	}
	return result, err
}

func (p *FavoritesPage) drop(itemID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := make([]catalog.Item, 0, len(p.all))
	for _, item := range p.all {
		if item.ID() != itemID {
			kept = append(kept, item)
		}
	}
	p.all = kept
	if total := len(catalog.ApplyFilters(p.all, p.query.Filter)); p.query.Offset >= total && p.query.Offset > 0 {
		p.query.Offset -= p.query.Limit
		if p.query.Offset < 0 {
			p.query.Offset = 0
		}
	}
}

// Snapshot applies the filters and cuts the current page.
func (p *FavoritesPage) Snapshot() FavoritesSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	filtered := catalog.ApplyFilters(p.all, p.query.Filter)
	start := p.query.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + p.query.Limit
	if end > len(filtered) {
		end = len(filtered)
	}
	totalPages := (len(filtered) + p.query.Limit - 1) / p.query.Limit
	page := p.query.Offset/p.query.Limit + 1
	return FavoritesSnapshot{
		Listing: Listing{
			Results:      p.render(filtered[start:end], mixedImage(p.posterURL)),
			Page:         page,
			TotalPages:   totalPages,
			TotalResults: len(filtered),
			HasPrev:      page > 1,
			HasNext:      end < len(filtered),
			Notification: p.takeNotification(),
		},
		Query: p.query,
	}
}
