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

// ShowQuery is the series page state.
type ShowQuery struct {
	SearchTerm string `json:"query"`
	Page       int    `json:"page"`
}

type ShowsSnapshot struct {
	Listing
	Query ShowQuery `json:"query"`
}

// ShowsPage lists popular or searched tv series.
type ShowsPage struct {
	*base
	shows ShowCatalog

	mu      sync.Mutex
	query   ShowQuery
	current catalog.Page
}

func NewShowsPage(shows ShowCatalog, shared Shared, query ShowQuery) (*ShowsPage, error) {
	if shows == nil {
		return nil, errors.Join(ErrMissingDependency, errors.New("show catalog"))
	}
	b, err := newBase(shared)
	if err != nil {
		return nil, err
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	return &ShowsPage{base: b, shows: shows, query: query}, nil
}

func (p *ShowsPage) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SyncFavorites(ctx)
	return p.fetch(ctx, p.query, notify.MessageLoadFailed)
}

func (p *ShowsPage) Search(ctx context.Context, term string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetch(ctx, ShowQuery{SearchTerm: strings.TrimSpace(term), Page: 1}, notify.MessageSearchFailed)
}

func (p *ShowsPage) NextPage(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current.TotalPages > 0 && p.query.Page >= p.current.TotalPages {
		return ErrNoNextPage
	}
	next := p.query
	next.Page++
	return p.fetch(ctx, next, notify.MessagePageFailed)
}

func (p *ShowsPage) PrevPage(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.query.Page <= 1 {
		return nil
	}
	prev := p.query
	prev.Page--
	return p.fetch(ctx, prev, notify.MessagePageFailed)
}

func (p *ShowsPage) ClearFilters(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetch(ctx, ShowQuery{Page: 1}, notify.MessageLoadFailed)
}

func (p *ShowsPage) ToggleFavorite(ctx context.Context, item catalog.Item) (favorites.ToggleResult, error) {
	return p.toggle(ctx, item)
}

func (p *ShowsPage) Snapshot() ShowsSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ShowsSnapshot{
		Listing: Listing{
			Results:      p.render(p.current.Items, posterImage(p.shows.PosterURL)),
			Page:         p.query.Page,
			TotalPages:   p.current.TotalPages,
			TotalResults: p.current.TotalResults,
			HasPrev:      p.query.Page > 1,
			HasNext:      p.query.Page < p.current.TotalPages,
			Notification: p.takeNotification(),
		},
		Query: p.query,
	}
}

func (p *ShowsPage) fetch(ctx context.Context, query ShowQuery, failure string) error {
	page, err := p.shows.Shows(ctx, catalog.PlanShowQuery(query.SearchTerm, query.Page))
	if err != nil {
		return p.fail(ctx, failure, err)
	}
	p.query = query
	p.current = page
	return nil
}
