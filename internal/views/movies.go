package views

import (
	"context"
	"errors"
	"sync"

	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"github.com/MarcoPoloResearchLab/marquee/internal/favorites"
	"github.com/MarcoPoloResearchLab/marquee/internal/notify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Listing is the rendered state common to every page.
type Listing struct {
	Results      []ItemView           `json:"results"`
	Page         int                  `json:"page"`
	TotalPages   int                  `json:"total_pages"`
	TotalResults int                  `json:"total_results"`
	HasPrev      bool                 `json:"has_prev"`
	HasNext      bool                 `json:"has_next"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

// MoviesSnapshot is the rendered movie page.
type MoviesSnapshot struct {
	Listing
	Query  catalog.QueryState `json:"query"`
	Genres []catalog.Genre    `json:"genres,omitempty"`
}

// MoviesPage lists popular, searched or discovered movies.
type MoviesPage struct {
	*base
	movies MovieCatalog

	mu      sync.Mutex
	state   catalog.QueryState
	current catalog.Page
	genres  []catalog.Genre
}

// NewMoviesPage opens the page at state. A zero state means the defaults.
func NewMoviesPage(movies MovieCatalog, shared Shared, state catalog.QueryState) (*MoviesPage, error) {
	if movies == nil {
		return nil, errors.Join(ErrMissingDependency, errors.New("movie catalog"))
	}
	b, err := newBase(shared)
	if err != nil {
		return nil, err
	}
	if state == (catalog.QueryState{}) {
		state = catalog.DefaultQueryState()
	}
	return &MoviesPage{base: b, movies: movies, state: state}, nil
}

// Load fetches the genres, the user's favorite ids and the current page in
// parallel. A genre failure only leaves the genre list empty.
func (p *MoviesPage) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var genres []catalog.Genre
	var page catalog.Page
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		loaded, err := p.movies.MovieGenres(groupCtx)
		if err != nil {
			p.logger.Warn("movie genres unavailable", zap.Error(err))
			return nil
		}
		genres = loaded
		return nil
	})
	group.Go(func() error {
		p.SyncFavorites(groupCtx)
		return nil
	})
	group.Go(func() error {
		loaded, err := p.movies.Movies(groupCtx, catalog.PlanMovieQuery(p.state))
		if err != nil {
			return err
		}
		page = loaded
		return nil
	})
	if err := group.Wait(); err != nil {
		return p.fail(ctx, notify.MessageLoadFailed, err)
	}
	p.genres = genres
	p.current = page
	return nil
}

// Search runs a new search from the first page. Filters stay as they are
// but a non-empty term takes precedence over them.
func (p *MoviesPage) Search(ctx context.Context, term string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.state
	next.SearchTerm = term
	return p.fetch(ctx, next.Searched(), notify.MessageSearchFailed)
}

// Filter applies discover filters from the first page.
func (p *MoviesPage) Filter(ctx context.Context, state catalog.QueryState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	state.SearchTerm = p.state.SearchTerm
	if state.Limit <= 0 {
		state.Limit = p.state.Limit
	}
	return p.fetch(ctx, state.Searched(), notify.MessageFilterFailed)
}

// NextPage advances one page unless the last page is shown.
func (p *MoviesPage) NextPage(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current.TotalPages > 0 && p.state.Page() >= p.current.TotalPages {
		return ErrNoNextPage
	}
	return p.fetch(ctx, p.state.Next(), notify.MessagePageFailed)
}

// PrevPage moves back one page. On the first page it does nothing.
func (p *MoviesPage) PrevPage(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Page() <= 1 {
		return nil
	}
	return p.fetch(ctx, p.state.Prev(), notify.MessagePageFailed)
}

// ClearFilters drops the search term and every filter and reloads.
func (p *MoviesPage) ClearFilters(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetch(ctx, p.state.Cleared(), notify.MessageLoadFailed)
}

// ToggleFavorite adds or removes item for the signed-in user.
func (p *MoviesPage) ToggleFavorite(ctx context.Context, item catalog.Item) (favorites.ToggleResult, error) {
	return p.toggle(ctx, item)
}

// State returns the current query.
func (p *MoviesPage) State() catalog.QueryState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Snapshot renders the page and hands over the pending notification.
func (p *MoviesPage) Snapshot() MoviesSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	page := p.state.Page()
	return MoviesSnapshot{
		Listing: Listing{
			Results:      p.render(p.current.Items, posterImage(p.movies.PosterURL)),
			Page:         page,
			TotalPages:   p.current.TotalPages,
			TotalResults: p.current.TotalResults,
			HasPrev:      page > 1,
			HasNext:      page < p.current.TotalPages,
			Notification: p.takeNotification(),
		},
		Query:  p.state,
		Genres: append([]catalog.Genre(nil), p.genres...),
	}
}

// fetch loads state and commits it only on success.
func (p *MoviesPage) fetch(ctx context.Context, state catalog.QueryState, failure string) error {
	page, err := p.movies.Movies(ctx, catalog.PlanMovieQuery(state))
	if err != nil {
		return p.fail(ctx, failure, err)
	}
	p.state = state
	p.current = page
	return nil
}
