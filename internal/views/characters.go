package views

import (
	"context"
	"errors"
	"sync"

	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"github.com/MarcoPoloResearchLab/marquee/internal/favorites"
	"github.com/MarcoPoloResearchLab/marquee/internal/notify"
)

type CharactersSnapshot struct {
	Listing
	Query catalog.CharacterQuery `json:"query"`
}

// CharactersPage lists characters with the name, description and
// modified-since filters.
type CharactersPage struct {
	*base
	characters CharacterCatalog

	mu      sync.Mutex
	query   catalog.CharacterQuery
	current catalog.Page
}

func NewCharactersPage(characters CharacterCatalog, shared Shared, query catalog.CharacterQuery) (*CharactersPage, error) {
	if characters == nil {
		return nil, errors.Join(ErrMissingDependency, errors.New("character catalog"))
	}
	b, err := newBase(shared)
	if err != nil {
		return nil, err
	}
	if query == (catalog.CharacterQuery{}) {
		query = catalog.DefaultCharacterQuery()
	}
	return &CharactersPage{base: b, characters: characters, query: query}, nil
}

func (p *CharactersPage) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SyncFavorites(ctx)
	return p.fetch(ctx, p.query, notify.MessageLoadFailed)
}

func (p *CharactersPage) Search(ctx context.Context, term string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.query
	next.SearchTerm = term
	return p.fetch(ctx, next.Searched(), notify.MessageSearchFailed)
}

// Filter replaces the order, description and date filters, keeping the term.
func (p *CharactersPage) Filter(ctx context.Context, query catalog.CharacterQuery) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	query.SearchTerm = p.query.SearchTerm
	if query.Limit <= 0 {
		query.Limit = p.query.Limit
	}
	return p.fetch(ctx, query.Searched(), notify.MessageFilterFailed)
}

// NextPage advances one page through the same listing form the current
// page used, filtered or not.
func (p *CharactersPage) NextPage(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current.TotalPages > 0 && p.query.Page() >= p.current.TotalPages {
		return ErrNoNextPage
	}
	return p.fetch(ctx, p.query.Next(), notify.MessagePageFailed)
}

func (p *CharactersPage) PrevPage(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.query.Page() <= 1 {
		return nil
	}
	return p.fetch(ctx, p.query.Prev(), notify.MessagePageFailed)
}

func (p *CharactersPage) ClearFilters(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetch(ctx, p.query.Cleared(), notify.MessageLoadFailed)
}

func (p *CharactersPage) ToggleFavorite(ctx context.Context, item catalog.Item) (favorites.ToggleResult, error) {
	return p.toggle(ctx, item)
}

func (p *CharactersPage) Snapshot() CharactersSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	page := p.query.Page()
	return CharactersSnapshot{
		Listing: Listing{
			Results:      p.render(p.current.Items, characterImage),
			Page:         page,
			TotalPages:   p.current.TotalPages,
			TotalResults: p.current.TotalResults,
			HasPrev:      page > 1,
			HasNext:      page < p.current.TotalPages,
			Notification: p.takeNotification(),
		},
		Query: p.query,
	}
}

func (p *CharactersPage) fetch(ctx context.Context, query catalog.CharacterQuery, failure string) error {
	page, err := p.characters.Characters(ctx, catalog.PlanCharacterQuery(query))
	if err != nil {
		return p.fail(ctx, failure, err)
	}
	p.query = query
	p.current = page
	return nil
}
