package views

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MarcoPoloResearchLab/marquee/internal/auth"
	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"github.com/MarcoPoloResearchLab/marquee/internal/favorites"
	"github.com/MarcoPoloResearchLab/marquee/internal/notify"
	"go.uber.org/zap"
)

// Catalogs bundles every content source a detail page may read from.
type Catalogs struct {
	Movies     MovieCatalog
	Shows      ShowCatalog
	Characters CharacterCatalog
}

type DetailSnapshot struct {
	Item         *ItemView            `json:"item,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

// DetailPage shows one movie, series or character.
type DetailPage struct {
	*base
	catalogs Catalogs

	mu   sync.Mutex
	item catalog.Item
}

func NewDetailPage(catalogs Catalogs, shared Shared) (*DetailPage, error) {
	b, err := newBase(shared)
	if err != nil {
		return nil, err
	}
	return &DetailPage{base: b, catalogs: catalogs}, nil
}

// Load fetches the item and its favorite state.
func (p *DetailPage) Load(ctx context.Context, mediaType catalog.MediaType, itemID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, err := p.fetch(ctx, mediaType, itemID)
	if err != nil {
		return p.fail(ctx, notify.MessageLoadFailed, err)
	}
	p.item = item

	if _, ok := auth.UserIDFromContext(ctx); !ok {
		return nil
	}
	found, err := p.favorites.IsFavorite(ctx, itemID)
	if err != nil {
		p.logger.Warn("favorite state unavailable", zap.Int64("item_id", itemID), zap.Error(err))
		return nil
	}
	p.tracker.Apply(favorites.Change{ItemID: itemID, MediaType: mediaType, Present: found})
	return nil
}

func (p *DetailPage) fetch(ctx context.Context, mediaType catalog.MediaType, itemID int64) (catalog.Item, error) {
	switch mediaType {
	case catalog.MediaTypeMovie:
		if p.catalogs.Movies != nil {
			return p.catalogs.Movies.Movie(ctx, itemID)
		}
	case catalog.MediaTypeShow:
		if p.catalogs.Shows != nil {
			return p.catalogs.Shows.Show(ctx, itemID)
		}
	case catalog.MediaTypeCharacter:
		if p.catalogs.Characters != nil {
			return p.catalogs.Characters.Character(ctx, itemID)
		}
	default:
		return catalog.Item{}, fmt.Errorf("%w: %q", catalog.ErrUnknownMediaType, mediaType)
	}
	return catalog.Item{}, errors.Join(ErrMissingDependency, fmt.Errorf("%s catalog", mediaType))
}

// ToggleFavorite toggles the loaded item.
func (p *DetailPage) ToggleFavorite(ctx context.Context) (favorites.ToggleResult, error) {
	p.mu.Lock()
	item := p.item
	p.mu.Unlock()
	if item.IsZero() {
		return favorites.ToggleResult{}, favorites.ErrInvalidItem
	}
	return p.toggle(ctx, item)
}

func (p *DetailPage) Snapshot() DetailSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := DetailSnapshot{Notification: p.takeNotification()}
	if p.item.IsZero() {
		return snapshot
	}
	var posterURL func(*string) string
	if p.catalogs.Movies != nil {
		posterURL = p.catalogs.Movies.PosterURL
	} else if p.catalogs.Shows != nil {
		posterURL = p.catalogs.Shows.PosterURL
	}
	views := p.render([]catalog.Item{p.item}, mixedImage(posterURL))
	snapshot.Item = &views[0]
	return snapshot
}
