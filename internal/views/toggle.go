package views

import (
	"context"

	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"github.com/MarcoPoloResearchLab/marquee/internal/favorites"
	"github.com/MarcoPoloResearchLab/marquee/internal/notify"
)

// ToggleSnapshot is the outcome of a toggle made from any listing.
type ToggleSnapshot struct {
	Added        bool                 `json:"added"`
	Item         ItemView             `json:"item"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

// ToggleFavorite toggles item outside of a loaded page, the way a listing
// card does. posterURL may be nil.
func ToggleFavorite(ctx context.Context, shared Shared, posterURL func(*string) string, item catalog.Item) (ToggleSnapshot, error) {
	b, err := newBase(shared)
	if err != nil {
		return ToggleSnapshot{}, err
	}
	var result favorites.ToggleResult
	if item.IsZero() || item.ID() <= 0 {
		err = b.fail(ctx, notify.MessageToggleFailed, favorites.ErrInvalidItem)
	} else {
		b.SyncFavorites(ctx)
		result, err = b.toggle(ctx, item)
	}
	snapshot := ToggleSnapshot{Added: result.Added, Notification: b.takeNotification()}
	if !item.IsZero() {
		snapshot.Item = b.render([]catalog.Item{item}, mixedImage(posterURL))[0]
	}
	return snapshot, err
}
