package views

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/marquee/internal/auth"
	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"github.com/MarcoPoloResearchLab/marquee/internal/favorites"
	"github.com/MarcoPoloResearchLab/marquee/internal/notify"
	"go.uber.org/zap"
)

var (
	// ErrNoNextPage indicates the last page is already shown.
	ErrNoNextPage = errors.New("views: no next page")
	// ErrMissingDependency indicates a page was built without a required collaborator.
	ErrMissingDependency = errors.New("views: missing dependency")
)

// MovieCatalog is the movie side of the content API.
type MovieCatalog interface {
	Movies(ctx context.Context, plan catalog.QueryPlan) (catalog.Page, error)
	MovieGenres(ctx context.Context) ([]catalog.Genre, error)
	Movie(ctx context.Context, id int64) (catalog.Item, error)
	PosterURL(posterPath *string) string
}

// ShowCatalog is the tv side of the content API.
type ShowCatalog interface {
	Shows(ctx context.Context, plan catalog.QueryPlan) (catalog.Page, error)
	Show(ctx context.Context, id int64) (catalog.Item, error)
	PosterURL(posterPath *string) string
}

// CharacterCatalog is the character API.
type CharacterCatalog interface {
	Characters(ctx context.Context, plan catalog.CharacterPlan) (catalog.Page, error)
	Character(ctx context.Context, id int64) (catalog.Item, error)
}

// Favorites is the favorites adapter the pages use.
type Favorites interface {
	ListIDs(ctx context.Context) (favorites.IDSet, error)
	ListItems(ctx context.Context) ([]catalog.Item, error)
	IsFavorite(ctx context.Context, itemID int64) (bool, error)
	RemoveTracked(ctx context.Context, tracker *favorites.Tracker, itemID int64) error
	Toggle(ctx context.Context, tracker *favorites.Tracker, item catalog.Item) (favorites.ToggleResult, error)
}

// Notifier shows transient notifications.
type Notifier interface {
	Info(userID, text string) notify.Notification
	Error(userID, text string) notify.Notification
}

// ItemView is one rendered result with its favorite state.
type ItemView struct {
	Item     catalog.Item `json:"item"`
	ImageURL string       `json:"image_url"`
	Favorite bool         `json:"favorite"`
	Pending  bool         `json:"pending"`
}

// Shared collaborators of every page.
type Shared struct {
	Favorites Favorites
	// Tracker guards toggles. Pages share the signed-in user's tracker; a nil
	// tracker gives the page a private one.
	Tracker  *favorites.Tracker
	Notifier Notifier
	Logger   *zap.Logger
}

type base struct {
	favorites Favorites
	tracker   *favorites.Tracker
	notifier  Notifier
	logger    *zap.Logger

	noteMu       sync.Mutex
	notification *notify.Notification
}

func newBase(shared Shared) (*base, error) {
	if shared.Favorites == nil {
		return nil, errors.Join(ErrMissingDependency, errors.New("favorites"))
	}
	tracker := shared.Tracker
	if tracker == nil {
		tracker = favorites.NewTracker()
	}
	logger := shared.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := shared.Notifier
	if notifier == nil {
		notifier = notify.NewCenter(notify.CenterConfig{})
	}
	return &base{
		favorites: shared.Favorites,
		tracker:   tracker,
		notifier:  notifier,
		logger:    logger,
	}, nil
}

// SyncFavorites refreshes the tracker from the store. Anonymous users have no
// favorites; read failures leave the tracker as it was.
func (b *base) SyncFavorites(ctx context.Context) {
	if _, ok := auth.UserIDFromContext(ctx); !ok {
		return
	}
	ids, err := b.favorites.ListIDs(ctx)
	if err != nil {
		b.logger.Warn("favorite ids unavailable",
			zap.String("code", favorites.ErrorCode(err)),
			zap.Error(err))
		return
	}
	b.tracker.Sync(ids)
}

func (b *base) fail(ctx context.Context, message string, err error) error {
	userID, _ := auth.UserIDFromContext(ctx)
	notification := b.notifier.Error(userID, message)
	b.setNotification(notification)
	b.logger.Warn("page operation failed",
		zap.String("notification", message),
		zap.Error(err))
	return err
}

func (b *base) inform(ctx context.Context, message string) {
	userID, _ := auth.UserIDFromContext(ctx)
	notification := b.notifier.Info(userID, message)
	b.setNotification(notification)
}

func (b *base) setNotification(notification notify.Notification) {
	b.noteMu.Lock()
	defer b.noteMu.Unlock()
	b.notification = &notification
}

// toggle runs one guarded toggle and reports the outcome as a notification.
func (b *base) toggle(ctx context.Context, item catalog.Item) (favorites.ToggleResult, error) {
	result, err := b.favorites.Toggle(ctx, b.tracker, item)
	switch {
	case err == nil && result.Added:
		b.inform(ctx, notify.MessageAdded)
	case err == nil:
		b.inform(ctx, notify.MessageRemoved)
	case errors.Is(err, favorites.ErrUnauthenticated):
		return result, b.fail(ctx, notify.MessageSignedOut, err)
	case errors.Is(err, favorites.ErrTogglePending):
		return result, b.fail(ctx, notify.MessageTogglePending, err)
	default:
		return result, b.fail(ctx, notify.MessageToggleFailed, err)
	}
	return result, nil
}

func (b *base) render(items []catalog.Item, imageURL func(catalog.Item) string) []ItemView {
	favoriteIDs := b.tracker.IDs()
	pendingIDs := b.tracker.PendingIDs()
	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, ItemView{
			Item:     item,
			ImageURL: imageURL(item),
			Favorite: favoriteIDs.Has(item.ID()),
			Pending:  pendingIDs.Has(item.ID()),
		})
	}
	return views
}

func (b *base) takeNotification() *notify.Notification {
	b.noteMu.Lock()
	defer b.noteMu.Unlock()
	notification := b.notification
	b.notification = nil
	return notification
}

// posterImage resolves TMDB artwork for movies and shows.
func posterImage(posterURL func(*string) string) func(catalog.Item) string {
	return func(item catalog.Item) string {
		if movie, ok := item.Movie(); ok {
			return posterURL(movie.PosterPath)
		}
		if show, ok := item.Show(); ok {
			return posterURL(show.PosterPath)
		}
		return characterImage(item)
	}
}

func characterImage(item catalog.Item) string {
	character, ok := item.Character()
	if !ok {
		return catalog.PlaceholderPoster
	}
	if url := strings.TrimSpace(character.Thumbnail.URL()); url != "" {
		return url
	}
	return catalog.PlaceholderPoster
}

// mixedImage renders favorites of every media type.
func mixedImage(posterURL func(*string) string) func(catalog.Item) string {
	if posterURL == nil {
		posterURL = func(path *string) string {
			if path == nil || strings.TrimSpace(*path) == "" {
				return catalog.PlaceholderPoster
			}
			return catalog.DefaultTMDBImageBaseURL + *path
		}
	}
	return posterImage(posterURL)
}
