package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/marquee/internal/auth"
	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"github.com/MarcoPoloResearchLab/marquee/internal/favorites"
	"github.com/MarcoPoloResearchLab/marquee/internal/notify"
	"github.com/MarcoPoloResearchLab/marquee/internal/views"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	catalogMovie     = catalog.MediaTypeMovie
	catalogShow      = catalog.MediaTypeShow
	catalogCharacter = catalog.MediaTypeCharacter
)

type errorResponse struct {
	Error        string               `json:"error"`
	Code         string               `json:"code,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

// listingPage is the navigation every listing page supports.
type listingPage interface {
	Load(ctx context.Context) error
	SyncFavorites(ctx context.Context)
	Search(ctx context.Context, term string) error
	NextPage(ctx context.Context) error
	PrevPage(ctx context.Context) error
	ClearFilters(ctx context.Context) error
}

// navigate runs nav against an already loaded or synced page. filter is nil
// for pages without filters.
func navigate(ctx context.Context, page listingPage, nav navigation, term string, filter func(context.Context) error) error {
	switch nav {
	case navLoad:
		return nil
	case navSearch:
		return page.Search(ctx, term)
	case navFilter:
		if filter == nil {
			return errUnknownNav
		}
		return filter(ctx)
	case navNext:
		return page.NextPage(ctx)
	case navPrev:
		return page.PrevPage(ctx)
	case navClear:
		return page.ClearFilters(ctx)
	default:
		return errUnknownNav
	}
}

// openCatalogPage rebuilds the page from the state in the query string and
// applies nav to it. Paging loads the current page first so the first and
// last page checks see real totals; a refused prev leaves that page shown.
// Other navigation replaces the results outright, so only the favorite ids
// are refreshed.
func openCatalogPage(ctx context.Context, page listingPage, nav navigation, term string, filter func(context.Context) error) error {
	switch nav {
	case navLoad:
		return page.Load(ctx)
	case navNext, navPrev:
		if err := page.Load(ctx); err != nil {
			return err
		}
		return navigate(ctx, page, nav, term, filter)
	}
	page.SyncFavorites(ctx)
	return navigate(ctx, page, nav, term, filter)
}

func (h *httpHandler) handleMovies(c *gin.Context) {
	ctx := c.Request.Context()
	nav, err := parseNavigation(c.Query("nav"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	state, err := movieStateFromQuery(c)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	page, err := views.NewMoviesPage(h.movies, h.shared(ctx), state)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	filter := func(ctx context.Context) error { return page.Filter(ctx, state) }
	if err := openCatalogPage(ctx, page, nav, state.SearchTerm, filter); err != nil {
		h.respondError(c, err, page.Snapshot().Notification)
		return
	}
	c.JSON(http.StatusOK, page.Snapshot())
}

func (h *httpHandler) handleMovieGenres(c *gin.Context) {
	genres, err := h.movies.MovieGenres(c.Request.Context())
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"genres": genres})
}

func (h *httpHandler) handleShows(c *gin.Context) {
	ctx := c.Request.Context()
	nav, err := parseNavigation(c.Query("nav"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	query, err := showQueryFromQuery(c)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	page, err := views.NewShowsPage(h.shows, h.shared(ctx), query)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	if err := openCatalogPage(ctx, page, nav, query.SearchTerm, nil); err != nil {
		h.respondError(c, err, page.Snapshot().Notification)
		return
	}
	c.JSON(http.StatusOK, page.Snapshot())
}

func (h *httpHandler) handleCharacters(c *gin.Context) {
	ctx := c.Request.Context()
	if h.characters == nil {
		h.respondError(c, views.ErrMissingDependency, nil)
		return
	}
	nav, err := parseNavigation(c.Query("nav"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	query, err := characterQueryFromQuery(c)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	page, err := views.NewCharactersPage(h.characters, h.shared(ctx), query)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	filter := func(ctx context.Context) error { return page.Filter(ctx, query) }
	if err := openCatalogPage(ctx, page, nav, query.SearchTerm, filter); err != nil {
		h.respondError(c, err, page.Snapshot().Notification)
		return
	}
	c.JSON(http.StatusOK, page.Snapshot())
}

func (h *httpHandler) handleDetail(mediaType catalog.MediaType) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		itemID, err := itemIDParam(c)
		if err != nil {
			h.respondError(c, err, nil)
			return
		}
		page, err := views.NewDetailPage(h.catalogs(), h.shared(ctx))
		if err != nil {
			h.respondError(c, err, nil)
			return
		}
		if err := page.Load(ctx, mediaType, itemID); err != nil {
			h.respondError(c, err, page.Snapshot().Notification)
			return
		}
		c.JSON(http.StatusOK, page.Snapshot())
	}
}

func (h *httpHandler) catalogs() views.Catalogs {
	return views.Catalogs{Movies: h.movies, Shows: h.shows, Characters: h.characters}
}

type toggleRequestPayload struct {
	Item catalog.Item `json:"item"`
}

func (h *httpHandler) handleToggleFavorite(c *gin.Context) {
	ctx := c.Request.Context()
	var request toggleRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondError(c, errors.Join(favorites.ErrInvalidItem, err), nil)
		return
	}
	snapshot, err := views.ToggleFavorite(ctx, h.shared(ctx), h.movies.PosterURL, request.Item)
	if err != nil {
		h.respondError(c, err, snapshot.Notification)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *httpHandler) handleFavorites(c *gin.Context) {
	ctx := c.Request.Context()
	nav, err := parseNavigation(c.Query("nav"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	query, err := favoritesQueryFromQuery(c)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	page, err := views.NewFavoritesPage(h.shared(ctx), h.movies.PosterURL, query)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	if err := page.Load(ctx); err != nil {
		h.respondError(c, err, page.Snapshot().Notification)
		return
	}
	filter := func(ctx context.Context) error { return page.Filter(ctx, query.Filter) }
	if err := navigate(ctx, page, nav, query.Filter.SearchTerm, filter); err != nil {
		h.respondError(c, err, page.Snapshot().Notification)
		return
	}
	c.JSON(http.StatusOK, page.Snapshot())
}

func (h *httpHandler) handleFavoriteIDs(c *gin.Context) {
	ids, err := h.favorites.ListIDs(c.Request.Context())
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids.Sorted()})
}

func (h *httpHandler) handleRemoveFavorite(c *gin.Context) {
	ctx := c.Request.Context()
	itemID, err := itemIDParam(c)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	page, err := views.NewFavoritesPage(h.shared(ctx), h.movies.PosterURL, views.FavoritesQuery{})
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	if err := page.Remove(ctx, itemID); err != nil {
		h.respondError(c, err, page.Snapshot().Notification)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"removed":      itemID,
		"notification": page.Snapshot().Notification,
	})
}

func (h *httpHandler) handleCurrentNotification(c *gin.Context) {
	userID, _ := auth.UserIDFromContext(c.Request.Context())
	notification, ok := h.notifications.Current(userID)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, notification)
}

func (h *httpHandler) handleDismissNotification(c *gin.Context) {
	userID, _ := auth.UserIDFromContext(c.Request.Context())
	h.notifications.Dismiss(userID)
	c.Status(http.StatusNoContent)
}

// respondError maps err to a status and writes the JSON error body with the
// notification the page produced, if any.
func (h *httpHandler) respondError(c *gin.Context, err error, notification *notify.Notification) {
	status, key := classifyError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorResponse{
		Error:        key,
		Code:         favorites.ErrorCode(err),
		Notification: notification,
	})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, favorites.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, favorites.ErrTogglePending):
		return http.StatusConflict, "toggle_pending"
	case errors.Is(err, views.ErrNoNextPage):
		return http.StatusConflict, "no_next_page"
	case errors.Is(err, errInvalidParameter),
		errors.Is(err, errUnknownNav),
		errors.Is(err, favorites.ErrInvalidItem),
		errors.Is(err, catalog.ErrInvalidItemID),
		errors.Is(err, catalog.ErrUnknownMediaType):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, catalog.ErrUnavailable), errors.Is(err, views.ErrMissingDependency):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, catalog.ErrUpstream):
		return http.StatusBadGateway, "upstream_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
