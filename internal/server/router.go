package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/marquee/internal/auth"
	"github.com/MarcoPoloResearchLab/marquee/internal/favorites"
	"github.com/MarcoPoloResearchLab/marquee/internal/notify"
	"github.com/MarcoPoloResearchLab/marquee/internal/views"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerRequestID          = "X-Request-ID"
	requestIDContextKey      = "marquee_request_id"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingIdentityResolver = errors.New("identity resolver dependency required")
	errMissingFavorites        = errors.New("favorites dependency required")
	errMissingMovieCatalog     = errors.New("movie catalog dependency required")
	errMissingShowCatalog      = errors.New("show catalog dependency required")
)

// SessionValidator validates the session carried by a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// IdentityResolver maps session claims to the canonical user id.
type IdentityResolver interface {
	ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (string, error)
}

// Dependencies wires the HTTP surface. Characters may be nil when the
// character API is not configured; the character routes then answer 503.
type Dependencies struct {
	Sessions      SessionValidator
	Identities    IdentityResolver
	Favorites     views.Favorites
	Trackers      *favorites.TrackerRegistry
	Notifications *notify.Center
	Realtime      *notify.Dispatcher
	Movies        views.MovieCatalog
	Shows         views.ShowCatalog
	Characters    views.CharacterCatalog

	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Identities == nil {
		return nil, errMissingIdentityResolver
	}
	if deps.Favorites == nil {
		return nil, errMissingFavorites
	}
	if deps.Movies == nil {
		return nil, errMissingMovieCatalog
	}
	if deps.Shows == nil {
		return nil, errMissingShowCatalog
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	trackers := deps.Trackers
	if trackers == nil {
		trackers = favorites.NewTrackerRegistry(favorites.TrackerRegistryConfig{})
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = notify.NewDispatcher()
	}
	notifications := deps.Notifications
	if notifications == nil {
		notifications = notify.NewCenter(notify.CenterConfig{Dispatcher: realtime})
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	handler := &httpHandler{
		sessions:          deps.Sessions,
		identities:        deps.Identities,
		favorites:         deps.Favorites,
		trackers:          trackers,
		notifications:     notifications,
		realtime:          realtime,
		movies:            deps.Movies,
		shows:             deps.Shows,
		characters:        deps.Characters,
		heartbeatInterval: heartbeat,
		logger:            logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.Use(handler.resolveSession)

	router.GET("/healthz", handler.handleHealth)

	api := router.Group("/api")
	api.GET("/movies", handler.handleMovies)
	api.GET("/movies/genres", handler.handleMovieGenres)
	api.GET("/movies/:id", handler.handleDetail(catalogMovie))
	api.GET("/shows", handler.handleShows)
	api.GET("/shows/:id", handler.handleDetail(catalogShow))
	api.GET("/characters", handler.handleCharacters)
	api.GET("/characters/:id", handler.handleDetail(catalogCharacter))
	api.POST("/favorites/toggle", handler.handleToggleFavorite)

	protected := api.Group("/")
	protected.Use(handler.requireSession)
	protected.GET("/favorites", handler.handleFavorites)
	protected.GET("/favorites/ids", handler.handleFavoriteIDs)
	protected.DELETE("/favorites/:id", handler.handleRemoveFavorite)
	protected.GET("/notifications/current", handler.handleCurrentNotification)
	protected.DELETE("/notifications/current", handler.handleDismissNotification)
	protected.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	sessions          SessionValidator
	identities        IdentityResolver
	favorites         views.Favorites
	trackers          *favorites.TrackerRegistry
	notifications     *notify.Center
	realtime          *notify.Dispatcher
	movies            views.MovieCatalog
	shows             views.ShowCatalog
	characters        views.CharacterCatalog
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// shared returns the page collaborators for the caller. Signed-in users
// share one toggle tracker across requests.
func (h *httpHandler) shared(ctx context.Context) views.Shared {
	shared := views.Shared{
		Favorites: h.favorites,
		Notifier:  h.notifications,
		Logger:    h.logger,
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		shared.Tracker = h.trackers.For(userID)
	}
	return shared
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(headerRequestID, requestID)
		c.Next()
	}
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", headerRequestID},
		ExposeHeaders:    []string{headerRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		// Echo the caller's origin; a literal "*" is rejected by browsers on credentialed requests.
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}
