package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/marquee/internal/auth"
	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"github.com/MarcoPoloResearchLab/marquee/internal/favorites"
	"github.com/MarcoPoloResearchLab/marquee/internal/notify"
	"github.com/MarcoPoloResearchLab/marquee/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSigningSecret = "server-test-secret"

var databaseSequence atomic.Int64

type stubCatalog struct {
	movies     catalog.Page
	shows      catalog.Page
	characters catalog.Page
	items      map[int64]catalog.Item
	moviePlans []catalog.QueryPlan
}

func (s *stubCatalog) Movies(_ context.Context, plan catalog.QueryPlan) (catalog.Page, error) {
	s.moviePlans = append(s.moviePlans, plan)
	return s.movies, nil
}

func (s *stubCatalog) MovieGenres(context.Context) ([]catalog.Genre, error) {
	return []catalog.Genre{{ID: 28, Name: "Action"}}, nil
}

func (s *stubCatalog) Movie(_ context.Context, id int64) (catalog.Item, error) {
	item, ok := s.items[id]
	if !ok {
		return catalog.Item{}, catalog.ErrNotFound
	}
	return item, nil
}

func (s *stubCatalog) Shows(context.Context, catalog.QueryPlan) (catalog.Page, error) {
	return s.shows, nil
}

func (s *stubCatalog) Show(_ context.Context, id int64) (catalog.Item, error) {
	return s.Movie(context.Background(), id)
}

func (s *stubCatalog) Characters(context.Context, catalog.CharacterPlan) (catalog.Page, error) {
	return s.characters, nil
}

func (s *stubCatalog) Character(_ context.Context, id int64) (catalog.Item, error) {
	return s.Movie(context.Background(), id)
}

func (s *stubCatalog) PosterURL(path *string) string {
	if path == nil {
		return catalog.PlaceholderPoster
	}
	return "https://img.test" + *path
}

func testMovie(id int64, title string) catalog.Item {
	poster := fmt.Sprintf("/%d.jpg", id)
	return catalog.MovieItem(catalog.Movie{
		ID:          id,
		Title:       title,
		PosterPath:  &poster,
		ReleaseDate: "1999-03-31",
		Overview:    title + " overview",
		VoteAverage: 8,
	})
}

type testServer struct {
	handler    http.Handler
	catalog    *stubCatalog
	issuer     *auth.TokenIssuer
	dispatcher *notify.Dispatcher
	favorites  *favorites.Service
	trackers   *favorites.TrackerRegistry
}

type testServerOptions struct {
	withoutCharacters bool
}

func newTestServer(t *testing.T, options testServerOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), databaseSequence.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&favorites.Document{}, &users.Identity{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	store, err := favorites.NewGormStore(db)
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	dispatcher := notify.NewDispatcher()
	service, err := favorites.NewService(favorites.ServiceConfig{
		Store: store,
		OnChange: func(userID string, change favorites.Change) {
			dispatcher.PublishFavoriteChange(userID, change.ItemID, change.Present)
		},
	})
	if err != nil {
		t.Fatalf("failed to build favorites service: %v", err)
	}
	identities, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build identity service: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{SigningSecret: []byte(testSigningSecret)})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret), TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}

	stub := &stubCatalog{
		movies: catalog.Page{
			Items:        []catalog.Item{testMovie(603, "The Matrix"), testMovie(550, "Fight Club")},
			Page:         1,
			TotalPages:   3,
			TotalResults: 60,
		},
		shows: catalog.Page{Page: 1, TotalPages: 1},
		items: map[int64]catalog.Item{603: testMovie(603, "The Matrix")},
	}
	trackers := favorites.NewTrackerRegistry(favorites.TrackerRegistryConfig{})
	deps := Dependencies{
		Sessions:          validator,
		Identities:        identities,
		Favorites:         service,
		Trackers:          trackers,
		Realtime:          dispatcher,
		Movies:            stub,
		Shows:             stub,
		Characters:        stub,
		HeartbeatInterval: time.Hour,
		Logger:            zap.NewNop(),
	}
	if options.withoutCharacters {
		deps.Characters = nil
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return &testServer{
		handler:    handler,
		catalog:    stub,
		issuer:     issuer,
		dispatcher: dispatcher,
		favorites:  service,
		trackers:   trackers,
	}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := s.issuer.IssueSessionToken(auth.SessionClaims{UserID: userID})
	if err != nil {
		t.Fatalf("failed to issue session token: %v", err)
	}
	return token
}
