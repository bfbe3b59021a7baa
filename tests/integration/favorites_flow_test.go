package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/marquee/internal/auth"
	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"github.com/MarcoPoloResearchLab/marquee/internal/database"
	"github.com/MarcoPoloResearchLab/marquee/internal/favorites"
	"github.com/MarcoPoloResearchLab/marquee/internal/notify"
	"github.com/MarcoPoloResearchLab/marquee/internal/server"
	"github.com/MarcoPoloResearchLab/marquee/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionCookieName    = "app_session"
	sessionIssuer        = "tauth"
	sessionUserID        = "google:user-abc"
	canonicalUserID      = "user-abc"
	tmdbAPIKey           = "tmdb-key"
	jsonContentType      = "application/json"
)

const popularMoviesPayload = `{"page":1,"total_pages":2,"total_results":3,"results":[
{"id":603,"title":"The Matrix","poster_path":"/matrix.jpg","release_date":"1999-03-31","overview":"A hacker learns the truth.","vote_average":8.2},
{"id":550,"title":"Fight Club","poster_path":null,"release_date":"1999-10-15","overview":"","vote_average":8.4}]}`

const matrixPayload = `{"id":603,"title":"The Matrix","poster_path":"/matrix.jpg","release_date":"1999-03-31","overview":"A hacker learns the truth.","vote_average":8.2}`

func newFakeTMDB(testContext *testing.T, requests *atomic.Int64) *httptest.Server {
	testContext.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/movie/popular", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Query().Get("api_key") != tmdbAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", jsonContentType)
		_, _ = w.Write([]byte(popularMoviesPayload))
	})
	mux.HandleFunc("/movie/603", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", jsonContentType)
		_, _ = w.Write([]byte(matrixPayload))
	})
	mux.HandleFunc("/genre/movie/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", jsonContentType)
		_, _ = w.Write([]byte(`{"genres":[{"id":878,"name":"Science Fiction"}]}`))
	})
	upstream := httptest.NewServer(mux)
	testContext.Cleanup(upstream.Close)
	return upstream
}

func TestSessionFavoritesFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "marquee.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	store, err := favorites.NewGormStore(db)
	if err != nil {
		testContext.Fatalf("failed to build store: %v", err)
	}
	favoritesService, err := favorites.NewService(favorites.ServiceConfig{Store: store, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build favorites service: %v", err)
	}
	identities, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build identity service: %v", err)
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(sessionSigningSecret),
		CookieName:    sessionCookieName,
	})
	if err != nil {
		testContext.Fatalf("failed to construct session validator: %v", err)
	}

	var upstreamRequests atomic.Int64
	upstream := newFakeTMDB(testContext, &upstreamRequests)
	tmdb, err := catalog.NewTMDBClient(catalog.TMDBConfig{
		APIKey:       tmdbAPIKey,
		BaseURL:      upstream.URL,
		ImageBaseURL: "https://images.test/w500",
		Timeout:      5 * time.Second,
	})
	if err != nil {
		testContext.Fatalf("failed to build tmdb client: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:   sessionValidator,
		Identities: identities,
		Favorites:  favoritesService,
		Movies:     tmdb,
		Shows:      tmdb,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	sessionCookie := &http.Cookie{
		Name:  sessionCookieName,
		Value: mustMintSessionToken(testContext, sessionSigningSecret, sessionUserID, time.Now()),
	}
	send := func(method, path string, body []byte) *http.Response {
		testContext.Helper()
		request, _ := http.NewRequest(method, testServer.URL+path, bytes.NewReader(body))
		request.AddCookie(sessionCookie)
		if body != nil {
			request.Header.Set("Content-Type", jsonContentType)
		}
		response, err := http.DefaultClient.Do(request)
		if err != nil {
			testContext.Fatalf("%s %s failed: %v", method, path, err)
		}
		testContext.Cleanup(func() { _ = response.Body.Close() })
		return response
	}

	moviesResp := send(http.MethodGet, "/api/movies", nil)
	if moviesResp.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected movies status: %d", moviesResp.StatusCode)
	}
	var moviesPayload struct {
		Results []struct {
			Item     json.RawMessage `json:"item"`
			ImageURL string          `json:"image_url"`
			Favorite bool            `json:"favorite"`
		} `json:"results"`
		HasNext bool            `json:"has_next"`
		Genres  []catalog.Genre `json:"genres"`
	}
	if err := json.NewDecoder(moviesResp.Body).Decode(&moviesPayload); err != nil {
		testContext.Fatalf("failed to decode movies response: %v", err)
	}
	if len(moviesPayload.Results) != 2 || !moviesPayload.HasNext || len(moviesPayload.Genres) != 1 {
		testContext.Fatalf("unexpected movies payload: %+v", moviesPayload)
	}
	if moviesPayload.Results[0].ImageURL != "https://images.test/w500/matrix.jpg" {
		testContext.Fatalf("unexpected poster url %q", moviesPayload.Results[0].ImageURL)
	}
	if moviesPayload.Results[1].ImageURL != catalog.PlaceholderPoster {
		testContext.Fatalf("expected placeholder for missing poster, got %q", moviesPayload.Results[1].ImageURL)
	}

	toggleBody, _ := json.Marshal(map[string]json.RawMessage{"item": moviesPayload.Results[0].Item})
	toggleResp := send(http.MethodPost, "/api/favorites/toggle", toggleBody)
	if toggleResp.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected toggle status: %d", toggleResp.StatusCode)
	}
	var toggleResult struct {
		Added        bool                 `json:"added"`
		Notification *notify.Notification `json:"notification"`
	}
	if err := json.NewDecoder(toggleResp.Body).Decode(&toggleResult); err != nil {
		testContext.Fatalf("failed to decode toggle response: %v", err)
	}
	if !toggleResult.Added || toggleResult.Notification == nil || toggleResult.Notification.Text != notify.MessageAdded {
		testContext.Fatalf("unexpected toggle result: %+v", toggleResult)
	}

	var documents []favorites.Document
	if err := db.Where("user_id = ?", canonicalUserID).Find(&documents).Error; err != nil {
		testContext.Fatalf("failed to read documents: %v", err)
	}
	if len(documents) != 1 || documents[0].ItemID != 603 || documents[0].MediaType != string(catalog.MediaTypeMovie) {
		testContext.Fatalf("unexpected stored documents: %+v", documents)
	}

	detailResp := send(http.MethodGet, "/api/movies/603", nil)
	var detailPayload struct {
		Item struct {
			Favorite bool `json:"favorite"`
		} `json:"item"`
	}
	if err := json.NewDecoder(detailResp.Body).Decode(&detailPayload); err != nil {
		testContext.Fatalf("failed to decode detail response: %v", err)
	}
	if !detailPayload.Item.Favorite {
		testContext.Fatalf("expected detail to show the favorite")
	}

	favoritesResp := send(http.MethodGet, "/api/favorites", nil)
	var favoritesPayload struct {
		TotalResults int `json:"total_results"`
		Results      []struct {
			ImageURL string `json:"image_url"`
		} `json:"results"`
	}
	if err := json.NewDecoder(favoritesResp.Body).Decode(&favoritesPayload); err != nil {
		testContext.Fatalf("failed to decode favorites response: %v", err)
	}
	if favoritesPayload.TotalResults != 1 || favoritesPayload.Results[0].ImageURL != "https://images.test/w500/matrix.jpg" {
		testContext.Fatalf("unexpected favorites payload: %+v", favoritesPayload)
	}

	deleteResp := send(http.MethodDelete, "/api/favorites/603", nil)
	if deleteResp.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected delete status: %d", deleteResp.StatusCode)
	}
	idsResp := send(http.MethodGet, "/api/favorites/ids", nil)
	var idsPayload struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(idsResp.Body).Decode(&idsPayload); err != nil {
		testContext.Fatalf("failed to decode ids response: %v", err)
	}
	if len(idsPayload.IDs) != 0 {
		testContext.Fatalf("expected no favorites after delete, got %v", idsPayload.IDs)
	}
	if upstreamRequests.Load() < 2 {
		testContext.Fatalf("expected upstream to be queried, got %d requests", upstreamRequests.Load())
	}
}

func TestForeignSessionIsAnonymous(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "marquee.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	store, _ := favorites.NewGormStore(db)
	favoritesService, _ := favorites.NewService(favorites.ServiceConfig{Store: store})
	identities, _ := users.NewService(users.ServiceConfig{Database: db})
	sessionValidator, _ := auth.NewSessionValidator(auth.SessionValidatorConfig{SigningSecret: []byte(sessionSigningSecret)})
	var upstreamRequests atomic.Int64
	tmdb, _ := catalog.NewTMDBClient(catalog.TMDBConfig{APIKey: tmdbAPIKey, BaseURL: newFakeTMDB(testContext, &upstreamRequests).URL})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:   sessionValidator,
		Identities: identities,
		Favorites:  favoritesService,
		Movies:     tmdb,
		Shows:      tmdb,
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}
	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	request, _ := http.NewRequest(http.MethodGet, testServer.URL+"/api/favorites", http.NoBody)
	request.AddCookie(&http.Cookie{
		Name:  sessionCookieName,
		Value: mustMintSessionToken(testContext, "some-other-secret", sessionUserID, time.Now()),
	})
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("favorites request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusUnauthorized {
		testContext.Fatalf("expected foreign session to be rejected, got %d", response.StatusCode)
	}
}

func mustMintSessionToken(testContext *testing.T, signingSecret, userID string, now time.Time) string {
	testContext.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(signingSecret))
	if err != nil {
		testContext.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
