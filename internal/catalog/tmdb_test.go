package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timeoutForTests = 2 * time.Second
	tickForTests    = 10 * time.Millisecond
)

type recordedRequest struct {
	Path  string
	Query url.Values
}

type fakeUpstream struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  http.HandlerFunc
}

func newFakeUpstream(t *testing.T, handler http.HandlerFunc) (*fakeUpstream, *httptest.Server) {
	t.Helper()
	fake := &fakeUpstream{handler: handler}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		fake.requests = append(fake.requests, recordedRequest{Path: r.URL.Path, Query: r.URL.Query()})
		fake.mu.Unlock()
		fake.handler(w, r)
	}))
	t.Cleanup(server.Close)
	return fake, server
}

func (f *fakeUpstream) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestTMDBClient(t *testing.T, baseURL string) *TMDBClient {
	t.Helper()
	client, err := NewTMDBClient(TMDBConfig{APIKey: "test-key", BaseURL: baseURL, BreakerFailures: 2})
	require.NoError(t, err)
	return client
}

func TestNewTMDBClientRequiresKey(t *testing.T) {
	_, err := NewTMDBClient(TMDBConfig{APIKey: "  "})
	require.ErrorIs(t, err, ErrMissingCredentials)
}

func TestTMDBMoviesRoutesPlansToEndpoints(t *testing.T) {
	fake, server := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"page":1,"total_pages":3,"total_results":41,"results":[{"id":603,"title":"The Matrix","release_date":"1999-03-30","vote_average":8.2}]}`)
	})
	client := newTestTMDBClient(t, server.URL)
	ctx := context.Background()

	page, err := client.Movies(ctx, PlanMovieQuery(DefaultQueryState()))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, MediaTypeMovie, page.Items[0].MediaType())
	assert.Equal(t, 3, page.TotalPages)

	_, err = client.Movies(ctx, PlanMovieQuery(QueryState{SearchTerm: "matrix"}))
	require.NoError(t, err)

	_, err = client.Movies(ctx, PlanMovieQuery(QueryState{PopularOnly: true, GenreID: 28}))
	require.NoError(t, err)

	requests := fake.recorded()
	require.Len(t, requests, 3)

	assert.Equal(t, "/movie/popular", requests[0].Path)
	assert.Equal(t, "1", requests[0].Query.Get("page"))
	assert.Equal(t, "test-key", requests[0].Query.Get("api_key"))
	assert.Equal(t, DefaultTMDBLanguage, requests[0].Query.Get("language"))

	assert.Equal(t, "/search/movie", requests[1].Path)
	assert.Equal(t, "matrix", requests[1].Query.Get("query"))

	assert.Equal(t, "/discover/movie", requests[2].Path)
	assert.Equal(t, "100", requests[2].Query.Get("vote_count.gte"))
	assert.Equal(t, "28", requests[2].Query.Get("with_genres"))
	assert.False(t, requests[2].Query.Has("primary_release_year"))
}

func TestTMDBShowsSearchAndDetail(t *testing.T) {
	fake, server := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tv/1396":
			writeJSON(w, http.StatusOK, `{"id":1396,"name":"Breaking Bad","first_air_date":"2008-01-20","vote_average":8.9}`)
		case "/tv/404":
			writeJSON(w, http.StatusNotFound, `{"status_message":"not found"}`)
		default:
			writeJSON(w, http.StatusOK, `{"page":2,"total_pages":2,"total_results":21,"results":[{"id":2316,"name":"The Office","first_air_date":"2005-03-24"}]}`)
		}
	})
	client := newTestTMDBClient(t, server.URL)
	ctx := context.Background()

	page, err := client.Shows(ctx, PlanShowQuery("office", 2))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, MediaTypeShow, page.Items[0].MediaType())
	assert.Equal(t, "The Office", page.Items[0].Title())

	show, err := client.Show(ctx, 1396)
	require.NoError(t, err)
	assert.Equal(t, "Breaking Bad", show.Title())

	_, err = client.Show(ctx, 404)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = client.Show(ctx, 0)
	require.ErrorIs(t, err, ErrInvalidItemID)

	requests := fake.recorded()
	require.Len(t, requests, 3)
	assert.Equal(t, "/search/tv", requests[0].Path)
	assert.Equal(t, "2", requests[0].Query.Get("page"))
}

func TestTMDBMovieGenresSharesInFlightRequests(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	_, server := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		writeJSON(w, http.StatusOK, `{"genres":[{"id":28,"name":"Action"},{"id":35,"name":"Comedy"}]}`)
	})
	client := newTestTMDBClient(t, server.URL)

	const callers = 4
	var wait sync.WaitGroup
	results := make([][]Genre, callers)
	errs := make([]error, callers)
	for index := 0; index < callers; index++ {
		wait.Add(1)
		go func(index int) {
			defer wait.Done()
			results[index], errs[index] = client.MovieGenres(context.Background())
		}(index)
	}
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, timeoutForTests, tickForTests)
	close(release)
	wait.Wait()

	for index := 0; index < callers; index++ {
		require.NoError(t, errs[index])
		require.Len(t, results[index], 2)
	}
	assert.LessOrEqual(t, calls.Load(), int32(callers))
}

func TestTMDBMovieGenresSurvivesCancelledLeader(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	served := make(chan bool, 1)
	_, server := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		served <- r.Context().Err() == nil
		writeJSON(w, http.StatusOK, `{"genres":[{"id":28,"name":"Action"}]}`)
	})
	client := newTestTMDBClient(t, server.URL)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		_, err := client.MovieGenres(leaderCtx)
		leaderDone <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, timeoutForTests, tickForTests)

	type outcome struct {
		genres []Genre
		err    error
	}
	followerDone := make(chan outcome, 1)
	go func() {
		genres, err := client.MovieGenres(context.Background())
		followerDone <- outcome{genres: genres, err: err}
	}()

	cancel()
	require.ErrorIs(t, <-leaderDone, context.Canceled)

	close(release)
	require.True(t, <-served, "shared request must outlive the caller that started it")
	follower := <-followerDone
	require.NoError(t, follower.err)
	assert.Len(t, follower.genres, 1)
}

func TestTMDBCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	fake, server := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"status_message":"boom"}`)
	})
	client := newTestTMDBClient(t, server.URL)
	ctx := context.Background()

	for attempt := 0; attempt < 2; attempt++ {
		_, err := client.PopularMovies(ctx, 1)
		require.ErrorIs(t, err, ErrUpstream)
	}
	_, err := client.PopularMovies(ctx, 1)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Len(t, fake.recorded(), 2)
}

func TestTMDBPosterURL(t *testing.T) {
	client := newTestTMDBClient(t, "http://unused")
	poster := "/abc.jpg"
	blank := " "
	assert.Equal(t, DefaultTMDBImageBaseURL+"/abc.jpg", client.PosterURL(&poster))
	assert.Equal(t, PlaceholderPoster, client.PosterURL(&blank))
	assert.Equal(t, PlaceholderPoster, client.PosterURL(nil))
}
