package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTMDBBaseURL is the TMDB v3 API root.
	DefaultTMDBBaseURL = "https://api.themoviedb.org/3"
	// DefaultTMDBImageBaseURL serves w500 posters.
	DefaultTMDBImageBaseURL = "https://image.tmdb.org/t/p/w500"
	// DefaultTMDBLanguage is the response language requested from TMDB.
	DefaultTMDBLanguage = "en-US"
	// PlaceholderPoster is returned for items without artwork.
	PlaceholderPoster = "assets/placeholder-image.png"
)

// TMDBConfig configures the TMDB movie and tv client.
type TMDBConfig struct {
	APIKey          string
	BaseURL         string
	ImageBaseURL    string
	Language        string
	HTTPClient      *http.Client
	Timeout         time.Duration
	BreakerFailures uint32
	Logger          *zap.Logger
}

// TMDBClient reads movies, tv shows and genres from TMDB.
type TMDBClient struct {
	upstream     *upstreamClient
	apiKey       string
	language     string
	imageBaseURL string
	genres       singleflight.Group
}

// NewTMDBClient validates the configuration and constructs a client.
func NewTMDBClient(cfg TMDBConfig) (*TMDBClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: tmdb api key", ErrMissingCredentials)
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultTMDBBaseURL
	}
	imageBaseURL := strings.TrimRight(strings.TrimSpace(cfg.ImageBaseURL), "/")
	if imageBaseURL == "" {
		imageBaseURL = DefaultTMDBImageBaseURL
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = DefaultTMDBLanguage
	}
	return &TMDBClient{
		upstream: newUpstreamClient(upstreamConfig{
			Name:             "tmdb",
			BaseURL:          baseURL,
			HTTPClient:       cfg.HTTPClient,
			Timeout:          cfg.Timeout,
			FailureThreshold: cfg.BreakerFailures,
			Logger:           cfg.Logger,
		}),
		apiKey:       apiKey,
		language:     language,
		imageBaseURL: imageBaseURL,
	}, nil
}

// PosterURL builds the w500 poster URL, or the placeholder when the path is empty.
func (c *TMDBClient) PosterURL(posterPath *string) string {
	if posterPath == nil || strings.TrimSpace(*posterPath) == "" {
		return PlaceholderPoster
	}
	return c.imageBaseURL + *posterPath
}

type movieListResponse struct {
	Page         int     `json:"page"`
	Results      []Movie `json:"results"`
	TotalPages   int     `json:"total_pages"`
	TotalResults int     `json:"total_results"`
}

type showListResponse struct {
	Page         int    `json:"page"`
	Results      []Show `json:"results"`
	TotalPages   int    `json:"total_pages"`
	TotalResults int    `json:"total_results"`
}

type genreListResponse struct {
	Genres []Genre `json:"genres"`
}

func (c *TMDBClient) baseValues() url.Values {
	values := url.Values{}
	values.Set("api_key", c.apiKey)
	values.Set("language", c.language)
	return values
}

func withPage(values url.Values, page int) url.Values {
	if page <= 0 {
		page = 1
	}
	values.Set("page", strconv.Itoa(page))
	return values
}

// Movies executes a planned movie query.
func (c *TMDBClient) Movies(ctx context.Context, plan QueryPlan) (Page, error) {
	switch plan.Endpoint {
	case EndpointSearch:
		return c.SearchMovies(ctx, plan.SearchTerm, plan.Page)
	case EndpointDiscover:
		return c.DiscoverMovies(ctx, plan.Discover)
	default:
		return c.PopularMovies(ctx, plan.Page)
	}
}

// PopularMovies lists the popular movies page.
func (c *TMDBClient) PopularMovies(ctx context.Context, page int) (Page, error) {
	return c.fetchMovies(ctx, "/movie/popular", withPage(c.baseValues(), page))
}

// SearchMovies runs a free-text search. A blank term falls back to the popular listing.
func (c *TMDBClient) SearchMovies(ctx context.Context, term string, page int) (Page, error) {
	trimmed := strings.TrimSpace(term)
	if trimmed == "" {
		return c.PopularMovies(ctx, page)
	}
	values := withPage(c.baseValues(), page)
	values.Set("query", term)
	return c.fetchMovies(ctx, "/search/movie", values)
}

// DiscoverMovies runs a filtered listing with only the supplied parameters.
func (c *TMDBClient) DiscoverMovies(ctx context.Context, params DiscoverParams) (Page, error) {
	values := c.baseValues()
	for key, entries := range params.Values() {
		for _, entry := range entries {
			values.Add(key, entry)
		}
	}
	return c.fetchMovies(ctx, "/discover/movie", values)
}

// Movie fetches one movie by id.
func (c *TMDBClient) Movie(ctx context.Context, id int64) (Item, error) {
	if id <= 0 {
		return Item{}, fmt.Errorf("%w: %d", ErrInvalidItemID, id)
	}
	var movie Movie
	if err := c.upstream.getJSON(ctx, "/movie/"+strconv.FormatInt(id, 10), c.baseValues(), &movie); err != nil {
		return Item{}, err
	}
	return MovieItem(movie), nil
}

// MovieGenres lists the movie genres. Concurrent callers share one request,
// which keeps running when the caller that started it goes away.
func (c *TMDBClient) MovieGenres(ctx context.Context) ([]Genre, error) {
	flight := c.genres.DoChan("movie", func() (interface{}, error) {
		var response genreListResponse
		if err := c.upstream.getJSON(context.WithoutCancel(ctx), "/genre/movie/list", c.baseValues(), &response); err != nil {
			return nil, err
		}
		return response.Genres, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-flight:
		if result.Err != nil {
			return nil, result.Err
		}
		genres, _ := result.Val.([]Genre)
		return append([]Genre(nil), genres...), nil
	}
}

// Shows executes a planned tv query.
func (c *TMDBClient) Shows(ctx context.Context, plan QueryPlan) (Page, error) {
	if plan.Endpoint == EndpointSearch {
		return c.SearchShows(ctx, plan.SearchTerm, plan.Page)
	}
	return c.PopularShows(ctx, plan.Page)
}

// PopularShows lists the popular tv page.
func (c *TMDBClient) PopularShows(ctx context.Context, page int) (Page, error) {
	return c.fetchShows(ctx, "/tv/popular", withPage(c.baseValues(), page))
}

// SearchShows runs a free-text tv search. A blank term falls back to the popular listing.
func (c *TMDBClient) SearchShows(ctx context.Context, term string, page int) (Page, error) {
	trimmed := strings.TrimSpace(term)
	if trimmed == "" {
		return c.PopularShows(ctx, page)
	}
	values := withPage(c.baseValues(), page)
	values.Set("query", term)
	return c.fetchShows(ctx, "/search/tv", values)
}

// Show fetches one tv show by id.
func (c *TMDBClient) Show(ctx context.Context, id int64) (Item, error) {
	if id <= 0 {
		return Item{}, fmt.Errorf("%w: %d", ErrInvalidItemID, id)
	}
	var show Show
	if err := c.upstream.getJSON(ctx, "/tv/"+strconv.FormatInt(id, 10), c.baseValues(), &show); err != nil {
		return Item{}, err
	}
	return ShowItem(show), nil
}

func (c *TMDBClient) fetchMovies(ctx context.Context, path string, values url.Values) (Page, error) {
	var response movieListResponse
	if err := c.upstream.getJSON(ctx, path, values, &response); err != nil {
		return Page{}, err
	}
	items := make([]Item, 0, len(response.Results))
	for _, movie := range response.Results {
		items = append(items, MovieItem(movie))
	}
	return Page{
		Items:        items,
		Page:         response.Page,
		TotalPages:   response.TotalPages,
		TotalResults: response.TotalResults,
	}, nil
}

func (c *TMDBClient) fetchShows(ctx context.Context, path string, values url.Values) (Page, error) {
	var response showListResponse
	if err := c.upstream.getJSON(ctx, path, values, &response); err != nil {
		return Page{}, err
	}
	items := make([]Item, 0, len(response.Results))
	for _, show := range response.Results {
		items = append(items, ShowItem(show))
	}
	return Page{
		Items:        items,
		Page:         response.Page,
		TotalPages:   response.TotalPages,
		TotalResults: response.TotalResults,
	}, nil
}
