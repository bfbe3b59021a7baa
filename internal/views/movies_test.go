package views

import (
	"context"
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"github.com/MarcoPoloResearchLab/marquee/internal/favorites"
	"github.com/MarcoPoloResearchLab/marquee/internal/notify"
)

func newMoviesFixture(t *testing.T) (*fakeMovieCatalog, *memoryStore, *favorites.Service) {
	t.Helper()
	movies := &fakeMovieCatalog{
		pages: map[int]catalog.Page{
			1: {Items: []catalog.Item{movieItem(3, "Alien", 8.5, "1979-05-25"), movieItem(4, "Aliens", 8.4, "1986-07-18")}, Page: 1, TotalPages: 2, TotalResults: 3},
			2: {Items: []catalog.Item{movieItem(5, "Alien 3", 6.4, "1992-05-22")}, Page: 2, TotalPages: 2, TotalResults: 3},
		},
		genres: []catalog.Genre{{ID: 878, Name: "Science Fiction"}},
	}
	store := newMemoryStore()
	return movies, store, newFavoritesService(store)
}

func TestMoviesPageLoadMarksFavoritesAndGenres(t *testing.T) {
	movies, _, service := newMoviesFixture(t)
	ctx := signedIn()
	if err := service.Add(ctx, movieItem(4, "Aliens", 8.4, "1986-07-18")); err != nil {
		t.Fatalf("seed favorite: %v", err)
	}

	page, err := NewMoviesPage(movies, Shared{Favorites: service}, catalog.QueryState{})
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	if err := page.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	snapshot := page.Snapshot()
	if len(snapshot.Genres) != 1 || snapshot.Genres[0].Name != "Science Fiction" {
		t.Fatalf("unexpected genres: %+v", snapshot.Genres)
	}
	if len(snapshot.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(snapshot.Results))
	}
	if snapshot.Results[0].Favorite || !snapshot.Results[1].Favorite {
		t.Fatalf("unexpected favorite flags: %+v", snapshot.Results)
	}
	if snapshot.Results[0].ImageURL != "https://img.test/Alien.jpg" {
		t.Fatalf("unexpected image url %q", snapshot.Results[0].ImageURL)
	}
	if !snapshot.HasNext || snapshot.HasPrev {
		t.Fatalf("unexpected pagination flags: next=%v prev=%v", snapshot.HasNext, snapshot.HasPrev)
	}
	if plans := movies.recordedPlans(); plans[0].Endpoint != catalog.EndpointPopular {
		t.Fatalf("expected popular endpoint, got %s", plans[0].Endpoint)
	}
}

func TestMoviesPageLoadFailureKeepsViewAndNotifies(t *testing.T) {
	movies, _, service := newMoviesFixture(t)
	movies.failPages = true
	page, err := NewMoviesPage(movies, Shared{Favorites: service}, catalog.QueryState{})
	if err != nil {
		t.Fatalf("new page: %v", err)
	}

	if err := page.Load(context.Background()); !errors.Is(err, errUpstreamDown) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	snapshot := page.Snapshot()
	if len(snapshot.Results) != 0 {
		t.Fatalf("expected empty results")
	}
	if snapshot.Notification == nil || snapshot.Notification.Text != notify.MessageLoadFailed {
		t.Fatalf("expected load failure notification, got %+v", snapshot.Notification)
	}
	if page.Snapshot().Notification != nil {
		t.Fatalf("expected notification to be handed over once")
	}
}

func TestMoviesPageNavigation(t *testing.T) {
	movies, _, service := newMoviesFixture(t)
	page, err := NewMoviesPage(movies, Shared{Favorites: service}, catalog.QueryState{})
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	ctx := context.Background()

	if err := page.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := page.NextPage(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if page.State().Offset != 20 {
		t.Fatalf("expected offset 20, got %d", page.State().Offset)
	}
	if err := page.NextPage(ctx); !errors.Is(err, ErrNoNextPage) {
		t.Fatalf("expected ErrNoNextPage on the last page, got %v", err)
	}
	if err := page.PrevPage(ctx); err != nil {
		t.Fatalf("prev: %v", err)
	}
	if err := page.PrevPage(ctx); err != nil {
		t.Fatalf("prev on first page: %v", err)
	}
	if page.State().Offset != 0 {
		t.Fatalf("expected offset 0, got %d", page.State().Offset)
	}

	if err := page.Search(ctx, "   "); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := page.Filter(ctx, catalog.QueryState{PopularOnly: true, GenreID: 878}); err != nil {
		t.Fatalf("filter: %v", err)
	}
	if err := page.Search(ctx, "alien"); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := page.ClearFilters(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	plans := movies.recordedPlans()
	expected := []catalog.Endpoint{
		catalog.EndpointPopular,
		catalog.EndpointPopular,
		catalog.EndpointPopular,
		catalog.EndpointPopular,
		catalog.EndpointDiscover,
		catalog.EndpointSearch,
		catalog.EndpointPopular,
	}
	if len(plans) != len(expected) {
		t.Fatalf("expected %d upstream calls, got %d", len(expected), len(plans))
	}
	for index, endpoint := range expected {
		if plans[index].Endpoint != endpoint {
			t.Fatalf("call %d: got %s want %s", index, plans[index].Endpoint, endpoint)
		}
	}
	if plans[1].Page != 2 {
		t.Fatalf("expected next page to request page 2, got %d", plans[1].Page)
	}
	if page.State() != catalog.DefaultQueryState() {
		t.Fatalf("expected defaults after clear, got %+v", page.State())
	}
}

func TestMoviesPageToggleWhileSignedOut(t *testing.T) {
	movies, store, service := newMoviesFixture(t)
	tracker := favorites.NewTracker()
	page, err := NewMoviesPage(movies, Shared{Favorites: service, Tracker: tracker}, catalog.QueryState{})
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	ctx := context.Background()
	if err := page.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	_, err = page.ToggleFavorite(ctx, movieItem(3, "Alien", 8.5, "1979-05-25"))
	if !errors.Is(err, favorites.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	snapshot := page.Snapshot()
	if snapshot.Notification == nil || snapshot.Notification.Text != notify.MessageSignedOut {
		t.Fatalf("expected signed-out notification, got %+v", snapshot.Notification)
	}
	if len(tracker.IDs()) != 0 || len(tracker.PendingIDs()) != 0 {
		t.Fatalf("expected local favorites unchanged and nothing pending")
	}
	for _, view := range snapshot.Results {
		if view.Favorite || view.Pending {
			t.Fatalf("unexpected favorite state on %d", view.Item.ID())
		}
	}
	if len(store.documents) != 0 {
		t.Fatalf("expected nothing written")
	}
}

func TestMoviesPageToggleSignedIn(t *testing.T) {
	movies, _, service := newMoviesFixture(t)
	page, err := NewMoviesPage(movies, Shared{Favorites: service}, catalog.QueryState{})
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	ctx := signedIn()
	if err := page.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	item := movieItem(3, "Alien", 8.5, "1979-05-25")

	result, err := page.ToggleFavorite(ctx, item)
	if err != nil || !result.Added {
		t.Fatalf("expected add, got %+v err=%v", result, err)
	}
	snapshot := page.Snapshot()
	if !snapshot.Results[0].Favorite {
		t.Fatalf("expected favorite flag after add")
	}
	if snapshot.Notification == nil || snapshot.Notification.Text != notify.MessageAdded {
		t.Fatalf("expected added notification, got %+v", snapshot.Notification)
	}
	if found, _ := service.IsFavorite(ctx, 3); !found {
		t.Fatalf("expected favorite to be stored")
	}

	if _, err := page.ToggleFavorite(ctx, item); err != nil {
		t.Fatalf("remove toggle: %v", err)
	}
	snapshot = page.Snapshot()
	if snapshot.Results[0].Favorite {
		t.Fatalf("expected favorite flag cleared")
	}
	if snapshot.Notification == nil || snapshot.Notification.Text != notify.MessageRemoved {
		t.Fatalf("expected removed notification, got %+v", snapshot.Notification)
	}
}

func TestMoviesPageToggleStoreFailureRevertsMembership(t *testing.T) {
	movies, store, service := newMoviesFixture(t)
	store.failWrite = errors.New("permission denied")
	page, err := NewMoviesPage(movies, Shared{Favorites: service}, catalog.QueryState{})
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	ctx := signedIn()

	if _, err := page.ToggleFavorite(ctx, movieItem(3, "Alien", 8.5, "1979-05-25")); err == nil {
		t.Fatalf("expected store failure")
	}
	if page.tracker.State(3) != favorites.Absent {
		t.Fatalf("expected membership reverted, got %s", page.tracker.State(3))
	}
	if snapshot := page.Snapshot(); snapshot.Notification == nil || snapshot.Notification.Text != notify.MessageToggleFailed {
		t.Fatalf("expected toggle failure notification")
	}
}
