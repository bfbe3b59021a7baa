package views

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/marquee/internal/auth"
	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"github.com/MarcoPoloResearchLab/marquee/internal/favorites"
)

const testUserID = "user-1"

var errUpstreamDown = errors.New("upstream down")

type fakeMovieCatalog struct {
	mu        sync.Mutex
	plans     []catalog.QueryPlan
	pages     map[int]catalog.Page
	genres    []catalog.Genre
	failPages bool
	items     map[int64]catalog.Item
}

func (f *fakeMovieCatalog) Movies(_ context.Context, plan catalog.QueryPlan) (catalog.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, plan)
	if f.failPages {
		return catalog.Page{}, errUpstreamDown
	}
	return f.pages[plan.Page], nil
}

func (f *fakeMovieCatalog) MovieGenres(context.Context) ([]catalog.Genre, error) {
	return f.genres, nil
}

func (f *fakeMovieCatalog) Movie(_ context.Context, id int64) (catalog.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return catalog.Item{}, catalog.ErrNotFound
	}
	return item, nil
}

func (f *fakeMovieCatalog) PosterURL(path *string) string {
	if path == nil {
		return catalog.PlaceholderPoster
	}
	return "https://img.test" + *path
}

func (f *fakeMovieCatalog) recordedPlans() []catalog.QueryPlan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]catalog.QueryPlan(nil), f.plans...)
}

type fakeCharacterCatalog struct {
	plans []catalog.CharacterPlan
	page  catalog.Page
}

func (f *fakeCharacterCatalog) Characters(_ context.Context, plan catalog.CharacterPlan) (catalog.Page, error) {
	f.plans = append(f.plans, plan)
	return f.page, nil
}

func (f *fakeCharacterCatalog) Character(_ context.Context, id int64) (catalog.Item, error) {
	return catalog.CharacterItem(catalog.Character{ID: id, Name: "Character"}), nil
}

type fakeShowCatalog struct {
	plans []catalog.QueryPlan
	page  catalog.Page
}

func (f *fakeShowCatalog) Shows(_ context.Context, plan catalog.QueryPlan) (catalog.Page, error) {
	f.plans = append(f.plans, plan)
	return f.page, nil
}

func (f *fakeShowCatalog) Show(_ context.Context, id int64) (catalog.Item, error) {
	return catalog.ShowItem(catalog.Show{ID: id, Name: "Show"}), nil
}

func (f *fakeShowCatalog) PosterURL(*string) string {
	return catalog.PlaceholderPoster
}

// memoryStore is an in-memory favorites.Store.
type memoryStore struct {
	mu        sync.Mutex
	documents map[string]map[int64]favorites.Record
	failWrite error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{documents: make(map[string]map[int64]favorites.Record)}
}

func (s *memoryStore) Set(_ context.Context, userID string, record favorites.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return s.failWrite
	}
	if s.documents[userID] == nil {
		s.documents[userID] = make(map[int64]favorites.Record)
	}
	s.documents[userID][record.ID()] = record
	return nil
}

func (s *memoryStore) Get(_ context.Context, userID string, itemID int64) (favorites.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.documents[userID][itemID]
	return record, ok, nil
}

func (s *memoryStore) Delete(_ context.Context, userID string, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return s.failWrite
	}
	delete(s.documents[userID], itemID)
	return nil
}

func (s *memoryStore) List(_ context.Context, userID string) ([]favorites.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]favorites.Record, 0, len(s.documents[userID]))
	for _, record := range s.documents[userID] {
		records = append(records, record)
	}
	sort.Slice(records, func(a, b int) bool { return records[a].ID() < records[b].ID() })
	return records, nil
}

func (s *memoryStore) Keys(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.documents[userID]))
	for itemID := range s.documents[userID] {
		keys = append(keys, favorites.DocumentPath(userID, itemID))
	}
	return keys, nil
}

func newFavoritesService(store favorites.Store) *favorites.Service {
	service, err := favorites.NewService(favorites.ServiceConfig{
		Store: store,
		Clock: func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	if err != nil {
		panic(err)
	}
	return service
}

func signedIn() context.Context {
	return auth.WithUserID(context.Background(), testUserID)
}

func movieItem(id int64, title string, rating float64, date string) catalog.Item {
	poster := "/" + title + ".jpg"
	return catalog.MovieItem(catalog.Movie{ID: id, Title: title, VoteAverage: rating, ReleaseDate: date, PosterPath: &poster, Overview: title + " overview"})
}
