package catalog

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultMovieOrder is the discover sort order that counts as "no filter".
	DefaultMovieOrder = "popularity.desc"
	// DefaultPageSize matches the TMDB page size.
	DefaultPageSize = 20
	// PopularVoteFloor is the vote_count.gte applied by the "popular only" flag.
	PopularVoteFloor = 100

	// DefaultCharacterOrder is the Marvel ordering that counts as "no filter".
	DefaultCharacterOrder = "name"
	// DefaultCharacterPageSize is the Marvel page size used by the character pages.
	DefaultCharacterPageSize = 10
)

// Endpoint names the upstream listing chosen for a query.
type Endpoint string

const (
	EndpointPopular  Endpoint = "popular"
	EndpointSearch   Endpoint = "search"
	EndpointDiscover Endpoint = "discover"
	// EndpointList is the unfiltered Marvel character listing.
	EndpointList Endpoint = "list"
)

// QueryState holds the movie page filter, sort and pagination parameters.
type QueryState struct {
	SearchTerm  string `json:"query"`
	OrderBy     string `json:"sort_by"`
	PopularOnly bool   `json:"popular_only"`
	ReleaseYear int    `json:"year,omitempty"`
	GenreID     int64  `json:"genre,omitempty"`
	Offset      int    `json:"offset"`
	Limit       int    `json:"limit"`
}

// DefaultQueryState returns the state of a freshly opened movie page.
func DefaultQueryState() QueryState {
	return QueryState{OrderBy: DefaultMovieOrder, Limit: DefaultPageSize}
}

func (s QueryState) normalized() QueryState {
	if s.Limit <= 0 {
		s.Limit = DefaultPageSize
	}
	if strings.TrimSpace(s.OrderBy) == "" {
		s.OrderBy = DefaultMovieOrder
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	return s
}

// Page returns the one-based upstream page for the current offset.
func (s QueryState) Page() int {
	n := s.normalized()
	return n.Offset/n.Limit + 1
}

// FiltersActive reports whether any discover-only field differs from its default.
func (s QueryState) FiltersActive() bool {
	n := s.normalized()
	return n.OrderBy != DefaultMovieOrder ||
		n.PopularOnly ||
		n.ReleaseYear > 0 ||
		n.GenreID > 0
}

// Searched resets the offset for a new search.
func (s QueryState) Searched() QueryState {
	n := s.normalized()
	n.Offset = 0
	return n
}

// Next advances one page.
func (s QueryState) Next() QueryState {
	n := s.normalized()
	n.Offset += n.Limit
	return n
}

// Prev moves back one page. The first page stays where it is.
func (s QueryState) Prev() QueryState {
	n := s.normalized()
	if n.Offset == 0 {
		return n
	}
	n.Offset -= n.Limit
	if n.Offset < 0 {
		n.Offset = 0
	}
	return n
}

// Cleared drops every filter and the search term, keeping the page size.
func (s QueryState) Cleared() QueryState {
	cleared := DefaultQueryState()
	if s.Limit > 0 {
		cleared.Limit = s.Limit
	}
	return cleared
}

// DiscoverParams is the parameter set sent to the discover endpoint.
type DiscoverParams struct {
	Page               int
	SortBy             string
	WithGenres         string
	PrimaryReleaseYear int
	VoteCountGTE       int
}

// Values encodes only the non-empty fields.
func (p DiscoverParams) Values() url.Values {
	values := url.Values{}
	if p.Page > 0 {
		values.Set("page", strconv.Itoa(p.Page))
	}
	if p.SortBy != "" {
		values.Set("sort_by", p.SortBy)
	}
	if p.WithGenres != "" {
		values.Set("with_genres", p.WithGenres)
	}
	if p.PrimaryReleaseYear > 0 {
		values.Set("primary_release_year", strconv.Itoa(p.PrimaryReleaseYear))
	}
	if p.VoteCountGTE > 0 {
		values.Set("vote_count.gte", strconv.Itoa(p.VoteCountGTE))
	}
	return values
}

// QueryPlan is the single outbound request a movie or show query resolves to.
type QueryPlan struct {
	Endpoint   Endpoint
	Page       int
	SearchTerm string
	Discover   DiscoverParams
}

// PlanMovieQuery picks search, discover or popular for the movie page.
func PlanMovieQuery(state QueryState) QueryPlan {
	n := state.normalized()
	page := n.Page()

	if term := strings.TrimSpace(n.SearchTerm); term != "" {
		return QueryPlan{Endpoint: EndpointSearch, Page: page, SearchTerm: term}
	}

	if n.FiltersActive() {
		params := DiscoverParams{Page: page, SortBy: n.OrderBy}
		if n.ReleaseYear > 0 {
			params.PrimaryReleaseYear = n.ReleaseYear
		}
		if n.PopularOnly {
			params.VoteCountGTE = PopularVoteFloor
		}
		if n.GenreID > 0 {
			params.WithGenres = strconv.FormatInt(n.GenreID, 10)
		}
		return QueryPlan{Endpoint: EndpointDiscover, Page: page, Discover: params}
	}

	return QueryPlan{Endpoint: EndpointPopular, Page: page}
}

// PlanShowQuery picks search or popular for the series page.
func PlanShowQuery(searchTerm string, page int) QueryPlan {
	if page <= 0 {
		page = 1
	}
	if term := strings.TrimSpace(searchTerm); term != "" {
		return QueryPlan{Endpoint: EndpointSearch, Page: page, SearchTerm: term}
	}
	return QueryPlan{Endpoint: EndpointPopular, Page: page}
}

// CharacterQuery holds the character page filter, sort and pagination parameters.
type CharacterQuery struct {
	SearchTerm          string `json:"query"`
	OrderBy             string `json:"order_by"`
	OnlyWithDescription bool   `json:"with_description"`
	ModifiedSince       string `json:"modified_since,omitempty"`
	Offset              int    `json:"offset"`
	Limit               int    `json:"limit"`
}

// DefaultCharacterQuery returns the state of a freshly opened character page.
func DefaultCharacterQuery() CharacterQuery {
	return CharacterQuery{OrderBy: DefaultCharacterOrder, Limit: DefaultCharacterPageSize}
}

func (q CharacterQuery) normalized() CharacterQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultCharacterPageSize
	}
	if strings.TrimSpace(q.OrderBy) == "" {
		q.OrderBy = DefaultCharacterOrder
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	q.ModifiedSince = strings.TrimSpace(q.ModifiedSince)
	return q
}

// FiltersActive reports whether the search form of the listing is needed.
func (q CharacterQuery) FiltersActive() bool {
	n := q.normalized()
	return strings.TrimSpace(n.SearchTerm) != "" ||
		n.OnlyWithDescription ||
		n.ModifiedSince != "" ||
		n.OrderBy != DefaultCharacterOrder
}

// Page returns the one-based page for the current offset.
func (q CharacterQuery) Page() int {
	n := q.normalized()
	return n.Offset/n.Limit + 1
}

// Searched resets the offset for a new search.
func (q CharacterQuery) Searched() CharacterQuery {
	n := q.normalized()
	n.Offset = 0
	return n
}

// Next advances one page.
func (q CharacterQuery) Next() CharacterQuery {
	n := q.normalized()
	n.Offset += n.Limit
	return n
}

// Prev moves back one page. The first page stays where it is.
func (q CharacterQuery) Prev() CharacterQuery {
	n := q.normalized()
	if n.Offset == 0 {
		return n
	}
	n.Offset -= n.Limit
	if n.Offset < 0 {
		n.Offset = 0
	}
	return n
}

// Cleared drops every filter and the search term, keeping the page size.
func (q CharacterQuery) Cleared() CharacterQuery {
	cleared := DefaultCharacterQuery()
	if q.Limit > 0 {
		cleared.Limit = q.Limit
	}
	return cleared
}

// CharacterPlan is the Marvel request a character query resolves to.
type CharacterPlan struct {
	Endpoint            Endpoint
	Limit               int
	Offset              int
	OrderBy             string
	NameStartsWith      string
	ModifiedSince       string
	OnlyWithDescription bool
}

// Values encodes the Marvel query parameters, excluding authentication.
func (p CharacterPlan) Values() url.Values {
	values := url.Values{}
	values.Set("limit", strconv.Itoa(p.Limit))
	values.Set("offset", strconv.Itoa(p.Offset))
	if p.Endpoint == EndpointList {
		return values
	}
	values.Set("orderBy", p.OrderBy)
	if p.NameStartsWith != "" {
		values.Set("nameStartsWith", p.NameStartsWith)
	}
	if p.ModifiedSince != "" {
		values.Set("modifiedSince", p.ModifiedSince)
	}
	return values
}

// PlanCharacterQuery picks the plain listing or its search form.
func PlanCharacterQuery(query CharacterQuery) CharacterPlan {
	n := query.normalized()
	if !n.FiltersActive() {
		return CharacterPlan{Endpoint: EndpointList, Limit: n.Limit, Offset: n.Offset}
	}
	return CharacterPlan{
		Endpoint:            EndpointSearch,
		Limit:               n.Limit,
		Offset:              n.Offset,
		OrderBy:             n.OrderBy,
		NameStartsWith:      strings.TrimSpace(n.SearchTerm),
		ModifiedSince:       n.ModifiedSince,
		OnlyWithDescription: n.OnlyWithDescription,
	}
}
