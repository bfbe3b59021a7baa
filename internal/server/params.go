package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"github.com/MarcoPoloResearchLab/marquee/internal/views"
	"github.com/gin-gonic/gin"
)

var (
	errInvalidParameter = errors.New("invalid query parameter")
	errUnknownNav       = errors.New("unknown navigation")
)

// navigation is the page operation requested through the nav parameter.
type navigation string

const (
	navLoad   navigation = "load"
	navSearch navigation = "search"
	navFilter navigation = "filter"
	navNext   navigation = "next"
	navPrev   navigation = "prev"
	navClear  navigation = "clear"
)

func parseNavigation(raw string) (navigation, error) {
	switch nav := navigation(strings.ToLower(strings.TrimSpace(raw))); nav {
	case "", navLoad:
		return navLoad, nil
	case navSearch, navFilter, navNext, navPrev, navClear:
		return nav, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownNav, raw)
	}
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w: %s", errInvalidParameter, name)
	}
	return value, nil
}

func boolParam(c *gin.Context, name string) (bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s", errInvalidParameter, name)
	}
	return value, nil
}

// paramReader collects the first parse error so handlers read every
// parameter before checking once.
type paramReader struct {
	c   *gin.Context
	err error
}

func (r *paramReader) intValue(name string) int {
	value, err := intParam(r.c, name)
	if r.err == nil {
		r.err = err
	}
	return value
}

func (r *paramReader) boolValue(name string) bool {
	value, err := boolParam(r.c, name)
	if r.err == nil {
		r.err = err
	}
	return value
}

func (r *paramReader) text(name string) string {
	return strings.TrimSpace(r.c.Query(name))
}

func movieStateFromQuery(c *gin.Context) (catalog.QueryState, error) {
	r := &paramReader{c: c}
	state := catalog.QueryState{
		SearchTerm:  c.Query("query"),
		OrderBy:     r.text("sort_by"),
		PopularOnly: r.boolValue("popular_only"),
		ReleaseYear: r.intValue("year"),
		GenreID:     int64(r.intValue("genre")),
		Offset:      r.intValue("offset"),
		Limit:       r.intValue("limit"),
	}
	if r.err != nil {
		return catalog.QueryState{}, r.err
	}
	defaults := catalog.DefaultQueryState()
	if state.OrderBy == "" {
		state.OrderBy = defaults.OrderBy
	}
	if state.Limit == 0 {
		state.Limit = defaults.Limit
	}
	return state, nil
}

func showQueryFromQuery(c *gin.Context) (views.ShowQuery, error) {
	r := &paramReader{c: c}
	query := views.ShowQuery{SearchTerm: c.Query("query"), Page: r.intValue("page")}
	return query, r.err
}

func characterQueryFromQuery(c *gin.Context) (catalog.CharacterQuery, error) {
	r := &paramReader{c: c}
	query := catalog.CharacterQuery{
		SearchTerm:          c.Query("query"),
		OrderBy:             r.text("order_by"),
		OnlyWithDescription: r.boolValue("with_description"),
		ModifiedSince:       r.text("modified_since"),
		Offset:              r.intValue("offset"),
		Limit:               r.intValue("limit"),
	}
	if r.err != nil {
		return catalog.CharacterQuery{}, r.err
	}
	if query.ModifiedSince != "" {
		if _, ok := catalog.ParseDate(query.ModifiedSince); !ok {
			return catalog.CharacterQuery{}, fmt.Errorf("%w: modified_since", errInvalidParameter)
		}
	}
	if query.OrderBy == "" {
		query.OrderBy = catalog.DefaultCharacterOrder
	}
	return query, nil
}

func favoritesQueryFromQuery(c *gin.Context) (views.FavoritesQuery, error) {
	r := &paramReader{c: c}
	query := views.FavoritesQuery{
		Filter: catalog.FilterState{
			SearchTerm:       c.Query("query"),
			OrderBy:          r.text("order_by"),
			OnlyWithSynopsis: r.boolValue("with_synopsis"),
		},
		Offset: r.intValue("offset"),
		Limit:  r.intValue("limit"),
	}
	if r.err != nil {
		return views.FavoritesQuery{}, r.err
	}
	if since := r.text("since"); since != "" {
		floor, ok := catalog.ParseDate(since)
		if !ok {
			return views.FavoritesQuery{}, fmt.Errorf("%w: since", errInvalidParameter)
		}
		query.Filter.DateFloor = floor
	}
	if query.Filter.OrderBy != "" {
		if _, known := catalog.NormalizeOrder(query.Filter.OrderBy); !known {
			return views.FavoritesQuery{}, fmt.Errorf("%w: order_by", errInvalidParameter)
		}
	}
	return query, nil
}

func itemIDParam(c *gin.Context) (int64, error) {
	itemID, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || itemID <= 0 {
		return 0, fmt.Errorf("%w: %w", catalog.ErrInvalidItemID, errInvalidParameter)
	}
	return itemID, nil
}
