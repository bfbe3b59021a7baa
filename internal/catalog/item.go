package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// MediaType tags which upstream catalog an item belongs to.
type MediaType string

const (
	// MediaTypeMovie marks TMDB movies.
	MediaTypeMovie MediaType = "movie"
	// MediaTypeShow marks TMDB television series.
	MediaTypeShow MediaType = "tv"
	// MediaTypeCharacter marks Marvel characters.
	MediaTypeCharacter MediaType = "character"
)

var (
	// ErrUnknownMediaType indicates a media type outside the supported catalogs.
	ErrUnknownMediaType = errors.New("catalog: unknown media type")
	// ErrInvalidItemID indicates a non-positive catalog identifier.
	ErrInvalidItemID = errors.New("catalog: invalid item id")
)

// ParseMediaType validates raw input and returns a MediaType.
func ParseMediaType(rawInput string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(rawInput)) {
	case string(MediaTypeMovie):
		return MediaTypeMovie, nil
	case string(MediaTypeShow), "series", "show":
		return MediaTypeShow, nil
	case string(MediaTypeCharacter):
		return MediaTypeCharacter, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMediaType, rawInput)
	}
}

// Movie mirrors the TMDB movie list/detail payload.
type Movie struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	PosterPath  *string `json:"poster_path"`
	ReleaseDate string  `json:"release_date"`
	Overview    string  `json:"overview"`
	VoteAverage float64 `json:"vote_average"`
	GenreIDs    []int64 `json:"genre_ids,omitempty"`
	VoteCount   int64   `json:"vote_count,omitempty"`
}

// Show mirrors the TMDB tv list/detail payload.
type Show struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	PosterPath   *string `json:"poster_path"`
	FirstAirDate string  `json:"first_air_date"`
	Overview     string  `json:"overview"`
	VoteAverage  float64 `json:"vote_average"`
	GenreIDs     []int64 `json:"genre_ids,omitempty"`
	VoteCount    int64   `json:"vote_count,omitempty"`
}

// Thumbnail is the Marvel image reference (path without extension).
type Thumbnail struct {
	Path      string `json:"path"`
	Extension string `json:"extension"`
}

// URL joins the thumbnail path and extension, or returns "" when absent.
func (t Thumbnail) URL() string {
	if t.Path == "" || t.Extension == "" {
		return ""
	}
	return t.Path + "." + t.Extension
}

// Character mirrors the Marvel character payload.
type Character struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Modified    string    `json:"modified"`
	Thumbnail   Thumbnail `json:"thumbnail"`
}

// Item is a catalog entry of exactly one media type.
type Item struct {
	kind      MediaType
	movie     *Movie
	show      *Show
	character *Character
}

// MovieItem wraps a movie.
func MovieItem(movie Movie) Item {
	return Item{kind: MediaTypeMovie, movie: &movie}
}

// ShowItem wraps a tv show.
func ShowItem(show Show) Item {
	return Item{kind: MediaTypeShow, show: &show}
}

// CharacterItem wraps a character.
func CharacterItem(character Character) Item {
	return Item{kind: MediaTypeCharacter, character: &character}
}

// MediaType reports the variant held by the item.
func (i Item) MediaType() MediaType {
	return i.kind
}

// IsZero reports whether the item holds no variant.
func (i Item) IsZero() bool {
	return i.kind == ""
}

// Movie returns the movie variant.
func (i Item) Movie() (Movie, bool) {
	if i.kind != MediaTypeMovie || i.movie == nil {
		return Movie{}, false
	}
	return *i.movie, true
}

// Show returns the tv variant.
func (i Item) Show() (Show, bool) {
	if i.kind != MediaTypeShow || i.show == nil {
		return Show{}, false
	}
	return *i.show, true
}

// Character returns the character variant.
func (i Item) Character() (Character, bool) {
	if i.kind != MediaTypeCharacter || i.character == nil {
		return Character{}, false
	}
	return *i.character, true
}

// ID returns the upstream identifier.
func (i Item) ID() int64 {
	switch i.kind {
	case MediaTypeMovie:
		return i.movie.ID
	case MediaTypeShow:
		return i.show.ID
	case MediaTypeCharacter:
		return i.character.ID
	default:
		return 0
	}
}

// Title returns the display title (movie title, show or character name).
func (i Item) Title() string {
	switch i.kind {
	case MediaTypeMovie:
		return i.movie.Title
	case MediaTypeShow:
		return i.show.Name
	case MediaTypeCharacter:
		return i.character.Name
	default:
		return ""
	}
}

// Synopsis returns the overview or character description.
func (i Item) Synopsis() string {
	switch i.kind {
	case MediaTypeMovie:
		return i.movie.Overview
	case MediaTypeShow:
		return i.show.Overview
	case MediaTypeCharacter:
		return i.character.Description
	default:
		return ""
	}
}

// DateString returns the raw release, first-air or modified date.
func (i Item) DateString() string {
	switch i.kind {
	case MediaTypeMovie:
		return i.movie.ReleaseDate
	case MediaTypeShow:
		return i.show.FirstAirDate
	case MediaTypeCharacter:
		return i.character.Modified
	default:
		return ""
	}
}

// Date parses DateString. The boolean is false when the value is empty or malformed.
func (i Item) Date() (time.Time, bool) {
	return ParseDate(i.DateString())
}

// Rating returns the vote average; characters carry no rating.
func (i Item) Rating() float64 {
	switch i.kind {
	case MediaTypeMovie:
		return i.movie.VoteAverage
	case MediaTypeShow:
		return i.show.VoteAverage
	default:
		return 0
	}
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
}

// ParseDate accepts the TMDB day format and the Marvel timestamp formats.
func ParseDate(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

type moviePayload struct {
	Movie
	MediaType MediaType `json:"media_type"`
}

type showPayload struct {
	Show
	MediaType MediaType `json:"media_type"`
}

type characterPayload struct {
	Character
	MediaType MediaType `json:"media_type"`
}

// MarshalJSON writes the variant snapshot with its media_type tag.
func (i Item) MarshalJSON() ([]byte, error) {
	switch i.kind {
	case MediaTypeMovie:
		return json.Marshal(moviePayload{Movie: *i.movie, MediaType: i.kind})
	case MediaTypeShow:
		return json.Marshal(showPayload{Show: *i.show, MediaType: i.kind})
	case MediaTypeCharacter:
		return json.Marshal(characterPayload{Character: *i.character, MediaType: i.kind})
	default:
		return nil, ErrUnknownMediaType
	}
}

type itemProbe struct {
	MediaType    MediaType `json:"media_type"`
	Title        *string   `json:"title"`
	FirstAirDate *string   `json:"first_air_date"`
}

// UnmarshalJSON decodes a tagged snapshot. Untagged snapshots come from the
// character variant or from catalog listings, so the tag is inferred from the
// fields that only one variant carries.
func (i *Item) UnmarshalJSON(data []byte) error {
	var probe itemProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	kind := probe.MediaType
	if kind == "" {
		switch {
		case probe.Title != nil:
			kind = MediaTypeMovie
		case probe.FirstAirDate != nil:
			kind = MediaTypeShow
		default:
			kind = MediaTypeCharacter
		}
	}
	switch kind {
	case MediaTypeMovie:
		var movie Movie
		if err := json.Unmarshal(data, &movie); err != nil {
			return err
		}
		*i = MovieItem(movie)
	case MediaTypeShow:
		var show Show
		if err := json.Unmarshal(data, &show); err != nil {
			return err
		}
		*i = ShowItem(show)
	case MediaTypeCharacter:
		var character Character
		if err := json.Unmarshal(data, &character); err != nil {
			return err
		}
		*i = CharacterItem(character)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMediaType, kind)
	}
	return nil
}

// Page is one server-side page of catalog results.
type Page struct {
	Items        []Item `json:"results"`
	Page         int    `json:"page"`
	TotalPages   int    `json:"total_pages"`
	TotalResults int    `json:"total_results"`
}

// Genre is a TMDB genre.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
