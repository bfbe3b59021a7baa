package favorites

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"github.com/goccy/go-json"
)

const maxIdentifierLength = 190

var (
	// ErrUnauthenticated indicates a favorites operation without a signed-in user.
	ErrUnauthenticated = errors.New("favorites: unauthenticated")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("favorites: invalid user id")
	// ErrInvalidItem indicates an item without a variant or with a non-positive id.
	ErrInvalidItem = errors.New("favorites: invalid item")
)

// DocumentPath returns the document key of one favorite.
func DocumentPath(userID string, itemID int64) string {
	return fmt.Sprintf("users/%s/favorites/%d", userID, itemID)
}

// CollectionPath returns the collection key of a user's favorites.
func CollectionPath(userID string) string {
	return fmt.Sprintf("users/%s/favorites", userID)
}

// ValidateUserID trims and bounds a user identifier.
func ValidateUserID(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	if strings.Contains(trimmed, "/") {
		return "", fmt.Errorf("%w: contains a path separator", ErrInvalidUserID)
	}
	return trimmed, nil
}

// Record is a persisted favorite: the item snapshot stamped with its media type.
type Record struct {
	Item    catalog.Item
	SavedAt time.Time
}

// ID returns the item id, which is also the document key.
func (r Record) ID() int64 {
	return r.Item.ID()
}

// MediaType returns the media type stamped on the record.
func (r Record) MediaType() catalog.MediaType {
	return r.Item.MediaType()
}

// MarshalJSON writes the item snapshot with media_type and saved_at.
func (r Record) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(r.Item)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	if !r.SavedAt.IsZero() {
		savedAt, err := json.Marshal(r.SavedAt.UTC().Unix())
		if err != nil {
			return nil, err
		}
		fields["saved_at"] = savedAt
	}
	return json.Marshal(fields)
}

// Document is the SQL row backing one favorite.
type Document struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_favorites_user_saved,priority:1"`
	ItemID           int64  `gorm:"column:item_id;primaryKey;autoIncrement:false;not null"`
	MediaType        string `gorm:"column:media_type;size:32;not null;default:''"`
	PayloadJSON      string `gorm:"column:payload_json;type:text;not null"`
	SavedAtSeconds   int64  `gorm:"column:saved_at_s;not null;index:idx_favorites_user_saved,priority:2"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "favorite_documents"
}

func encodeRecord(record Record) (string, error) {
	if record.Item.IsZero() || record.Item.ID() <= 0 {
		return "", ErrInvalidItem
	}
	payload, err := json.Marshal(record.Item)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// decodeRecord restores a record. A stored media type wins over the payload
// tag, which legacy character documents lack.
func decodeRecord(payload string, mediaType string, savedAtSeconds int64) (Record, error) {
	data := []byte(payload)
	if mediaType != "" {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return Record{}, err
		}
		if _, tagged := fields["media_type"]; !tagged {
			tag, err := json.Marshal(mediaType)
			if err != nil {
				return Record{}, err
			}
			fields["media_type"] = tag
			if data, err = json.Marshal(fields); err != nil {
				return Record{}, err
			}
		}
	}
	var item catalog.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return Record{}, err
	}
	record := Record{Item: item}
	if savedAtSeconds > 0 {
		record.SavedAt = time.Unix(savedAtSeconds, 0).UTC()
	}
	return record, nil
}

// IDSet is the membership set of favorite item ids.
type IDSet map[int64]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...int64) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// MarshalJSON writes the ids as a sorted array.
func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// idFromDocumentKey extracts the numeric id at the end of a document key.
func idFromDocumentKey(key string) (int64, bool) {
	segment := key
	if index := strings.LastIndex(key, "/"); index >= 0 {
		segment = key[index+1:]
	}
	id, err := strconv.ParseInt(segment, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
