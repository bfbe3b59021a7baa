package favorites

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingClient   = errors.New("redis client is required")
)

// Store is the per-user favorites document collection.
type Store interface {
	// Set upserts the document at users/{uid}/favorites/{id}.
	Set(ctx context.Context, userID string, record Record) error
	// Get returns the document and whether it exists.
	Get(ctx context.Context, userID string, itemID int64) (Record, bool, error)
	// Delete removes the document. Deleting an absent document is not an error.
	Delete(ctx context.Context, userID string, itemID int64) error
	// List returns every document in the user's collection.
	List(ctx context.Context, userID string) ([]Record, error)
	// Keys returns the document keys of the user's collection.
	Keys(ctx context.Context, userID string) ([]string, error)
}

// GormStore keeps favorites in the favorite_documents table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an opened database.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Set(ctx context.Context, userID string, record Record) error {
	payload, err := encodeRecord(record)
	if err != nil {
		return err
	}
	savedAt := record.SavedAt.UTC().Unix()
	document := Document{
		UserID:           userID,
		ItemID:           record.ID(),
		MediaType:        string(record.MediaType()),
		PayloadJSON:      payload,
		SavedAtSeconds:   savedAt,
		UpdatedAtSeconds: savedAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"media_type", "payload_json", "updated_at_s"}),
		}).
		Create(&document).Error
}

func (s *GormStore) Get(ctx context.Context, userID string, itemID int64) (Record, bool, error) {
	var document Document
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND item_id = ?", userID, itemID).
		Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	record, err := decodeRecord(document.PayloadJSON, document.MediaType, document.SavedAtSeconds)
	if err != nil {
		return Record{}, false, fmt.Errorf("decode %s: %w", DocumentPath(userID, itemID), err)
	}
	return record, true, nil
}

func (s *GormStore) Delete(ctx context.Context, userID string, itemID int64) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND item_id = ?", userID, itemID).
		Delete(&Document{}).Error
}

func (s *GormStore) List(ctx context.Context, userID string) ([]Record, error) {
	var documents []Document
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("saved_at_s ASC, item_id ASC").
		Find(&documents).Error; err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(documents))
	for _, document := range documents {
		record, err := decodeRecord(document.PayloadJSON, document.MediaType, document.SavedAtSeconds)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", DocumentPath(userID, document.ItemID), err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *GormStore) Keys(ctx context.Context, userID string) ([]string, error) {
	var itemIDs []int64
	if err := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("user_id = ?", userID).
		Pluck("item_id", &itemIDs).Error; err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		keys = append(keys, DocumentPath(userID, itemID))
	}
	return keys, nil
}
