package favorites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/marquee/internal/auth"
	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("favorites store is required")
	noOpLogger      = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "favorites.service.new"
	opAdd         = "favorites.add"
	opRemove      = "favorites.remove"
	opIsFavorite  = "favorites.is_favorite"
	opList        = "favorites.list"
	opListIDs     = "favorites.list_ids"
	opToggle      = "favorites.toggle"
	reasonNoUser  = "unauthenticated"
	reasonStore   = "store_failed"
	reasonInvalid = "invalid_item"
	reasonPending = "toggle_pending"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Change describes a settled membership change.
type Change struct {
	ItemID    int64
	MediaType catalog.MediaType
	Present   bool
}

type ServiceConfig struct {
	Store  Store
	Clock  func() time.Time
	Logger *zap.Logger
	// OnChange is called after every successful add or remove.
	OnChange func(userID string, change Change)
}

// Service is the favorites adapter over a per-user document store. Every
// operation resolves the user from the context and refuses anonymous calls.
type Service struct {
	store    Store
	clock    func() time.Time
	logger   *zap.Logger
	onChange func(userID string, change Change)
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:    cfg.Store,
		clock:    clock,
		logger:   logger,
		onChange: cfg.OnChange,
	}, nil
}

func (s *Service) userID(ctx context.Context, operation string) (string, error) {
	raw, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return "", newServiceError(operation, reasonNoUser, ErrUnauthenticated)
	}
	userID, err := ValidateUserID(raw)
	if err != nil {
		return "", newServiceError(operation, reasonNoUser, errors.Join(ErrUnauthenticated, err))
	}
	return userID, nil
}

// Add upserts the item at users/{uid}/favorites/{id}, stamping its media type.
func (s *Service) Add(ctx context.Context, item catalog.Item) error {
	userID, err := s.userID(ctx, opAdd)
	if err != nil {
		return err
	}
	if item.IsZero() || item.ID() <= 0 {
		return newServiceError(opAdd, reasonInvalid, ErrInvalidItem)
	}
	record := Record{Item: item, SavedAt: s.clock().UTC()}
	if err := s.store.Set(ctx, userID, record); err != nil {
		s.logError(opAdd, reasonStore, err,
			zap.String("user_id", userID),
			zap.String("document", DocumentPath(userID, item.ID())))
		return newServiceError(opAdd, reasonStore, err)
	}
	s.notify(userID, Change{ItemID: item.ID(), MediaType: item.MediaType(), Present: true})
	return nil
}

// Remove deletes the document; removing an absent favorite succeeds.
func (s *Service) Remove(ctx context.Context, itemID int64) error {
	userID, err := s.userID(ctx, opRemove)
	if err != nil {
		return err
	}
	if itemID <= 0 {
		return newServiceError(opRemove, reasonInvalid, fmt.Errorf("%w: id %d", ErrInvalidItem, itemID))
	}
	if err := s.store.Delete(ctx, userID, itemID); err != nil {
		s.logError(opRemove, reasonStore, err,
			zap.String("user_id", userID),
			zap.String("document", DocumentPath(userID, itemID)))
		return newServiceError(opRemove, reasonStore, err)
	}
	s.notify(userID, Change{ItemID: itemID, Present: false})
	return nil
}

func (s *Service) IsFavorite(ctx context.Context, itemID int64) (bool, error) {
	userID, err := s.userID(ctx, opIsFavorite)
	if err != nil {
		return false, err
	}
	_, found, err := s.store.Get(ctx, userID, itemID)
	if err != nil {
		s.logError(opIsFavorite, reasonStore, err,
			zap.String("user_id", userID),
			zap.String("document", DocumentPath(userID, itemID)))
		return false, newServiceError(opIsFavorite, reasonStore, err)
	}
	return found, nil
}

// List returns every favorite of the signed-in user.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	userID, err := s.userID(ctx, opList)
	if err != nil {
		return nil, err
	}
	records, err := s.store.List(ctx, userID)
	if err != nil {
		s.logError(opList, reasonStore, err, zap.String("user_id", userID))
		return nil, newServiceError(opList, reasonStore, err)
	}
	return records, nil
}

// ListItems returns the item snapshots of List.
func (s *Service) ListItems(ctx context.Context) ([]catalog.Item, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]catalog.Item, 0, len(records))
	for _, record := range records {
		items = append(items, record.Item)
	}
	return items, nil
}

// ListIDs returns the ids parsed from the collection's document keys.
func (s *Service) ListIDs(ctx context.Context) (IDSet, error) {
	userID, err := s.userID(ctx, opListIDs)
	if err != nil {
		return nil, err
	}
	keys, err := s.store.Keys(ctx, userID)
	if err != nil {
		s.logError(opListIDs, reasonStore, err, zap.String("user_id", userID))
		return nil, newServiceError(opListIDs, reasonStore, err)
	}
	ids := make(IDSet, len(keys))
	for _, key := range keys {
		id, ok := idFromDocumentKey(key)
		if !ok {
			s.loggerOrDefault().Warn("favorites document key skipped",
				zap.String("user_id", userID),
				zap.String("key", key))
			continue
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

// ToggleResult reports the membership reached by a toggle.
type ToggleResult struct {
	ItemID int64
	Added  bool
}

// Toggle adds the item when it is not a favorite and removes it otherwise.
// The tracker refuses a second toggle for the same id while one is in flight
// and is always settled before Toggle returns.
func (s *Service) Toggle(ctx context.Context, tracker *Tracker, item catalog.Item) (result ToggleResult, err error) {
	if item.IsZero() || item.ID() <= 0 {
		return ToggleResult{}, newServiceError(opToggle, reasonInvalid, ErrInvalidItem)
	}
	itemID := item.ID()
	intent, err := tracker.Begin(itemID)
	if err != nil {
		return ToggleResult{}, newServiceError(opToggle, reasonPending, err)
	}
	defer func() {
		tracker.Finish(itemID, err)
	}()

	if intent == IntentAdd {
		if err = s.Add(ctx, item); err != nil {
			return ToggleResult{}, err
		}
		return ToggleResult{ItemID: itemID, Added: true}, nil
	}
	if err = s.Remove(ctx, itemID); err != nil {
		return ToggleResult{}, err
	}
	return ToggleResult{ItemID: itemID, Added: false}, nil
}

// RemoveTracked deletes itemID through tracker, refusing while a toggle of
// the same item is in flight.
func (s *Service) RemoveTracked(ctx context.Context, tracker *Tracker, itemID int64) (err error) {
	if _, err := s.userID(ctx, opRemove); err != nil {
		return err
	}
	if itemID <= 0 {
		return newServiceError(opRemove, reasonInvalid, fmt.Errorf("%w: id %d", ErrInvalidItem, itemID))
	}
	if err := tracker.BeginRemove(itemID); err != nil {
		return newServiceError(opRemove, reasonPending, err)
	}
	defer func() {
		tracker.Finish(itemID, err)
	}()
	return s.Remove(ctx, itemID)
}

func (s *Service) notify(userID string, change Change) {
	if s.onChange != nil {
		s.onChange(userID, change)
	}
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("favorites service error", attrs...)
}

// ErrorCode returns the ServiceError code carried by err, if any.
func ErrorCode(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return ""
}
