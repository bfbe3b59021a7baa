package notify

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a notification stays visible.
const DefaultTTL = 3 * time.Second

// Level classifies a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Messages shown to users.
const (
	MessageAdded          = "Added to favorites"
	MessageRemoved        = "Removed from favorites"
	MessageSignedOut      = "Error. Are you signed in?"
	MessageLoadFailed     = "Error loading data."
	MessageSearchFailed   = "Error searching."
	MessageFilterFailed   = "Error applying filters."
	MessagePageFailed     = "Error loading page."
	MessageToggleFailed   = "Error updating favorites."
	MessageTogglePending  = "Please wait, still saving."
	MessageFavoritesEmpty = "No favorites yet."
)

// Notification is a transient message for one user.
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Text      string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CenterConfig struct {
	TTL        time.Duration
	Clock      func() time.Time
	Dispatcher *Dispatcher
}

// Center holds the latest notification of each user and publishes it to
// the user's streams. Showing a new one replaces the previous one.
type Center struct {
	mu         sync.Mutex
	ttl        time.Duration
	clock      func() time.Time
	dispatcher *Dispatcher
	current    map[string]Notification
}

func NewCenter(cfg CenterConfig) *Center {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Center{
		ttl:        ttl,
		clock:      clock,
		dispatcher: cfg.Dispatcher,
		current:    make(map[string]Notification),
	}
}

// Info shows an informational notification.
func (c *Center) Info(userID, text string) Notification {
	return c.Show(userID, LevelInfo, text)
}

// Error shows an error notification.
func (c *Center) Error(userID, text string) Notification {
	return c.Show(userID, LevelError, text)
}

// Show builds the notification and, for signed-in users, keeps it until it
// expires. Anonymous notifications are only returned.
func (c *Center) Show(userID string, level Level, text string) Notification {
	now := c.clock().UTC()
	notification := Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Text:      strings.TrimSpace(text),
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	if userID == "" {
		return notification
	}

	c.mu.Lock()
	c.current[userID] = notification
	c.mu.Unlock()

	if c.dispatcher != nil {
		c.dispatcher.Publish(Message{
			ID:        notification.ID,
			UserID:    userID,
			EventType: EventNotification,
			Text:      notification.Text,
			Level:     level,
			Timestamp: now,
		})
	}
	return notification
}

// Current returns the user's notification while it has not expired.
func (c *Center) Current(userID string) (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	notification, ok := c.current[userID]
	if !ok {
		return Notification{}, false
	}
	if !c.clock().UTC().Before(notification.ExpiresAt) {
		delete(c.current, userID)
		return Notification{}, false
	}
	return notification, true
}

// Dismiss clears the user's notification.
func (c *Center) Dismiss(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.current, userID)
}
