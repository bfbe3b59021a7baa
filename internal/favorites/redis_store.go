package favorites

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each user's favorites in one hash keyed by item id.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

type redisDocument struct {
	MediaType      string          `json:"media_type"`
	SavedAtSeconds int64           `json:"saved_at_s"`
	Payload        json.RawMessage `json:"payload"`
}

// NewRedisStore wraps a connected client. Keys are namespaced by prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errMissingClient
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) makeKey(userID string) string {
	if s.prefix == "" {
		return CollectionPath(userID)
	}
	return s.prefix + ":" + CollectionPath(userID)
}

func (s *RedisStore) Set(ctx context.Context, userID string, record Record) error {
	payload, err := encodeRecord(record)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(redisDocument{
		MediaType:      string(record.MediaType()),
		SavedAtSeconds: record.SavedAt.UTC().Unix(),
		Payload:        json.RawMessage(payload),
	})
	if err != nil {
		return err
	}
	field := strconv.FormatInt(record.ID(), 10)
	if err := s.client.HSet(ctx, s.makeKey(userID), field, encoded).Err(); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID string, itemID int64) (Record, bool, error) {
	raw, err := s.client.HGet(ctx, s.makeKey(userID), strconv.FormatInt(itemID, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("redis hget failed: %w", err)
	}
	record, err := decodeRedisDocument(raw)
	if err != nil {
		return Record{}, false, fmt.Errorf("decode %s: %w", DocumentPath(userID, itemID), err)
	}
	return record, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, userID string, itemID int64) error {
	if err := s.client.HDel(ctx, s.makeKey(userID), strconv.FormatInt(itemID, 10)).Err(); err != nil {
		return fmt.Errorf("redis hdel failed: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, userID string) ([]Record, error) {
	entries, err := s.client.HGetAll(ctx, s.makeKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	records := make([]Record, 0, len(entries))
	for field, raw := range entries {
		record, err := decodeRedisDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", CollectionPath(userID), field, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *RedisStore) Keys(ctx context.Context, userID string) ([]string, error) {
	fields, err := s.client.HKeys(ctx, s.makeKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hkeys failed: %w", err)
	}
	keys := make([]string, 0, len(fields))
	for _, field := range fields {
		keys = append(keys, CollectionPath(userID)+"/"+field)
	}
	return keys, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeRedisDocument(raw string) (Record, error) {
	var document redisDocument
	if err := json.Unmarshal([]byte(raw), &document); err != nil {
		return Record{}, err
	}
	return decodeRecord(string(document.Payload), document.MediaType, document.SavedAtSeconds)
}
