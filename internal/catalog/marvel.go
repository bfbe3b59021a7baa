package catalog

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultMarvelBaseURL is the Marvel public API root.
const DefaultMarvelBaseURL = "https://gateway.marvel.com/v1/public"

// MarvelConfig configures the character client.
type MarvelConfig struct {
	PublicKey       string
	PrivateKey      string
	BaseURL         string
	HTTPClient      *http.Client
	Timeout         time.Duration
	BreakerFailures uint32
	Clock           func() time.Time
	Logger          *zap.Logger
}

// MarvelClient reads characters from the Marvel API.
type MarvelClient struct {
	upstream   *upstreamClient
	publicKey  string
	privateKey string
	clock      func() time.Time
}

// NewMarvelClient validates the configuration and constructs a client.
func NewMarvelClient(cfg MarvelConfig) (*MarvelClient, error) {
	publicKey := strings.TrimSpace(cfg.PublicKey)
	privateKey := strings.TrimSpace(cfg.PrivateKey)
	if publicKey == "" || privateKey == "" {
		return nil, fmt.Errorf("%w: marvel public and private keys", ErrMissingCredentials)
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultMarvelBaseURL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &MarvelClient{
		upstream: newUpstreamClient(upstreamConfig{
			Name:             "marvel",
			BaseURL:          baseURL,
			HTTPClient:       cfg.HTTPClient,
			Timeout:          cfg.Timeout,
			FailureThreshold: cfg.BreakerFailures,
			Logger:           cfg.Logger,
		}),
		publicKey:  publicKey,
		privateKey: privateKey,
		clock:      clock,
	}, nil
}

type characterDataWrapper struct {
	Data struct {
		Offset  int         `json:"offset"`
		Limit   int         `json:"limit"`
		Total   int         `json:"total"`
		Count   int         `json:"count"`
		Results []Character `json:"results"`
	} `json:"data"`
}

// authValues returns ts, apikey and the md5(ts+private+public) hash Marvel requires.
func (c *MarvelClient) authValues(values url.Values) url.Values {
	ts := strconv.FormatInt(c.clock().UnixMilli(), 10)
	sum := md5.Sum([]byte(ts + c.privateKey + c.publicKey))
	values.Set("ts", ts)
	values.Set("apikey", c.publicKey)
	values.Set("hash", hex.EncodeToString(sum[:]))
	return values
}

// Characters executes a planned character query. The description flag is
// applied to the returned page and the total becomes the filtered count.
func (c *MarvelClient) Characters(ctx context.Context, plan CharacterPlan) (Page, error) {
	if plan.Limit <= 0 {
		plan.Limit = DefaultCharacterPageSize
	}
	var response characterDataWrapper
	if err := c.upstream.getJSON(ctx, "/characters", c.authValues(plan.Values()), &response); err != nil {
		return Page{}, err
	}

	results := response.Data.Results
	total := response.Data.Total
	if plan.Endpoint == EndpointSearch && plan.OnlyWithDescription {
		filtered := make([]Character, 0, len(results))
		for _, character := range results {
			if strings.TrimSpace(character.Description) != "" {
				filtered = append(filtered, character)
			}
		}
		results = filtered
		total = len(filtered)
	}

	items := make([]Item, 0, len(results))
	for _, character := range results {
		items = append(items, CharacterItem(character))
	}
	totalPages := 0
	if total > 0 {
		totalPages = (total + plan.Limit - 1) / plan.Limit
	}
	return Page{
		Items:        items,
		Page:         plan.Offset/plan.Limit + 1,
		TotalPages:   totalPages,
		TotalResults: total,
	}, nil
}

// Character fetches one character by id.
func (c *MarvelClient) Character(ctx context.Context, id int64) (Item, error) {
	if id <= 0 {
		return Item{}, fmt.Errorf("%w: %d", ErrInvalidItemID, id)
	}
	var response characterDataWrapper
	path := "/characters/" + strconv.FormatInt(id, 10)
	if err := c.upstream.getJSON(ctx, path, c.authValues(url.Values{}), &response); err != nil {
		return Item{}, err
	}
	if len(response.Data.Results) == 0 {
		return Item{}, fmt.Errorf("%w: marvel character %d", ErrNotFound, id)
	}
	return CharacterItem(response.Data.Results[0]), nil
}
