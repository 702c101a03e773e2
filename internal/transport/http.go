// Package transport is the default relay client: plain HTTP against each
// relay's publish and poll endpoints. The relay servers themselves are an
// external system; this client only speaks their JSON surface.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"seatrelay/internal/models"
)

// Client publishes envelopes to and polls envelopes from relay endpoints.
type Client struct {
	httpClient   *http.Client
	relays       []string
	pubkey       string
	pollInterval time.Duration
	logger       *zerolog.Logger
}

// NewClient creates a client polling the given relays for envelopes
// addressed to pubkey.
func NewClient(relays []string, pubkey string, pollInterval time.Duration, logger *zerolog.Logger) *Client {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Client{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		relays:       relays,
		pubkey:       pubkey,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// PublishOne delivers the envelope to a single relay endpoint.
func (c *Client) PublishOne(ctx context.Context, env *models.Envelope, endpoint string) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(endpoint, "/")+"/envelopes", strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("relay %s: http %d", endpoint, resp.StatusCode)
	}
	return nil
}

// Envelopes polls every relay and merges results into one channel,
// deduplicating by envelope id across relays. The channel closes when ctx
// is cancelled.
func (c *Client) Envelopes(ctx context.Context) (<-chan *models.Envelope, error) {
	out := make(chan *models.Envelope)

	var mu sync.Mutex
	seen := make(map[string]struct{})

	var wg sync.WaitGroup
	for _, endpoint := range c.relays {
		wg.Add(1)
		go func(endpoint string) {
			defer wg.Done()
			c.pollLoop(ctx, endpoint, out, &mu, seen)
		}(endpoint)
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

func (c *Client) pollLoop(ctx context.Context, endpoint string, out chan<- *models.Envelope, mu *sync.Mutex, seen map[string]struct{}) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	since := time.Now().Add(-time.Minute).Unix()
	for {
		envelopes, err := c.poll(ctx, endpoint, since)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if c.logger != nil {
				c.logger.Warn().Err(err).Str("relay", endpoint).Msg("relay poll failed")
			}
		}
		for _, env := range envelopes {
			mu.Lock()
			_, dup := seen[env.ID]
			if !dup {
				seen[env.ID] = struct{}{}
			}
			mu.Unlock()
			if dup {
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
		since = time.Now().Unix()

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) poll(ctx context.Context, endpoint string, since int64) ([]*models.Envelope, error) {
	u := fmt.Sprintf("%s/envelopes?recipient=%s&since=%d",
		strings.TrimRight(endpoint, "/"), url.QueryEscape(c.pubkey), since)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("relay %s: http %d", endpoint, resp.StatusCode)
	}

	var wrap struct {
		Envelopes []*models.Envelope `json:"envelopes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrap); err != nil {
		return nil, fmt.Errorf("decode envelopes: %w", err)
	}
	return wrap.Envelopes, nil
}
