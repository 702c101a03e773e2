// Package relay dispatches sealed envelopes to a set of relay endpoints and
// aggregates per-endpoint results into an envelope-level outcome.
package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"seatrelay/internal/metrics"
	"seatrelay/internal/models"
)

// ErrAllRelaysFailed is returned when an envelope reached no relay at all.
var ErrAllRelaysFailed = errors.New("all relays failed")

// Publisher is the transport primitive: deliver one envelope to one relay
// endpoint. Implementations own connection handling and timeouts.
type Publisher interface {
	PublishOne(ctx context.Context, env *models.Envelope, endpoint string) error
}

// Subscriber yields inbound sealed envelopes from the relay set.
type Subscriber interface {
	Envelopes(ctx context.Context) (<-chan *models.Envelope, error)
}

// EndpointResult records the outcome of one endpoint dispatch.
type EndpointResult struct {
	Endpoint string
	Success  bool
	Err      error
}

// DeliveryOutcome is the aggregated result of publishing one envelope to
// every configured relay. It is produced once per send attempt.
type DeliveryOutcome struct {
	EnvelopeID  string
	PerEndpoint []EndpointResult
}

// AnySucceeded reports whether at least one endpoint accepted the envelope.
func (o *DeliveryOutcome) AnySucceeded() bool {
	for _, r := range o.PerEndpoint {
		if r.Success {
			return true
		}
	}
	return false
}

// AllFailed reports whether no endpoint accepted the envelope.
func (o *DeliveryOutcome) AllFailed() bool {
	return !o.AnySucceeded()
}

// PoolConfig holds configuration for a relay pool.
type PoolConfig struct {
	// PublishRate is the number of publishes allowed per second across the
	// pool. Zero disables rate limiting.
	PublishRate float64
	// PublishBurst is the rate limiter burst size.
	PublishBurst int
}

// Pool fans a single envelope out to a fixed relay set.
type Pool struct {
	publisher Publisher
	relays    []string
	limiter   *rate.Limiter
	logger    *zerolog.Logger
}

// NewPool creates a pool over the given endpoints.
func NewPool(publisher Publisher, relays []string, cfg PoolConfig, logger *zerolog.Logger) *Pool {
	var limiter *rate.Limiter
	if cfg.PublishRate > 0 {
		burst := cfg.PublishBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.PublishRate), burst)
	}
	return &Pool{
		publisher: publisher,
		relays:    relays,
		limiter:   limiter,
		logger:    logger,
	}
}

// Relays returns the configured endpoints.
func (p *Pool) Relays() []string {
	return p.relays
}

// Publish dispatches the envelope to every relay concurrently and waits for
// all of them to settle; every endpoint's result is kept for diagnostics,
// with no short-circuit on first success or failure. The returned error is
// ErrAllRelaysFailed only when not a single relay accepted the envelope.
func (p *Pool) Publish(ctx context.Context, env *models.Envelope) (*DeliveryOutcome, error) {
	outcome := &DeliveryOutcome{
		EnvelopeID:  env.ID,
		PerEndpoint: make([]EndpointResult, len(p.relays)),
	}

	var wg sync.WaitGroup
	for i, endpoint := range p.relays {
		wg.Add(1)
		go func(i int, endpoint string) {
			defer wg.Done()
			err := p.publishOne(ctx, env, endpoint)
			outcome.PerEndpoint[i] = EndpointResult{
				Endpoint: endpoint,
				Success:  err == nil,
				Err:      err,
			}
		}(i, endpoint)
	}
	wg.Wait()

	for _, r := range outcome.PerEndpoint {
		if r.Success {
			metrics.IncRelayPublish("ok")
		} else {
			metrics.IncRelayPublish("error")
			if p.logger != nil {
				p.logger.Warn().
					Err(r.Err).
					Str("relay", r.Endpoint).
					Str("envelope_id", env.ID).
					Msg("relay publish failed")
			}
		}
	}

	if outcome.AllFailed() {
		return outcome, ErrAllRelaysFailed
	}
	return outcome, nil
}

func (p *Pool) publishOne(ctx context.Context, env *models.Envelope, endpoint string) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return p.publisher.PublishOne(ctx, env, endpoint)
}
