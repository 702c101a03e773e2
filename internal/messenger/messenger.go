// Package messenger builds reservation responses, threads them to the
// original request, and delivers them as two independently sealed envelopes:
// one to the counterparty and one self-copy, so any of the merchant's own
// sessions can rebuild the conversation from messages addressed to itself.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"seatrelay/internal/billing"
	"seatrelay/internal/metrics"
	"seatrelay/internal/models"
	"seatrelay/internal/relay"
)

// ErrDeliveryFailed is returned when both envelopes failed on every relay.
// It is the single failure mode callers need to handle; partial degradation
// is diagnostic only.
var ErrDeliveryFailed = errors.New("both envelopes failed on every relay")

// ErrUnresolvedTime is returned when a confirmed response lacks the resolved
// time or timezone required to build it.
var ErrUnresolvedTime = errors.New("confirmed response requires time and tzid")

// Sealer turns an unsigned message into an encrypted envelope only the
// recipient can open. The outer envelope metadata must not reveal the true
// sender or timestamp; the concrete scheme is injected, never hard-wired.
type Sealer interface {
	Seal(msg *models.ThreadedMessage, senderKey, recipientPubkey string) (*models.Envelope, error)
}

// Opener is the receiving-side counterpart of Sealer.
type Opener interface {
	Open(env *models.Envelope, recipientKey string) (*models.ThreadedMessage, error)
}

// Messenger sends threaded reservation responses over a relay pool.
type Messenger struct {
	sealer  Sealer
	pool    *relay.Pool
	billing billing.Recorder
	logger  *zerolog.Logger
}

// New creates a messenger. recorder may be billing.NopRecorder{} when usage
// accounting is not configured.
func New(sealer Sealer, pool *relay.Pool, recorder billing.Recorder, logger *zerolog.Logger) *Messenger {
	if recorder == nil {
		recorder = billing.NopRecorder{}
	}
	return &Messenger{
		sealer:  sealer,
		pool:    pool,
		billing: recorder,
		logger:  logger,
	}
}

// SendResponse threads response to originalRequest and ships it.
//
// The thread root is taken from the original request: its own id when it
// started the conversation, otherwise the root id it already carries. A new
// root is never derived here, which would fork the thread.
//
// The two envelopes are dispatched to the full relay set concurrently and
// independently; the call fails only when neither envelope reached a single
// relay. On a confirmed response, a detached best-effort billing
// notification records (merchant, thread root, reservation month) after both
// dispatches have been attempted.
func (m *Messenger) SendResponse(ctx context.Context, originalRequest *models.ThreadedMessage, response *models.ReservationResponse, senderKey, selfPubkey, recipientPubkey string) error {
	if response.Status == models.StatusConfirmed {
		if response.Time == nil || response.TZID == "" {
			return ErrUnresolvedTime
		}
	}

	rootID := originalRequest.ThreadRoot()

	msg, err := models.NewResponseMessage(uuid.NewString(), response, selfPubkey, rootID)
	if err != nil {
		return fmt.Errorf("build response message: %w", err)
	}

	toRecipient, err := m.sealer.Seal(msg, senderKey, recipientPubkey)
	if err != nil {
		return fmt.Errorf("seal for recipient: %w", err)
	}
	toSelf, err := m.sealer.Seal(msg, senderKey, selfPubkey)
	if err != nil {
		return fmt.Errorf("seal self-copy: %w", err)
	}

	err = m.PublishBoth(ctx, toRecipient, toSelf)

	if response.Status == models.StatusConfirmed {
		m.notifyBilling(selfPubkey, rootID, response)
	}

	if err != nil {
		return err
	}
	metrics.IncResponseSent(string(response.Status))
	return nil
}

// PublishBoth dispatches both envelopes concurrently and reduces the two
// outcomes: losing one envelope is not conflated with total failure, since
// counterparty notification and self-archival are independently useful.
// The error is ErrDeliveryFailed only when both envelopes failed entirely.
func (m *Messenger) PublishBoth(ctx context.Context, toRecipient, toSelf *models.Envelope) error {
	type result struct {
		name    string
		outcome *relay.DeliveryOutcome
	}

	results := make(chan result, 2)
	publish := func(name string, env *models.Envelope) {
		outcome, err := m.pool.Publish(ctx, env)
		if err != nil && m.logger != nil {
			m.logger.Error().
				Err(err).
				Str("envelope", name).
				Str("envelope_id", env.ID).
				Msg("envelope reached no relay")
		}
		results <- result{name: name, outcome: outcome}
	}

	go publish("recipient", toRecipient)
	go publish("self", toSelf)

	allFailed := true
	for i := 0; i < 2; i++ {
		r := <-results
		if r.outcome.AnySucceeded() {
			allFailed = false
		}
	}

	if allFailed {
		return ErrDeliveryFailed
	}
	return nil
}

// notifyBilling fires the billing record without blocking the send path.
// Failures are logged and counted, never propagated, never retried.
func (m *Messenger) notifyBilling(merchantPubkey, rootID string, response *models.ReservationResponse) {
	month := reservationMonth(response)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.billing.RecordReservation(ctx, merchantPubkey, rootID, month); err != nil {
			metrics.IncBillingFailure()
			if m.logger != nil {
				m.logger.Error().
					Err(err).
					Str("thread_root_id", rootID).
					Str("month", month).
					Msg("billing notification failed")
			}
		}
	}()
}

// reservationMonth formats the confirmed reservation's month in its own
// timezone, falling back to UTC when the tzid does not resolve.
func reservationMonth(response *models.ReservationResponse) string {
	t := time.Unix(*response.Time, 0).UTC()
	if loc, err := time.LoadLocation(response.TZID); err == nil {
		t = t.In(loc)
	}
	return t.Format("2006-01")
}
