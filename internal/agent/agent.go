// Package agent wires the decision pipeline to the wire: it consumes opened
// inbound messages, evaluates the merchant's auto-accept policy, sends the
// threaded response, and persists accepted reservations.
package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"seatrelay/internal/messenger"
	"seatrelay/internal/metrics"
	"seatrelay/internal/models"
	"seatrelay/internal/notify"
	"seatrelay/internal/policy"
	"seatrelay/internal/relay"
)

// ReservationStore persists the merchant's reservations.
type ReservationStore interface {
	ListConfirmed(ctx context.Context) ([]models.ReservationResponse, error)
	SaveConfirmed(ctx context.Context, threadRootID string, resp *models.ReservationResponse, partySize int) error
	Cancel(ctx context.Context, threadRootID string) error
}

// ResponseSender ships a threaded response; implemented by the messenger.
type ResponseSender interface {
	SendResponse(ctx context.Context, originalRequest *models.ThreadedMessage, response *models.ReservationResponse, senderKey, selfPubkey, recipientPubkey string) error
}

// Config holds the agent's identity and policy inputs.
type Config struct {
	SecretKey    string
	Pubkey       string
	AutoAccept   models.AutoAcceptConfig
	OpeningHours []models.OpeningHoursSpec
}

// Agent is the merchant-side reservation handler.
type Agent struct {
	cfg      Config
	store    ReservationStore
	sender   ResponseSender
	notifier notify.Notifier
	logger   *zerolog.Logger
}

// New creates an agent. notifier may be notify.NopNotifier{}.
func New(cfg Config, store ReservationStore, sender ResponseSender, notifier notify.Notifier, logger *zerolog.Logger) *Agent {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Agent{
		cfg:      cfg,
		store:    store,
		sender:   sender,
		notifier: notifier,
		logger:   logger,
	}
}

// Run consumes envelopes addressed to the merchant until ctx is cancelled.
// Envelopes that cannot be opened, and the merchant's own self-copies, are
// skipped.
func (a *Agent) Run(ctx context.Context, sub relay.Subscriber, opener messenger.Opener) error {
	ch, err := sub.Envelopes(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-ch:
			if !ok {
				return nil
			}
			if env.RecipientPubkey != a.cfg.Pubkey {
				continue
			}
			msg, err := opener.Open(env, a.cfg.SecretKey)
			if err != nil {
				a.logger.Warn().Err(err).Str("envelope_id", env.ID).Msg("dropping unopenable envelope")
				continue
			}
			if msg.SenderPubkey == a.cfg.Pubkey {
				continue
			}
			if err := a.HandleMessage(ctx, msg); err != nil {
				a.logger.Error().Err(err).Str("message_id", msg.ID).Msg("message handling failed")
			}
		}
	}
}

// HandleMessage routes one opened inbound message.
func (a *Agent) HandleMessage(ctx context.Context, msg *models.ThreadedMessage) error {
	switch msg.Kind {
	case models.KindRequest:
		return a.handleRequest(ctx, msg)
	case models.KindResponse:
		return a.handleResponse(ctx, msg)
	default:
		return fmt.Errorf("unknown message kind %q", msg.Kind)
	}
}

func (a *Agent) handleRequest(ctx context.Context, msg *models.ThreadedMessage) error {
	confirmed, err := a.store.ListConfirmed(ctx)
	if err != nil {
		return fmt.Errorf("list confirmed reservations: %w", err)
	}

	decision := policy.Evaluate(msg, &a.cfg.AutoAccept, confirmed, a.cfg.OpeningHours)
	if decision.Accept {
		metrics.IncDecision("accepted")
		return a.Accept(ctx, msg)
	}
	metrics.IncDecision("rejected")

	a.logger.Info().
		Str("message_id", msg.ID).
		Str("reason", decision.Reason).
		Msg("request not auto-accepted")

	// With auto-accept disabled (or a non-request slipping through) the
	// merchant decides manually; only policy rejections of a live request
	// produce an automatic decline.
	if decision.Reason == policy.ReasonDisabled || decision.Reason == policy.ReasonNotARequest {
		return nil
	}
	return a.Decline(ctx, msg, decision.Reason)
}

// handleResponse processes counterparty responses; a cancellation releases
// the thread's reservation.
func (a *Agent) handleResponse(ctx context.Context, msg *models.ThreadedMessage) error {
	resp, err := msg.ResponsePayload()
	if err != nil {
		return err
	}
	if resp.Status != models.StatusCancelled {
		return nil
	}
	if err := a.store.Cancel(ctx, msg.ThreadRoot()); err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}
	a.logger.Info().Str("thread_root_id", msg.ThreadRoot()).Msg("reservation cancelled by requester")
	return nil
}

// Accept confirms the request (auto or manual path) and persists it.
func (a *Agent) Accept(ctx context.Context, requestMsg *models.ThreadedMessage) error {
	req, err := requestMsg.RequestPayload()
	if err != nil {
		return err
	}

	t := req.Time
	duration := req.EffectiveDuration(a.cfg.AutoAccept.DefaultDuration())
	resp := &models.ReservationResponse{
		Status:   models.StatusConfirmed,
		Time:     &t,
		TZID:     req.TZID,
		Duration: &duration,
	}

	if err := a.sender.SendResponse(ctx, requestMsg, resp, a.cfg.SecretKey, a.cfg.Pubkey, requestMsg.SenderPubkey); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}

	if err := a.store.SaveConfirmed(ctx, requestMsg.ThreadRoot(), resp, req.PartySize); err != nil {
		// The confirmation already went out; the store catches up on the
		// next sync rather than failing the accepted reservation.
		a.logger.Error().Err(err).Str("thread_root_id", requestMsg.ThreadRoot()).Msg("failed to persist confirmed reservation")
	}

	a.notifyDecision(notify.Decision{
		Status:       models.StatusConfirmed,
		PartySize:    req.PartySize,
		Time:         req.Time,
		TZID:         req.TZID,
		ThreadRootID: requestMsg.ThreadRoot(),
	})
	return nil
}

// Decline sends a declined response carrying the given message.
func (a *Agent) Decline(ctx context.Context, requestMsg *models.ThreadedMessage, message string) error {
	req, err := requestMsg.RequestPayload()
	if err != nil {
		return err
	}

	resp := &models.ReservationResponse{
		Status:  models.StatusDeclined,
		Message: message,
	}
	if err := a.sender.SendResponse(ctx, requestMsg, resp, a.cfg.SecretKey, a.cfg.Pubkey, requestMsg.SenderPubkey); err != nil {
		return fmt.Errorf("send decline: %w", err)
	}

	a.notifyDecision(notify.Decision{
		Status:       models.StatusDeclined,
		Reason:       message,
		PartySize:    req.PartySize,
		Time:         req.Time,
		TZID:         req.TZID,
		ThreadRootID: requestMsg.ThreadRoot(),
	})
	return nil
}

func (a *Agent) notifyDecision(d notify.Decision) {
	go func() {
		// Errors are already logged by the notifier.
		_ = a.notifier.NotifyDecision(d)
	}()
}
