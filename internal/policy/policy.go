package policy

import (
	"seatrelay/internal/conflict"
	"seatrelay/internal/hours"
	"seatrelay/internal/models"
)

// Rejection reasons, surfaced verbatim in declined responses.
const (
	ReasonNotARequest     = "not a request"
	ReasonDisabled        = "auto-acceptance disabled"
	ReasonPartySize       = "party size out of range"
	ReasonOutsideHours    = "outside business hours"
	ReasonTooManyOverlaps = "too many simultaneous reservations"
)

// Decision is the outcome of evaluating a request against the merchant's
// auto-accept policy. Reason is empty when Accept is true.
type Decision struct {
	Accept bool
	Reason string
}

// input carries everything a gate may consult. The request pointer is nil
// until the type gate has decoded the payload.
type input struct {
	msg       *models.ThreadedMessage
	req       *models.ReservationRequest
	config    *models.AutoAcceptConfig
	confirmed []models.ReservationResponse
	hours     []models.OpeningHoursSpec
}

// gate is one ordered rule: check returns true to pass, and reason is the
// rejection surfaced when it does not.
type gate struct {
	reason string
	check  func(*input) bool
}

// gates run strictly in declaration order and short-circuit on the first
// failure. The type gate must stay first (no other gate may touch the
// payload before it) and the enablement gate second, so that disabling
// auto-accept always wins deterministically.
var gates = []gate{
	{ReasonNotARequest, func(in *input) bool {
		if in.msg.Kind != models.KindRequest {
			return false
		}
		req, err := in.msg.RequestPayload()
		if err != nil {
			return false
		}
		in.req = req
		return true
	}},
	{ReasonDisabled, func(in *input) bool {
		return in.config.Enabled
	}},
	{ReasonPartySize, func(in *input) bool {
		return in.req.PartySize >= in.config.MinPartySize && in.req.PartySize <= in.config.MaxPartySize
	}},
	{ReasonOutsideHours, func(in *input) bool {
		if !in.config.CheckBusinessHours {
			return true
		}
		// Absence of a schedule never blocks acceptance on its own.
		if len(in.hours) == 0 {
			return true
		}
		return hours.IsOpen(in.req.Time, in.req.TZID, in.hours)
	}},
	{ReasonTooManyOverlaps, func(in *input) bool {
		if !in.config.CheckConflicts {
			return true
		}
		duration := in.req.EffectiveDuration(in.config.DefaultDuration())
		return !conflict.HasConflict(
			in.req.Time, duration,
			in.confirmed,
			in.config.MaxSimultaneousReservations,
			in.config.DefaultDuration(),
		)
	}},
}

// Evaluate runs the merchant's auto-accept pipeline over an inbound message.
// openingHours may be nil when the merchant profile declares no schedule.
func Evaluate(msg *models.ThreadedMessage, config *models.AutoAcceptConfig, confirmed []models.ReservationResponse, openingHours []models.OpeningHoursSpec) Decision {
	in := &input{
		msg:       msg,
		config:    config,
		confirmed: confirmed,
		hours:     openingHours,
	}
	for _, g := range gates {
		if !g.check(in) {
			return Decision{Accept: false, Reason: g.reason}
		}
	}
	return Decision{Accept: true}
}
