package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageKind distinguishes the two payload shapes carried by a ThreadedMessage.
type MessageKind string

const (
	KindRequest  MessageKind = "request"
	KindResponse MessageKind = "response"
)

// ReservationStatus is the outcome carried by a ReservationResponse.
type ReservationStatus string

const (
	StatusConfirmed ReservationStatus = "confirmed"
	StatusDeclined  ReservationStatus = "declined"
	StatusCancelled ReservationStatus = "cancelled"
)

// DefaultReservationDuration is assumed when a request or a confirmed
// reservation carries no explicit duration.
const DefaultReservationDuration = 90 * time.Minute

// ReservationRequest is the inbound payload of a request message.
// Field names are a wire contract; do not rename.
type ReservationRequest struct {
	PartySize int    `json:"party_size"`
	Time      int64  `json:"time"` // unix seconds
	TZID      string `json:"tzid"` // IANA timezone id
	Duration  *int64 `json:"duration,omitempty"` // seconds
}

// EffectiveDuration returns the request duration in seconds, falling back
// to fallbackSeconds when the request carries none.
func (r *ReservationRequest) EffectiveDuration(fallbackSeconds int64) int64 {
	if r.Duration != nil && *r.Duration > 0 {
		return *r.Duration
	}
	return fallbackSeconds
}

// ReservationResponse is the outbound payload of a response message.
// Time and TZID are set only when Status is confirmed.
type ReservationResponse struct {
	Status   ReservationStatus `json:"status"`
	Time     *int64            `json:"time,omitempty"`
	TZID     string            `json:"tzid,omitempty"`
	Duration *int64            `json:"duration,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// IsConfirmed reports whether the response confirms a reservation with a
// resolved start time.
func (r *ReservationResponse) IsConfirmed() bool {
	return r.Status == StatusConfirmed && r.Time != nil
}

// Interval returns the half-open occupancy interval [start, end) in unix
// seconds. Callers must have checked IsConfirmed first.
func (r *ReservationResponse) Interval(defaultDuration time.Duration) (start, end int64) {
	start = *r.Time
	d := int64(defaultDuration / time.Second)
	if r.Duration != nil && *r.Duration > 0 {
		d = *r.Duration
	}
	return start, start + d
}

// ThreadedMessage is the unit exchanged over the relay network before
// sealing. Payload holds a ReservationRequest or ReservationResponse
// depending on Kind.
type ThreadedMessage struct {
	ID           string          `json:"id"`
	Kind         MessageKind     `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	SenderPubkey string          `json:"sender_pubkey"`
	ThreadRootID string          `json:"thread_root_id,omitempty"`
}

// ThreadRoot returns the id of the request that started the conversation.
// A message without an explicit root is itself the root. Responses must
// always reference the original request id, never an intermediate response,
// so threads stay linear regardless of delivery order.
func (m *ThreadedMessage) ThreadRoot() string {
	if m.ThreadRootID != "" {
		return m.ThreadRootID
	}
	return m.ID
}

// RequestPayload decodes the payload as a ReservationRequest.
func (m *ThreadedMessage) RequestPayload() (*ReservationRequest, error) {
	if m.Kind != KindRequest {
		return nil, fmt.Errorf("message %s is not a request", m.ID)
	}
	var req ReservationRequest
	if err := json.Unmarshal(m.Payload, &req); err != nil {
		return nil, fmt.Errorf("decode request payload: %w", err)
	}
	return &req, nil
}

// ResponsePayload decodes the payload as a ReservationResponse.
func (m *ThreadedMessage) ResponsePayload() (*ReservationResponse, error) {
	if m.Kind != KindResponse {
		return nil, fmt.Errorf("message %s is not a response", m.ID)
	}
	var resp ReservationResponse
	if err := json.Unmarshal(m.Payload, &resp); err != nil {
		return nil, fmt.Errorf("decode response payload: %w", err)
	}
	return &resp, nil
}

// NewRequestMessage builds an unsigned request message.
func NewRequestMessage(id string, req *ReservationRequest, senderPubkey string) (*ThreadedMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request payload: %w", err)
	}
	return &ThreadedMessage{
		ID:           id,
		Kind:         KindRequest,
		Payload:      payload,
		SenderPubkey: senderPubkey,
	}, nil
}

// NewResponseMessage builds an unsigned response message threaded to rootID.
func NewResponseMessage(id string, resp *ReservationResponse, senderPubkey, rootID string) (*ThreadedMessage, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response payload: %w", err)
	}
	return &ThreadedMessage{
		ID:           id,
		Kind:         KindResponse,
		Payload:      payload,
		SenderPubkey: senderPubkey,
		ThreadRootID: rootID,
	}, nil
}

// Envelope is the sealed, transmittable wrapper around an unsigned message.
// Contents are opaque to relays; the outer metadata reveals neither the true
// sender nor the send time.
type Envelope struct {
	ID              string `json:"id"`
	RecipientPubkey string `json:"recipient_pubkey"`
	Ciphertext      []byte `json:"ciphertext"`
}

// OpeningHoursSpec describes one weekly opening window. Days holds
// two-letter weekday codes (mo, tu, we, th, fr, sa, su); StartTime and
// EndTime are "HH:MM" local times. StartTime after EndTime means the window
// wraps past midnight.
type OpeningHoursSpec struct {
	Days      []string `json:"days" yaml:"days"`
	StartTime string   `json:"start_time" yaml:"start_time"`
	EndTime   string   `json:"end_time" yaml:"end_time"`
}

// AutoAcceptConfig is the merchant-supplied policy configuration.
type AutoAcceptConfig struct {
	Enabled                     bool `json:"enabled" yaml:"enabled"`
	MinPartySize                int  `json:"min_party_size" yaml:"min_party_size"`
	MaxPartySize                int  `json:"max_party_size" yaml:"max_party_size"`
	CheckBusinessHours          bool `json:"check_business_hours" yaml:"check_business_hours"`
	CheckConflicts              bool `json:"check_conflicts" yaml:"check_conflicts"`
	MaxSimultaneousReservations int  `json:"max_simultaneous_reservations" yaml:"max_simultaneous_reservations"`
	DefaultDurationMinutes      int  `json:"default_duration_minutes" yaml:"default_duration_minutes"`
}

// DefaultDuration returns the configured fallback duration in seconds,
// falling back to DefaultReservationDuration when unset.
func (c *AutoAcceptConfig) DefaultDuration() int64 {
	if c.DefaultDurationMinutes > 0 {
		return int64(c.DefaultDurationMinutes) * 60
	}
	return int64(DefaultReservationDuration / time.Second)
}
