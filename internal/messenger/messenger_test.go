package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatrelay/internal/models"
	"seatrelay/internal/relay"
)

// fakeSealer wraps the message as plain JSON; each envelope gets a fresh id.
type fakeSealer struct {
	mu     sync.Mutex
	sealed []*models.Envelope
}

func (f *fakeSealer) Seal(msg *models.ThreadedMessage, _ string, recipientPubkey string) (*models.Envelope, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	env := &models.Envelope{
		ID:              uuid.NewString(),
		RecipientPubkey: recipientPubkey,
		Ciphertext:      data,
	}
	f.mu.Lock()
	f.sealed = append(f.sealed, env)
	f.mu.Unlock()
	return env, nil
}

func (f *fakeSealer) openMessage(t *testing.T, env *models.Envelope) *models.ThreadedMessage {
	t.Helper()
	var msg models.ThreadedMessage
	require.NoError(t, json.Unmarshal(env.Ciphertext, &msg))
	return &msg
}

// routingPublisher fails publishes according to the envelope's recipient.
type routingPublisher struct {
	mu         sync.Mutex
	failFor    map[string]bool // recipient pubkey -> fail on all endpoints
	dispatched map[string]int  // recipient pubkey -> publish count
}

func newRoutingPublisher() *routingPublisher {
	return &routingPublisher{failFor: map[string]bool{}, dispatched: map[string]int{}}
}

func (p *routingPublisher) PublishOne(_ context.Context, env *models.Envelope, _ string) error {
	p.mu.Lock()
	p.dispatched[env.RecipientPubkey]++
	fail := p.failFor[env.RecipientPubkey]
	p.mu.Unlock()
	if fail {
		return errors.New("relay unavailable")
	}
	return nil
}

// recordingBilling signals every record on a channel so tests can wait for
// the detached notification.
type recordingBilling struct {
	calls chan [3]string
	err   error
}

func newRecordingBilling() *recordingBilling {
	return &recordingBilling{calls: make(chan [3]string, 4)}
}

func (b *recordingBilling) RecordReservation(_ context.Context, merchant, root, month string) error {
	b.calls <- [3]string{merchant, root, month}
	return b.err
}

const (
	merchantKey    = "merchant-secret"
	merchantPubkey = "merchant-pubkey"
	customerPubkey = "customer-pubkey"
)

func newTestMessenger(pub *routingPublisher, bill *recordingBilling) (*Messenger, *fakeSealer) {
	sealer := &fakeSealer{}
	pool := relay.NewPool(pub, []string{"r1", "r2"}, relay.PoolConfig{}, nil)
	return New(sealer, pool, bill, nil), sealer
}

func confirmedResponse(t *testing.T) *models.ReservationResponse {
	t.Helper()
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	ts := time.Date(2024, 6, 3, 14, 0, 0, 0, la).Unix()
	dur := int64(90 * 60)
	return &models.ReservationResponse{
		Status:   models.StatusConfirmed,
		Time:     &ts,
		TZID:     "America/Los_Angeles",
		Duration: &dur,
	}
}

func originalRequest(t *testing.T) *models.ThreadedMessage {
	t.Helper()
	msg, err := models.NewRequestMessage("req-1", &models.ReservationRequest{
		PartySize: 4,
		Time:      time.Now().Unix(),
		TZID:      "America/Los_Angeles",
	}, customerPubkey)
	require.NoError(t, err)
	return msg
}

func TestSendResponseSealsTwoDistinctEnvelopes(t *testing.T) {
	pub := newRoutingPublisher()
	bill := newRecordingBilling()
	m, sealer := newTestMessenger(pub, bill)

	err := m.SendResponse(context.Background(), originalRequest(t), confirmedResponse(t), merchantKey, merchantPubkey, customerPubkey)
	require.NoError(t, err)

	require.Len(t, sealer.sealed, 2)
	assert.NotEqual(t, sealer.sealed[0].ID, sealer.sealed[1].ID, "self-copy must be a distinct envelope")

	recipients := map[string]bool{}
	for _, env := range sealer.sealed {
		recipients[env.RecipientPubkey] = true
	}
	assert.True(t, recipients[customerPubkey], "one envelope goes to the counterparty")
	assert.True(t, recipients[merchantPubkey], "one envelope is the self-copy")

	// Both sealed copies carry the same unsigned message.
	first := sealer.openMessage(t, sealer.sealed[0])
	second := sealer.openMessage(t, sealer.sealed[1])
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.KindResponse, first.Kind)
}

func TestSendResponseThreadsToOriginalRequest(t *testing.T) {
	pub := newRoutingPublisher()
	m, sealer := newTestMessenger(pub, newRecordingBilling())

	// The original request is itself the thread root.
	root := originalRequest(t)
	require.NoError(t, m.SendResponse(context.Background(), root, confirmedResponse(t), merchantKey, merchantPubkey, customerPubkey))
	msg := sealer.openMessage(t, sealer.sealed[0])
	assert.Equal(t, "req-1", msg.ThreadRootID)

	// A follow-up that already carries a root must not fork the thread.
	followUp := originalRequest(t)
	followUp.ID = "req-2"
	followUp.ThreadRootID = "req-1"
	sealer.sealed = nil
	require.NoError(t, m.SendResponse(context.Background(), followUp, confirmedResponse(t), merchantKey, merchantPubkey, customerPubkey))
	msg = sealer.openMessage(t, sealer.sealed[0])
	assert.Equal(t, "req-1", msg.ThreadRootID, "root must come from the carried root id, not the message id")
}

func TestSendResponsePartialFailureIsSuccess(t *testing.T) {
	pub := newRoutingPublisher()
	// The self-copy fails on every relay; the counterparty envelope lands.
	pub.failFor[merchantPubkey] = true
	m, _ := newTestMessenger(pub, newRecordingBilling())

	err := m.SendResponse(context.Background(), originalRequest(t), confirmedResponse(t), merchantKey, merchantPubkey, customerPubkey)
	assert.NoError(t, err, "losing the self-copy is not a total failure")
}

func TestSendResponseTotalFailure(t *testing.T) {
	pub := newRoutingPublisher()
	pub.failFor[merchantPubkey] = true
	pub.failFor[customerPubkey] = true
	m, _ := newTestMessenger(pub, newRecordingBilling())

	err := m.SendResponse(context.Background(), originalRequest(t), confirmedResponse(t), merchantKey, merchantPubkey, customerPubkey)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestSendResponseBillingOnConfirmation(t *testing.T) {
	pub := newRoutingPublisher()
	bill := newRecordingBilling()
	m, _ := newTestMessenger(pub, bill)

	require.NoError(t, m.SendResponse(context.Background(), originalRequest(t), confirmedResponse(t), merchantKey, merchantPubkey, customerPubkey))

	select {
	case call := <-bill.calls:
		assert.Equal(t, merchantPubkey, call[0])
		assert.Equal(t, "req-1", call[1])
		assert.Equal(t, "2024-06", call[2])
	case <-time.After(2 * time.Second):
		t.Fatal("billing notification never fired")
	}
}

func TestSendResponseNoBillingOnDecline(t *testing.T) {
	pub := newRoutingPublisher()
	bill := newRecordingBilling()
	m, _ := newTestMessenger(pub, bill)

	decline := &models.ReservationResponse{Status: models.StatusDeclined, Message: "outside business hours"}
	require.NoError(t, m.SendResponse(context.Background(), originalRequest(t), decline, merchantKey, merchantPubkey, customerPubkey))

	select {
	case <-bill.calls:
		t.Fatal("declined responses must not be billed")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendResponseBillingFailureDoesNotPropagate(t *testing.T) {
	pub := newRoutingPublisher()
	bill := newRecordingBilling()
	bill.err = errors.New("billing down")
	m, _ := newTestMessenger(pub, bill)

	err := m.SendResponse(context.Background(), originalRequest(t), confirmedResponse(t), merchantKey, merchantPubkey, customerPubkey)
	assert.NoError(t, err)

	select {
	case <-bill.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("billing notification never attempted")
	}
}

func TestSendResponseConfirmedRequiresResolvedTime(t *testing.T) {
	m, sealer := newTestMessenger(newRoutingPublisher(), newRecordingBilling())

	missingTime := &models.ReservationResponse{Status: models.StatusConfirmed, TZID: "America/Los_Angeles"}
	err := m.SendResponse(context.Background(), originalRequest(t), missingTime, merchantKey, merchantPubkey, customerPubkey)
	assert.ErrorIs(t, err, ErrUnresolvedTime)

	ts := time.Now().Unix()
	missingTZ := &models.ReservationResponse{Status: models.StatusConfirmed, Time: &ts}
	err = m.SendResponse(context.Background(), originalRequest(t), missingTZ, merchantKey, merchantPubkey, customerPubkey)
	assert.ErrorIs(t, err, ErrUnresolvedTime)

	assert.Empty(t, sealer.sealed, "nothing is sealed when the response cannot be built")
}
