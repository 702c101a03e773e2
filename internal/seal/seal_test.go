package seal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatrelay/internal/models"
)

func TestSealOpenRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeypair()
	require.NoError(t, err)

	req := &models.ReservationRequest{PartySize: 4, Time: 1717441200, TZID: "America/Los_Angeles"}
	msg, err := models.NewRequestMessage("req-1", req, "sender-pk")
	require.NoError(t, err)

	env, err := Box{}.Seal(msg, "ignored-sender-key", pub)
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, pub, env.RecipientPubkey)

	opened, err := Box{}.Open(env, priv)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, opened.ID)
	assert.Equal(t, msg.Kind, opened.Kind)
	assert.Equal(t, msg.SenderPubkey, opened.SenderPubkey)
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	pub, _, err := GenerateKeypair()
	require.NoError(t, err)
	_, otherPriv, err := GenerateKeypair()
	require.NoError(t, err)

	msg, err := models.NewRequestMessage("req-1", &models.ReservationRequest{PartySize: 2}, "sender-pk")
	require.NoError(t, err)
	env, err := Box{}.Seal(msg, "", pub)
	require.NoError(t, err)

	_, err = Box{}.Open(env, otherPriv)
	assert.Error(t, err)
}

func TestSealProducesDistinctEnvelopes(t *testing.T) {
	pub, _, err := GenerateKeypair()
	require.NoError(t, err)

	msg, err := models.NewRequestMessage("req-1", &models.ReservationRequest{PartySize: 2}, "sender-pk")
	require.NoError(t, err)

	a, err := Box{}.Seal(msg, "", pub)
	require.NoError(t, err)
	b, err := Box{}.Seal(msg, "", pub)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext, "ephemeral keys randomize the ciphertext")
}

func TestParseKeyValidation(t *testing.T) {
	if _, err := parseKey("not-hex"); err == nil {
		t.Error("expected error for non-hex key")
	}
	if _, err := parseKey("abcd"); err == nil {
		t.Error("expected error for short key")
	}
}
