// Package seal is the default envelope sealing implementation: an anonymous
// NaCl box (curve25519 + xsalsa20-poly1305 with an ephemeral sender key), so
// only the recipient can open an envelope and the envelope itself carries no
// sender identity or timestamp. Deployments with their own sealing scheme
// substitute it through the messenger's Sealer/Opener interfaces.
package seal

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/nacl/box"

	"seatrelay/internal/models"
)

// GenerateKeypair returns a new hex-encoded curve25519 keypair.
func GenerateKeypair() (pubkey, secret string, err error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate keypair: %w", err)
	}
	return hex.EncodeToString(pub[:]), hex.EncodeToString(priv[:]), nil
}

func parseKey(s string) (*[32]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// Box seals and opens envelopes.
type Box struct{}

// Seal encrypts the message for recipientPubkey. The sender key is unused:
// the box is anonymous, sealed under an ephemeral key.
func (Box) Seal(msg *models.ThreadedMessage, _ string, recipientPubkey string) (*models.Envelope, error) {
	pub, err := parseKey(recipientPubkey)
	if err != nil {
		return nil, fmt.Errorf("parse recipient pubkey: %w", err)
	}
	plaintext, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	ciphertext, err := box.SealAnonymous(nil, plaintext, pub, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("seal envelope: %w", err)
	}
	return &models.Envelope{
		ID:              uuid.NewString(),
		RecipientPubkey: recipientPubkey,
		Ciphertext:      ciphertext,
	}, nil
}

// Open decrypts an envelope with the recipient's secret key.
func (Box) Open(env *models.Envelope, recipientKey string) (*models.ThreadedMessage, error) {
	priv, err := parseKey(recipientKey)
	if err != nil {
		return nil, fmt.Errorf("parse recipient key: %w", err)
	}
	pub, err := parseKey(env.RecipientPubkey)
	if err != nil {
		return nil, fmt.Errorf("parse envelope pubkey: %w", err)
	}
	plaintext, ok := box.OpenAnonymous(nil, env.Ciphertext, pub, priv)
	if !ok {
		return nil, fmt.Errorf("envelope %s: decryption failed", env.ID)
	}
	var msg models.ThreadedMessage
	if err := json.Unmarshal(plaintext, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}
