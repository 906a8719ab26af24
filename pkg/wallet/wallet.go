// Package wallet handles participant identities and message signatures.
// An identity is the hex-encoded ed25519 public key of the participant's
// wallet; signatures cover the canonical signing content built by the
// thread codec.
package wallet

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrInvalidSignature = errors.New("signature verification failed")

// Verifier checks that content was signed by the wallet behind a sender
// identity.
type Verifier interface {
	// Verify returns nil if signature is a valid signature by sender
	// over content. signature is base64-encoded.
	Verify(sender string, content []byte, signature string) error
}

// Ed25519Verifier verifies signatures against the sender identity
// interpreted as a hex-encoded ed25519 public key.
type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(sender string, content []byte, signature string) error {
	pub, err := hex.DecodeString(sender)
	if err != nil {
		return fmt.Errorf("decode sender identity: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("sender identity must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), content, sig) {
		return ErrInvalidSignature
	}
	return nil
}

var _ Verifier = Ed25519Verifier{}

// Signer produces signatures matching Ed25519Verifier. Used by tests and
// client tooling; the service itself never holds participant keys.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner generates a fresh wallet keypair.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// Address returns the sender identity for this wallet.
func (s *Signer) Address() string {
	return hex.EncodeToString(s.pub)
}

// Sign returns the base64-encoded signature over content.
func (s *Signer) Sign(content []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.priv, content))
}
