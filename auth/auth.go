// Package auth provides the engine's authorization oracle implementations.
// The engine treats proofs as opaque and delegates here; what a valid proof
// looks like is deployment-specific.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/susuprotocol/rosca/engine"
)

// Static accepts any proof whose actor matches the required principal. It is
// the verifier for tests and for dev mode, where callers are trusted.
type Static struct{}

func (Static) Verify(_ context.Context, proof engine.Proof, principal engine.Address) error {
	if proof.Actor != principal {
		return fmt.Errorf("proof actor %q does not match principal %q", proof.Actor, principal)
	}
	return nil
}

// Deny rejects everything. Useful for exercising authorization failures.
type Deny struct{}

func (Deny) Verify(context.Context, engine.Proof, engine.Address) error {
	return errors.New("denied")
}

// HMAC verifies proofs carrying an HMAC-SHA256 signature over the actor
// address under a shared secret. This is the daemon's default oracle: anyone
// holding the deployment secret can mint proofs for the principals they
// control.
type HMAC struct {
	secret []byte
}

func NewHMAC(secret []byte) (*HMAC, error) {
	if len(secret) == 0 {
		return nil, errors.New("secret is required")
	}
	return &HMAC{secret: secret}, nil
}

// Sign produces a proof for actor. Exposed so tests and local tooling can
// construct valid proofs.
func (h *HMAC) Sign(actor engine.Address) engine.Proof {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(actor))
	return engine.Proof{Actor: actor, Signature: mac.Sum(nil)}
}

func (h *HMAC) Verify(_ context.Context, proof engine.Proof, principal engine.Address) error {
	if proof.Actor != principal {
		return fmt.Errorf("proof actor %q does not match principal %q", proof.Actor, principal)
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(proof.Actor))
	if !hmac.Equal(mac.Sum(nil), proof.Signature) {
		return errors.New("invalid signature")
	}
	return nil
}
