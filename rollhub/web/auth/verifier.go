package auth

import (
	"context"
	"errors"
)

var ErrInvalidCredential = errors.New("invalid credential")

// Identity is the result of verifying a bearer credential.
type Identity struct {
	UserID string
}

// Verifier turns an opaque bearer credential into an identity. The HTTP layer
// treats it as a black box so deployments can swap in their own issuer.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// StaticVerifier resolves credentials from a fixed token table. Development
// and test use only.
type StaticVerifier struct {
	tokens map[string]string
}

func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (Identity, error) {
	userID, ok := v.tokens[token]
	if !ok {
		return Identity{}, ErrInvalidCredential
	}
	return Identity{UserID: userID}, nil
}
