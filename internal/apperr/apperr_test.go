package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackflow/watchtower/internal/apperr"
)

func TestAsUnwrapsWrappedError(t *testing.T) {
	base := apperr.Validation("bad input")
	wrapped := fmt.Errorf("context: %w", base)

	ae, ok := apperr.As(wrapped)
	require.True(t, ok)
	require.Equal(t, 400, ae.Status)
	require.Equal(t, "invalid-input", ae.Reason)
}

func TestAsFalseForPlainError(t *testing.T) {
	_, ok := apperr.As(errors.New("not tagged"))
	require.False(t, ok)
}

func TestPolicyCarriesCallerStatus(t *testing.T) {
	err := apperr.Policy(409, "nonce-too-low", "nonce must increase")
	require.Equal(t, 409, err.Status)
	require.Equal(t, "nonce-too-low", err.Reason)
}

func TestSignatureInvalidIs401(t *testing.T) {
	err := apperr.SignatureInvalid("bad-signature")
	require.Equal(t, 401, err.Status)
}

func TestErrorMessageIncludesWrappedCause(t *testing.T) {
	cause := errors.New("boom")
	err := apperr.ValidationWrap("decode failed", cause)
	require.Contains(t, err.Error(), "decode failed")
	require.Contains(t, err.Error(), "boom")
	require.ErrorIs(t, err, cause)
}
