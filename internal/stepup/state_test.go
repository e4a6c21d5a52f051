package stepup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-state"

func TestStateRoundTrip(t *testing.T) {
	signer, err := NewStateSigner(testSecret, time.Minute)
	require.NoError(t, err)

	state, err := signer.Sign("dev-1")
	require.NoError(t, err)

	device, err := signer.Verify(state)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", device)
}

func TestStateExpires(t *testing.T) {
	signer, err := NewStateSigner(testSecret, time.Minute)
	require.NoError(t, err)
	issued := time.Now()
	signer.now = func() time.Time { return issued }

	state, err := signer.Sign("dev-1")
	require.NoError(t, err)

	signer.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = signer.Verify(state)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateRejectsForeignSecret(t *testing.T) {
	a, err := NewStateSigner(testSecret, time.Minute)
	require.NoError(t, err)
	b, err := NewStateSigner("another-secret-of-length", time.Minute)
	require.NoError(t, err)

	state, err := a.Sign("dev-1")
	require.NoError(t, err)

	_, err = b.Verify(state)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = a.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateSecretTooShort(t *testing.T) {
	_, err := NewStateSigner("short", time.Minute)
	assert.Error(t, err)
}
