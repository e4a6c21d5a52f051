package failure

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnavailableWrapsBoth(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Unavailable("find verified user", cause)

	assert.ErrorIs(t, err, ErrInfrastructureUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrProvider)
	assert.Contains(t, err.Error(), "find verified user")
}

func TestNilPassesThrough(t *testing.T) {
	assert.NoError(t, Unavailable("op", nil))
	assert.NoError(t, Provider("op", nil))
}

func TestProviderWraps(t *testing.T) {
	err := Provider("exchange public token", errors.New("502"))
	assert.ErrorIs(t, err, ErrProvider)
	assert.NotErrorIs(t, err, ErrInfrastructureUnavailable)
}
