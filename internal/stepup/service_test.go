package stepup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/veriflow/veriflow/internal/failure"
	"github.com/veriflow/veriflow/internal/identity"
	"github.com/veriflow/veriflow/internal/logging"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) AuthCodeURL(state string) string {
	return "https://login.test/authorize?state=" + state
}

func (m *mockProvider) Exchange(ctx context.Context, code string) (Tokens, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(Tokens), args.Error(1)
}

func (m *mockProvider) Profile(ctx context.Context, accessToken string) (Profile, error) {
	args := m.Called(ctx, accessToken)
	return args.Get(0).(Profile), args.Error(1)
}

func newTestService(t *testing.T, provider Provider) (*Service, *identity.Service) {
	t.Helper()
	signer, err := NewStateSigner(testSecret, time.Minute)
	require.NoError(t, err)
	ids := identity.NewService(identity.NewMemoryRepository())
	return NewService(ids, provider, signer, logging.Discard()), ids
}

func seedVerified(t *testing.T, ids *identity.Service, device string) {
	t.Helper()
	_, err := ids.RecordVerifiedUser(context.Background(), identity.VerifiedUser{DeviceID: device, InstrumentKey: "card-a"})
	require.NoError(t, err)
}

func TestLinkingFlow(t *testing.T) {
	provider := &mockProvider{}
	svc, ids := newTestService(t, provider)
	seedVerified(t, ids, "dev-1")
	ctx := context.Background()

	start, err := svc.Initiate(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, start.AlreadyLinked)
	assert.Contains(t, start.AuthURL, start.State)

	provider.On("Exchange", mock.Anything, "auth-code").Return(Tokens{AccessToken: "at", RefreshToken: "rt"}, nil).Once()
	provider.On("Profile", mock.Anything, "at").Return(Profile{Subject: "user-42", DisplayName: "Ada", Email: "ada@example.com"}, nil).Once()

	linked, err := svc.Complete(ctx, "auth-code", start.State)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", linked.DeviceID)
	assert.Equal(t, "user-42", linked.Subject)
	provider.AssertExpectations(t)

	user, found, err := ids.FindVerifiedUser(ctx, "dev-1", "card-a")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, user.IsLinked())
	assert.Equal(t, "ada@example.com", user.Credential.Email)

	again, err := svc.Initiate(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, again.AlreadyLinked)

	status, err := svc.Status(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, status)
}

func TestCompleteRejectsBadState(t *testing.T) {
	provider := &mockProvider{}
	svc, _ := newTestService(t, provider)

	_, err := svc.Complete(context.Background(), "auth-code", "forged")
	assert.ErrorIs(t, err, ErrInvalidState)
	provider.AssertNotCalled(t, "Exchange", mock.Anything, mock.Anything)
}

func TestCompleteProviderFailure(t *testing.T) {
	provider := &mockProvider{}
	svc, ids := newTestService(t, provider)
	seedVerified(t, ids, "dev-1")
	ctx := context.Background()

	start, err := svc.Initiate(ctx, "dev-1")
	require.NoError(t, err)

	provider.On("Exchange", mock.Anything, "bad").Return(Tokens{}, errors.New("invalid_grant")).Once()
	_, err = svc.Complete(ctx, "bad", start.State)
	assert.ErrorIs(t, err, failure.ErrProvider)

	linked, err := svc.Status(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, linked)
}

func TestCompleteWithoutIdentityProof(t *testing.T) {
	svc, _ := newTestService(t, StaticProvider{})
	ctx := context.Background()

	start, err := svc.Initiate(ctx, "dev-unknown")
	require.NoError(t, err)

	_, err = svc.Complete(ctx, "code", start.State)
	assert.ErrorIs(t, err, identity.ErrNoVerifiedInstrument)
}

func TestPurgeRemovesLinks(t *testing.T) {
	svc, ids := newTestService(t, StaticProvider{})
	seedVerified(t, ids, "dev-1")
	ctx := context.Background()

	start, err := svc.Initiate(ctx, "dev-1")
	require.NoError(t, err)
	_, err = svc.Complete(ctx, "code", start.State)
	require.NoError(t, err)

	n, err := svc.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	linked, err := svc.Status(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, linked)
}

func TestInitiateAgainWhilePendingTokens(t *testing.T) {
	provider := &mockProvider{}
	svc, ids := newTestService(t, provider)
	seedVerified(t, ids, "dev-1")
	ctx := context.Background()
	require.NoError(t, ids.RecordLinkage(ctx, "dev-1", identity.Credential{Subject: "user-42"}))

	start, err := svc.Initiate(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, start.AlreadyLinked)
	assert.NotEmpty(t, start.AuthURL)

	status, err := svc.Status(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, status)
}

func TestSecondInstrumentOnLinkedDeviceIsLinked(t *testing.T) {
	provider := &mockProvider{}
	svc, ids := newTestService(t, provider)
	seedVerified(t, ids, "dev-1")
	ctx := context.Background()
	require.NoError(t, ids.RecordLinkage(ctx, "dev-1", identity.Credential{Subject: "user-42", AccessToken: "at"}))

	_, err := ids.RecordVerifiedUser(ctx, identity.VerifiedUser{DeviceID: "dev-1", InstrumentKey: "card-b"})
	require.NoError(t, err)

	start, err := svc.Initiate(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, start.AlreadyLinked)

	user, found, err := ids.FindVerifiedUser(ctx, "dev-1", "card-b")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, user.IsLinked())
}
