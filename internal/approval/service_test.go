package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow/veriflow/internal/failure"
	"github.com/veriflow/veriflow/internal/logging"
	"github.com/veriflow/veriflow/internal/notification"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
	err      error
}

func (n *recordingNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.err
}

func newTestService(t *testing.T, opts ...Option) (*Service, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewService(NewMemoryStore(), DefaultTTL, logging.Discard(), opts...), clock
}

func sampleInput() CreateInput {
	return CreateInput{
		DeviceID:      "dev-1",
		InstrumentKey: "card-a",
		Merchant:      "Corner Store",
		Amount:        decimal.RequireFromString("750.00"),
		Recipient:     "user-42",
	}
}

func TestCreateThenApproveRoundTrip(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)
	assert.NotEmpty(t, req.TransactionID)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, clock.Now().Add(DefaultTTL), req.ExpiresAt)

	report, err := svc.Status(ctx, req.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, report.Status)
	assert.False(t, report.Approved)

	clock.Advance(30 * time.Second)
	res, err := svc.Approve(ctx, req.TransactionID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyApproved)
	require.NotNil(t, res.Request.ApprovedAt)
	assert.Equal(t, clock.Now(), *res.Request.ApprovedAt)

	report, err = svc.Status(ctx, req.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, report.Status)
	assert.True(t, report.Approved)
}

func TestApproveIsIdempotentAndKeepsFirstTimestamp(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	first, err := svc.Approve(ctx, req.TransactionID)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	second, err := svc.Approve(ctx, req.TransactionID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyApproved)
	assert.Equal(t, *first.Request.ApprovedAt, *second.Request.ApprovedAt)
}

func TestApproveAfterExpiry(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	clock.Advance(DefaultTTL + time.Second)
	_, err = svc.Approve(ctx, req.TransactionID)
	assert.ErrorIs(t, err, ErrExpired)

	report, err := svc.Status(ctx, req.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, report.Status)
}

func TestApproveAtExactExpiryStillSucceeds(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	clock.Advance(DefaultTTL)
	_, err = svc.Approve(ctx, req.TransactionID)
	assert.NoError(t, err)
}

func TestApprovedRequestStaysApprovedPastExpiry(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.TransactionID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	report, err := svc.Status(ctx, req.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, report.Status)
}

func TestUnknownTransaction(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Approve(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	report, err := svc.Status(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, report.Status)
	assert.False(t, report.Approved)
}

func TestCancelExpiresPendingRequest(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, req.TransactionID))

	status, err := svc.Check(ctx, req.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, status)

	_, err = svc.Approve(ctx, req.TransactionID)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestCancelApprovedRequest(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.TransactionID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Cancel(ctx, req.TransactionID), ErrAlreadyApproved)
	assert.ErrorIs(t, svc.Cancel(ctx, "missing"), ErrNotFound)
}

func TestConcurrentApproveHasSingleWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	const workers = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		fresh  int
		stamps = make(map[time.Time]struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Approve(ctx, req.TransactionID)
			if err != nil {
				t.Errorf("approve: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if !res.AlreadyApproved {
				fresh++
			}
			stamps[*res.Request.ApprovedAt] = struct{}{}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Len(t, stamps, 1)
}

func TestCreateRetriesOnIDCollision(t *testing.T) {
	ids := []string{"tx-1", "tx-1", "tx-1", "tx-2"}
	var calls int
	gen := func() (string, error) {
		id := ids[calls]
		calls++
		return id, nil
	}
	svc, _ := newTestService(t, WithIDGenerator(gen))
	ctx := context.Background()

	first, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "tx-1", first.TransactionID)

	second, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "tx-2", second.TransactionID)
	assert.Equal(t, 4, calls)
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	var calls int
	gen := func() (string, error) {
		calls++
		return "same", nil
	}
	svc, _ := newTestService(t, WithIDGenerator(gen))
	ctx := context.Background()

	_, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	calls = 0
	_, err = svc.Create(ctx, sampleInput())
	assert.ErrorIs(t, err, failure.ErrInfrastructureUnavailable)
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, maxCreateAttempts, calls)
}

func TestCreatePushesApprovalMessage(t *testing.T) {
	notifier := &recordingNotifier{}
	svc, _ := newTestService(t, WithNotifier(notifier))

	req, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)

	require.Len(t, notifier.messages, 1)
	msg := notifier.messages[0]
	assert.Equal(t, notification.KindApprovalRequested, msg.Kind)
	assert.Equal(t, "user-42", msg.Destination)
	assert.Equal(t, req.TransactionID, msg.Reference)
	assert.Contains(t, msg.Body, "750.00")
	assert.Equal(t, req.ExpiresAt, msg.ExpiresAt)
}

func TestCreateSurvivesPushFailure(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("gateway down")}
	svc, _ := newTestService(t, WithNotifier(notifier))
	ctx := context.Background()

	req, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	_, err = svc.Approve(ctx, req.TransactionID)
	assert.NoError(t, err)
}

func TestPurgeExpiredHonoursRetention(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	old, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	fresh, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	n, err := svc.PurgeExpired(ctx, time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	status, err := svc.Check(ctx, old.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, status)

	status, err = svc.Check(ctx, fresh.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status)
}

type brokenStore struct{ Store }

func (brokenStore) Get(context.Context, string) (Request, error) {
	return Request{}, errors.New("connection refused")
}

func (brokenStore) Approve(context.Context, string, time.Time) (Request, bool, error) {
	return Request{}, false, errors.New("connection refused")
}

func TestStoreFailuresAreInfrastructureErrors(t *testing.T) {
	svc := NewService(brokenStore{Store: NewMemoryStore()}, DefaultTTL, logging.Discard())
	ctx := context.Background()

	_, err := svc.Status(ctx, "tx")
	assert.ErrorIs(t, err, failure.ErrInfrastructureUnavailable)

	_, err = svc.Approve(ctx, "tx")
	assert.ErrorIs(t, err, failure.ErrInfrastructureUnavailable)
}

func TestTerminalStatuses(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	for _, s := range []Status{StatusApproved, StatusExpired, StatusNotFound} {
		assert.True(t, s.IsTerminal(), s)
	}
}
