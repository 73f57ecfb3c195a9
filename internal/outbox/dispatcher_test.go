package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/rodela-order-api/internal/domain/coupon"
	"github.com/xenking/rodela-order-api/internal/domain/customer"
	"github.com/xenking/rodela-order-api/internal/domain/order"
)

type memOutbox struct {
	nextID   int64
	pending  []Message
	done     []int64
	failures []failure
}

type failure struct {
	id       int64
	attempts int64
	retryAt  time.Time
	reason   string
}

func (m *memOutbox) Enqueue(_ context.Context, topic string, payload []byte) error {
	m.nextID++
	m.pending = append(m.pending, Message{ID: m.nextID, Topic: topic, Payload: payload})
	return nil
}

func (m *memOutbox) Due(_ context.Context, limit int) ([]Message, error) {
	if len(m.pending) > limit {
		return m.pending[:limit], nil
	}
	out := m.pending
	m.pending = nil
	return out, nil
}

func (m *memOutbox) MarkDone(_ context.Context, id int64) error {
	m.done = append(m.done, id)
	return nil
}

func (m *memOutbox) MarkFailed(_ context.Context, id int64, attempts int64, retryAt time.Time, reason string) error {
	m.failures = append(m.failures, failure{id: id, attempts: attempts, retryAt: retryAt, reason: reason})
	return nil
}

func newTestDispatcher(t *testing.T, store Store) *Dispatcher {
	t.Helper()
	d := NewDispatcher(store, zaptest.NewLogger(t))
	d.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return d
}

func TestDispatcherMarksHandledMessageDone(t *testing.T) {
	store := &memOutbox{}
	require.NoError(t, store.Enqueue(context.Background(), "greeting", []byte(`{}`)))

	var handled int
	d := newTestDispatcher(t, store)
	d.Handle("greeting", func(context.Context, []byte) error {
		handled++
		return nil
	})

	require.NoError(t, d.drain(context.Background()))
	require.Equal(t, 1, handled)
	require.Equal(t, []int64{1}, store.done)
	require.Empty(t, store.failures)
}

func TestDispatcherReschedulesFailureWithBackoff(t *testing.T) {
	store := &memOutbox{}
	store.pending = []Message{{ID: 7, Topic: "greeting", Attempts: 2}}

	d := newTestDispatcher(t, store)
	d.Handle("greeting", func(context.Context, []byte) error {
		return errors.New("downstream unavailable")
	})

	require.NoError(t, d.drain(context.Background()))
	require.Empty(t, store.done)
	require.Len(t, store.failures, 1)

	f := store.failures[0]
	require.Equal(t, int64(7), f.id)
	require.Equal(t, int64(3), f.attempts)
	// Third attempt backs off base*2^2 = 20s.
	require.Equal(t, d.now().Add(20*time.Second), f.retryAt)
	require.Equal(t, "downstream unavailable", f.reason)
}

func TestDispatcherParksMessageAfterMaxAttempts(t *testing.T) {
	store := &memOutbox{}
	store.pending = []Message{{ID: 9, Topic: "greeting", Attempts: maxAttempts - 1}}

	d := newTestDispatcher(t, store)
	d.Handle("greeting", func(context.Context, []byte) error {
		return errors.New("still broken")
	})

	require.NoError(t, d.drain(context.Background()))
	require.Empty(t, store.done)
	require.Len(t, store.failures, 1)
	require.Equal(t, int64(maxAttempts), store.failures[0].attempts)
	require.Equal(t, farFuture, store.failures[0].retryAt)
}

func TestDispatcherDropsPermanentFailure(t *testing.T) {
	store := &memOutbox{}
	require.NoError(t, store.Enqueue(context.Background(), "greeting", []byte(`{}`)))

	d := newTestDispatcher(t, store)
	d.Handle("greeting", func(context.Context, []byte) error {
		return Permanent(errors.New("malformed payload"))
	})

	require.NoError(t, d.drain(context.Background()))
	require.Equal(t, []int64{1}, store.done)
	require.Empty(t, store.failures)
}

func TestDispatcherDropsUnroutableTopic(t *testing.T) {
	store := &memOutbox{}
	require.NoError(t, store.Enqueue(context.Background(), "unknown.topic", []byte(`{}`)))

	d := newTestDispatcher(t, store)
	require.NoError(t, d.drain(context.Background()))
	require.Equal(t, []int64{1}, store.done)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	tests := []struct {
		attempts int64
		want     time.Duration
	}{
		{attempts: 1, want: 5 * time.Second},
		{attempts: 2, want: 10 * time.Second},
		{attempts: 3, want: 20 * time.Second},
		{attempts: 7, want: 320 * time.Second},
		{attempts: 8, want: 10 * time.Minute},
		{attempts: 20, want: 10 * time.Minute},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, backoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestRelayEnqueuesCouponAndCustomer(t *testing.T) {
	store := &memOutbox{}
	relay := NewRelay(store)

	o := &order.Order{
		ID:           "ORD-1",
		CustomerName: "Rahim Uddin",
		Phone:        "01712345678",
		Email:        "rahim@example.com",
		Address:      "House 12, Dhanmondi, Dhaka",
		Amount:       decimal.NewFromInt(1450),
		CouponCode:   "SAVE20",
		CreatedAt:    time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
	}
	require.NoError(t, relay.OrderCommitted(context.Background(), o))
	require.Len(t, store.pending, 2)
	require.Equal(t, TopicCouponRedeem, store.pending[0].Topic)
	require.Equal(t, TopicCustomerRecord, store.pending[1].Topic)

	redeem, err := DecodeCouponRedeem(store.pending[0].Payload)
	require.NoError(t, err)
	require.Equal(t, CouponRedeem{Code: "SAVE20", Phone: "01712345678"}, redeem)

	snapshot, err := DecodeOrderSnapshot(store.pending[1].Payload)
	require.NoError(t, err)
	require.Equal(t, "01712345678", snapshot.Phone)
	require.Equal(t, "Rahim Uddin", snapshot.Name)
	require.True(t, snapshot.Amount.Equal(decimal.NewFromInt(1450)))
	require.True(t, snapshot.Date.Equal(o.CreatedAt))
}

func TestRelaySkipsCouponWhenNoneApplied(t *testing.T) {
	store := &memOutbox{}
	relay := NewRelay(store)

	o := &order.Order{
		ID:        "ORD-2",
		Phone:     "01898765432",
		Amount:    decimal.NewFromInt(500),
		CreatedAt: time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, relay.OrderCommitted(context.Background(), o))
	require.Len(t, store.pending, 1)
	require.Equal(t, TopicCustomerRecord, store.pending[0].Topic)
}

type stubCouponRepo struct {
	incremented []string
	incErr      error
}

func (s *stubCouponRepo) FindByCode(context.Context, string) (*coupon.Coupon, error) {
	return nil, coupon.ErrInvalidCoupon
}

func (s *stubCouponRepo) IncrementUsed(_ context.Context, code string) error {
	if s.incErr != nil {
		return s.incErr
	}
	s.incremented = append(s.incremented, code)
	return nil
}

func TestCouponRedeemHandler(t *testing.T) {
	payload := encodeCouponRedeem(CouponRedeem{Code: "EID10", Phone: "01712345678"})

	t.Run("increments usage", func(t *testing.T) {
		repo := &stubCouponRepo{}
		require.NoError(t, CouponRedeemHandler(repo)(context.Background(), payload))
		require.Equal(t, []string{"EID10"}, repo.incremented)
	})

	t.Run("exhausted limit is not retried", func(t *testing.T) {
		repo := &stubCouponRepo{incErr: coupon.ErrUsageLimitReached}
		err := CouponRedeemHandler(repo)(context.Background(), payload)

		var perm *permanentError
		require.ErrorAs(t, err, &perm)
	})

	t.Run("transient store error is retried", func(t *testing.T) {
		repo := &stubCouponRepo{incErr: errors.New("connection reset")}
		err := CouponRedeemHandler(repo)(context.Background(), payload)

		require.Error(t, err)
		var perm *permanentError
		require.False(t, errors.As(err, &perm))
	})
}

type stubCustomerRepo struct {
	byPhone map[string]*customer.Customer
}

func (s *stubCustomerRepo) GetByPhone(_ context.Context, phone string) (*customer.Customer, error) {
	c, ok := s.byPhone[phone]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return c, nil
}

func (s *stubCustomerRepo) List(context.Context) ([]customer.Customer, error) { return nil, nil }

func (s *stubCustomerRepo) Upsert(_ context.Context, c *customer.Customer) error {
	if s.byPhone == nil {
		s.byPhone = make(map[string]*customer.Customer)
	}
	cp := *c
	s.byPhone[c.Phone] = &cp
	return nil
}

func TestCustomerRecordHandlerFeedsAggregator(t *testing.T) {
	repo := &stubCustomerRepo{}
	handler := CustomerRecordHandler(customer.NewAggregator(repo))

	snapshot := customer.OrderSnapshot{
		Name:   "Karim",
		Phone:  "01712345678",
		Amount: decimal.NewFromInt(990),
		Date:   time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, handler(context.Background(), encodeOrderSnapshot(snapshot)))

	c, err := repo.GetByPhone(context.Background(), "01712345678")
	require.NoError(t, err)
	require.Equal(t, int64(1), c.TotalOrders)
	require.True(t, c.TotalSpent.Equal(decimal.NewFromInt(990)))
}
