package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"orderflow-be/internal/metrics"
	"orderflow-be/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetOrderRecords(ctx context.Context, rng order.Range, statuses []order.OrderStatus, staffID *int64) ([]OrderRecord, error) {
	args := m.Called(ctx, rng, statuses, staffID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]OrderRecord), args.Error(1)
}

func (m *MockRepository) GetFeedback(ctx context.Context, rng order.Range, staffID *int64) ([]FeedbackRecord, error) {
	args := m.Called(ctx, rng, staffID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]FeedbackRecord), args.Error(1)
}

type memCache struct {
	mu     sync.Mutex
	data   map[string]any
	getErr error
	setErr error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]any)}
}

func (c *memCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return false, c.getErr
	}
	v, ok := c.data[key]
	if !ok {
		return false, nil
	}
	switch d := dst.(type) {
	case *SalesData:
		*d = *(v.(*SalesData))
	case *OperationalData:
		*d = *(v.(*OperationalData))
	case *FeedbackData:
		*d = *(v.(*FeedbackData))
	}
	return true, nil
}

func (c *memCache) Set(_ context.Context, key string, v any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.data[key] = v
	return nil
}

var (
	from = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2024, 5, 31, 23, 59, 59, 0, time.UTC)
	rng  = order.Range{From: from, To: to}

	completedOnlyStatuses = []order.OrderStatus{order.StatusCompleted}
	noStaff               = (*int64)(nil)
)

func newTestService(repo Repository, cache Cache) *service {
	svc := NewService(repo, cache, time.Minute, time.UTC).(*service)
	svc.registry = metrics.NewRegistry()
	svc.now = func() time.Time { return to }
	return svc
}

func validRequest() Request {
	f, t := from, to
	return Request{From: &f, To: &t}
}

func TestService_RejectsMissingRange(t *testing.T) {
	svc := newTestService(new(MockRepository), nil)
	ctx := context.Background()
	f := from
	reversed := validRequest()
	reversed.From, reversed.To = reversed.To, reversed.From

	cases := map[string]Request{
		"No range":    {},
		"Missing end": {From: &f},
		"Reversed":    reversed,
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ComputeSalesData(ctx, req)
			assert.ErrorIs(t, err, ErrConfiguration)
			_, err = svc.ComputeOperationalData(ctx, req)
			assert.ErrorIs(t, err, ErrConfiguration)
			_, err = svc.ComputeFeedbackData(ctx, req)
			assert.ErrorIs(t, err, ErrConfiguration)
			_, err = svc.BuildReport(ctx, req)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestService_ComputeSalesData(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, nil)

	repo.On("GetOrderRecords", mock.Anything, rng, completedOnlyStatuses, noStaff).Return([]OrderRecord{
		completedAt(9, 100, line("Latte", "drinks", 2, 50)),
		completedAt(10, 200, line("Burger", "food", 4, 50)),
		completedAt(11, 300, line("Pizza", "food", 3, 100)),
	}, nil)

	data, err := svc.ComputeSalesData(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, 600.0, data.TotalRevenue)
	assert.Equal(t, 3, data.TotalOrders)
	assert.Equal(t, 200.0, data.AverageOrderValue)
	repo.AssertExpectations(t)
}

func TestService_CategoryAndStaffFilters(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, nil)
	staff := int64(4)

	repo.On("GetOrderRecords", mock.Anything, rng, completedOnlyStatuses, &staff).Return([]OrderRecord{
		completedAt(9, 130, line("Latte", "drinks", 1, 30), line("Burger", "food", 2, 50)),
	}, nil)

	req := validRequest()
	req.Category = "food"
	req.StaffID = &staff
	data, err := svc.ComputeSalesData(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 100.0, data.TotalRevenue)
	require.Len(t, data.TopProducts, 1)
	assert.Equal(t, "Burger", data.TopProducts[0].Name)
	assert.Equal(t, 100.0, data.TopProducts[0].Percentage)
}

func TestService_CachesSections(t *testing.T) {
	repo := new(MockRepository)
	cache := newMemCache()
	svc := newTestService(repo, cache)

	repo.On("GetFeedback", mock.Anything, rng, noStaff).Return([]FeedbackRecord{{Rating: 5}, {Rating: 3}}, nil).Once()

	first, err := svc.ComputeFeedbackData(context.Background(), validRequest())
	require.NoError(t, err)
	second, err := svc.ComputeFeedbackData(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 4.0, second.AverageRating)
	assert.Equal(t, uint64(1), svc.registry.Counter(metrics.ReportCacheHits).Load())
	repo.AssertExpectations(t)
}

func TestService_OpenRangeSkipsCache(t *testing.T) {
	repo := new(MockRepository)
	cache := newMemCache()
	svc := newTestService(repo, cache)
	svc.now = func() time.Time { return from.Add(time.Hour) }

	repo.On("GetOrderRecords", mock.Anything, rng, []order.OrderStatus(nil), noStaff).Return([]OrderRecord{
		{ID: 1, Status: order.StatusPending, CreatedAt: from},
	}, nil).Twice()

	for i := 0; i < 2; i++ {
		data, err := svc.ComputeOperationalData(context.Background(), validRequest())
		require.NoError(t, err)
		assert.Equal(t, 1, data.PendingOrders)
	}

	assert.Empty(t, cache.data)
	assert.Zero(t, svc.registry.Counter(metrics.ReportCacheHits).Load())
	repo.AssertExpectations(t)
}

func TestService_CacheFailuresAreIgnored(t *testing.T) {
	repo := new(MockRepository)
	cache := newMemCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")
	svc := newTestService(repo, cache)

	repo.On("GetFeedback", mock.Anything, rng, noStaff).Return([]FeedbackRecord{{Rating: 2}}, nil)

	data, err := svc.ComputeFeedbackData(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, data.Count)
}

func TestService_BuildReport(t *testing.T) {
	t.Run("All sections", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, nil)

		repo.On("GetOrderRecords", mock.Anything, rng, completedOnlyStatuses, noStaff).Return([]OrderRecord{
			completedAt(9, 100, line("Latte", "drinks", 2, 50)),
		}, nil)
		repo.On("GetOrderRecords", mock.Anything, rng, []order.OrderStatus(nil), noStaff).Return([]OrderRecord{
			completedAt(9, 100, line("Latte", "drinks", 2, 50)),
		}, nil)
		repo.On("GetFeedback", mock.Anything, rng, noStaff).Return([]FeedbackRecord{{Rating: 5}}, nil)

		report, err := svc.BuildReport(context.Background(), validRequest())
		require.NoError(t, err)
		assert.Equal(t, StateOK, report.Sales.State)
		assert.Equal(t, StateOK, report.Operational.State)
		assert.Equal(t, StateOK, report.Feedback.State)
		assert.Equal(t, from, report.From)
		assert.Equal(t, to, report.GeneratedAt)
		assert.Equal(t, []string{InsightTopProductShare, InsightHighCompletion}, codes(report.Insights))
		assert.Equal(t, uint64(1), svc.registry.Summary(metrics.ReportDuration).Snapshot().Count)
	})

	t.Run("One failing section", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, nil)

		repo.On("GetOrderRecords", mock.Anything, rng, completedOnlyStatuses, noStaff).
			Return(nil, order.ErrStoreUnavailable)
		repo.On("GetOrderRecords", mock.Anything, rng, []order.OrderStatus(nil), noStaff).Return([]OrderRecord{
			{Status: order.StatusCompleted, CreatedAt: from},
			{Status: order.StatusCancelled, CreatedAt: from},
		}, nil)
		repo.On("GetFeedback", mock.Anything, rng, noStaff).Return([]FeedbackRecord{}, nil)

		report, err := svc.BuildReport(context.Background(), validRequest())
		require.NoError(t, err)

		assert.Equal(t, StateError, report.Sales.State)
		assert.Nil(t, report.Sales.Data)
		assert.Contains(t, report.Sales.Error, "sales")

		require.Equal(t, StateOK, report.Operational.State)
		assert.Equal(t, 50.0, report.Operational.Data.CompletionRate)
		assert.Equal(t, StateOK, report.Feedback.State)

		// Only rules backed by the operational section fire.
		assert.Equal(t, []string{InsightLowCompletion}, codes(report.Insights))
	})
}

func TestSectionDefaults(t *testing.T) {
	s := Loading[SalesData]()
	assert.Equal(t, StateLoading, s.State)
	assert.Nil(t, s.Data)
}
