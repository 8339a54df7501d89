package analytics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"orderflow-be/internal/logger"
	"orderflow-be/internal/metrics"
	"orderflow-be/internal/order"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Service interface {
	ComputeSalesData(ctx context.Context, req Request) (*SalesData, error)
	ComputeOperationalData(ctx context.Context, req Request) (*OperationalData, error)
	ComputeFeedbackData(ctx context.Context, req Request) (*FeedbackData, error)

	// BuildReport fetches the three sections concurrently. A failing
	// section is reported in place and never fails the others.
	BuildReport(ctx context.Context, req Request) (*Report, error)
}

type service struct {
	repo     Repository
	cache    Cache
	ttl      time.Duration
	loc      *time.Location
	validate *validator.Validate
	registry *metrics.Registry
	now      func() time.Time
}

func NewService(repo Repository, cache Cache, ttl time.Duration, loc *time.Location) Service {
	if cache == nil {
		cache = NopCache{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		repo:     repo,
		cache:    cache,
		ttl:      ttl,
		loc:      loc,
		validate: validator.New(),
		registry: metrics.Default,
		now:      time.Now,
	}
}

func (s *service) check(req Request) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: date range is required", ErrConfiguration)
	}
	if req.From.After(*req.To) {
		return fmt.Errorf("%w: from is after to", ErrConfiguration)
	}
	return nil
}

func cacheKey(section string, req Request) string {
	staff := "all"
	if req.StaffID != nil {
		staff = strconv.FormatInt(*req.StaffID, 10)
	}
	return fmt.Sprintf("analytics:%s:%d:%d:%s:%s",
		section, req.From.Unix(), req.To.Unix(), strings.ToLower(req.Category), staff)
}

// cached serves a section from the cache, computing and storing it on a
// miss. Cache failures are logged and otherwise ignored. Ranges that have not
// ended yet include live counts such as pending orders and are always
// computed fresh.
func cached[T any](ctx context.Context, s *service, section string, req Request, compute func() (*T, error)) (*T, error) {
	if req.To.After(s.now()) {
		return compute()
	}

	key := cacheKey(section, req)
	log := logger.FromCtx(ctx).With(zap.String("layer", "service"), zap.String("cache_key", key))

	var hit T
	found, err := s.cache.Get(ctx, key, &hit)
	switch {
	case err != nil:
		log.Warn("report cache read failed", zap.Error(err))
	case found:
		s.registry.Counter(metrics.ReportCacheHits).Inc()
		return &hit, nil
	}

	v, err := compute()
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, v, s.ttl); err != nil {
		log.Warn("report cache write failed", zap.Error(err))
	}
	return v, nil
}

func (s *service) ComputeSalesData(ctx context.Context, req Request) (*SalesData, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return cached(ctx, s, "sales", req, func() (*SalesData, error) {
		records, err := s.repo.GetOrderRecords(ctx, req.Range(), []order.OrderStatus{order.StatusCompleted}, req.StaffID)
		if err != nil {
			return nil, fmt.Errorf("sales: %w", err)
		}
		data := ComputeSales(ApplyFilters(records, req.Category), s.loc)
		return &data, nil
	})
}

func (s *service) ComputeOperationalData(ctx context.Context, req Request) (*OperationalData, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return cached(ctx, s, "operational", req, func() (*OperationalData, error) {
		records, err := s.repo.GetOrderRecords(ctx, req.Range(), nil, req.StaffID)
		if err != nil {
			return nil, fmt.Errorf("operational: %w", err)
		}
		data := ComputeOperational(ApplyFilters(records, req.Category), s.loc)
		return &data, nil
	})
}

func (s *service) ComputeFeedbackData(ctx context.Context, req Request) (*FeedbackData, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return cached(ctx, s, "feedback", req, func() (*FeedbackData, error) {
		records, err := s.repo.GetFeedback(ctx, req.Range(), req.StaffID)
		if err != nil {
			return nil, fmt.Errorf("feedback: %w", err)
		}
		data := ComputeFeedback(records)
		return &data, nil
	})
}

func (s *service) BuildReport(ctx context.Context, req Request) (*Report, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "BuildReport"),
	)
	timer := metrics.StartTimer()

	report := &Report{
		From:        *req.From,
		To:          *req.To,
		Category:    req.Category,
		StaffID:     req.StaffID,
		Sales:       Loading[SalesData](),
		Operational: Loading[OperationalData](),
		Feedback:    Loading[FeedbackData](),
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		data, err := s.ComputeSalesData(ctx, req)
		if err != nil {
			log.Warn("report section failed", zap.String("section", "sales"), zap.Error(err))
		}
		report.Sales = sectionOf(data, err)
	}()
	go func() {
		defer wg.Done()
		data, err := s.ComputeOperationalData(ctx, req)
		if err != nil {
			log.Warn("report section failed", zap.String("section", "operational"), zap.Error(err))
		}
		report.Operational = sectionOf(data, err)
	}()
	go func() {
		defer wg.Done()
		data, err := s.ComputeFeedbackData(ctx, req)
		if err != nil {
			log.Warn("report section failed", zap.String("section", "feedback"), zap.Error(err))
		}
		report.Feedback = sectionOf(data, err)
	}()
	wg.Wait()

	report.Insights = Insights(report.Sales.Data, report.Operational.Data)
	report.GeneratedAt = s.now()
	s.registry.Summary(metrics.ReportDuration).Observe(timer.Duration())
	return report, nil
}
