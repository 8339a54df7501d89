package analytics

import "fmt"

const (
	InsightTopProductShare = "top_product_share"
	InsightLowCompletion   = "low_completion_rate"
	InsightHighCompletion  = "high_completion_rate"
	InsightSlowPreparation = "slow_preparation"
	InsightPendingBacklog  = "pending_backlog"
	InsightNoOrders        = "no_orders"
)

type rule struct {
	code  string
	check func(s *SalesData, o *OperationalData) (string, bool)
}

// Rules run in this order and each adds at most one insight. A rule whose
// section is unavailable is skipped.
var rules = []rule{
	{InsightTopProductShare, func(s *SalesData, _ *OperationalData) (string, bool) {
		if s == nil || len(s.TopProducts) == 0 || s.TopProducts[0].Percentage <= 40 {
			return "", false
		}
		top := s.TopProducts[0]
		return fmt.Sprintf("%s brings in %.1f%% of revenue. Consider promoting other menu items to spread demand.", top.Name, top.Percentage), true
	}},
	{InsightLowCompletion, func(_ *SalesData, o *OperationalData) (string, bool) {
		if o == nil || o.TotalOrders == 0 || o.CompletionRate >= 85 {
			return "", false
		}
		return fmt.Sprintf("Completion rate is %.1f%%, below the 85%% target. Review cancelled and stuck orders.", o.CompletionRate), true
	}},
	{InsightHighCompletion, func(_ *SalesData, o *OperationalData) (string, bool) {
		if o == nil || o.TotalOrders == 0 || o.CompletionRate <= 95 {
			return "", false
		}
		return fmt.Sprintf("Completion rate is %.1f%%. The kitchen is keeping up with demand.", o.CompletionRate), true
	}},
	{InsightSlowPreparation, func(_ *SalesData, o *OperationalData) (string, bool) {
		if o == nil || o.AveragePreparationTime <= 15 {
			return "", false
		}
		return fmt.Sprintf("Average preparation time is %.1f minutes. Consider adding kitchen staff at peak hours.", o.AveragePreparationTime), true
	}},
	{InsightPendingBacklog, func(_ *SalesData, o *OperationalData) (string, bool) {
		if o == nil || o.PendingOrders <= 10 {
			return "", false
		}
		return fmt.Sprintf("%d orders are still in progress. Prioritize the oldest tickets.", o.PendingOrders), true
	}},
	{InsightNoOrders, func(s *SalesData, _ *OperationalData) (string, bool) {
		if s == nil || s.TotalOrders > 0 {
			return "", false
		}
		return "No completed orders in the selected range.", true
	}},
}

// Insights evaluates the rules against whichever sections are available.
func Insights(sales *SalesData, ops *OperationalData) []Insight {
	out := []Insight{}
	for _, r := range rules {
		if msg, ok := r.check(sales, ops); ok {
			out = append(out, Insight{Code: r.code, Message: msg})
		}
	}
	return out
}
