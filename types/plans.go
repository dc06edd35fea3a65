package types

import (
	"fmt"
	"sort"
	"time"
)

const ServiceFreepik = "freepik"

// LegacyPlanDurations covers subscriptions whose plan record is gone.
var LegacyPlanDurations = map[string]int{
	"monthly": 30,
	"yearly":  365,
}

const LegacyDownloadLimit = 10

func DefaultPlans() []Plan {
	return []Plan{
		{
			Service:       ServiceFreepik,
			PlanID:        "monthly",
			Name:          "Monthly",
			Description:   "Freepik Monthly Subscription",
			Price:         1500,
			Currency:      "LKR",
			DurationDays:  30,
			DownloadLimit: 10,
			Active:        true,
		},
		{
			Service:       ServiceFreepik,
			PlanID:        "yearly",
			Name:          "Yearly",
			Description:   "Freepik Yearly Subscription",
			Price:         5800,
			Currency:      "LKR",
			DurationDays:  365,
			DownloadLimit: 10,
			Active:        true,
		},
	}
}

// ResolveDuration returns the subscription length in days for planID.
// plan may be nil when no active plan record exists.
func ResolveDuration(plan *Plan, planID string) (int, error) {
	if plan != nil && plan.DurationDays > 0 {
		return plan.DurationDays, nil
	}
	if days, ok := LegacyPlanDurations[planID]; ok {
		return days, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidPlan, planID)
}

// QuotaLimit returns the daily download limit granted by a subscription.
func QuotaLimit(sub *Subscription, plan *Plan) int {
	if sub == nil {
		return 0
	}
	if plan != nil {
		return plan.DownloadLimit
	}
	if _, ok := LegacyPlanDurations[sub.PlanID]; ok {
		return LegacyDownloadLimit
	}
	return 0
}

// PickActive selects the authoritative subscription: live at now, furthest
// end date first.
func PickActive(subs []Subscription, now time.Time) *Subscription {
	var best *Subscription
	for i := range subs {
		s := subs[i]
		if !s.Live(now) {
			continue
		}
		if best == nil || s.EndDate.After(best.EndDate) {
			best = &s
		}
	}
	return best
}

// SortSubscriptionsByEnd orders newest end date first.
func SortSubscriptionsByEnd(subs []Subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].EndDate.After(subs[j].EndDate)
	})
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextDay is the UTC midnight after t, when quotas roll over.
func NextDay(t time.Time) time.Time {
	return Day(t).AddDate(0, 0, 1)
}
