// Package entitlement decides how many more palettes a user may generate.
//
// Compute is a pure function of the user's lifetime and current-month
// generation counts, credit balance and subscription. The first matching
// rule wins:
//
//  1. entitling subscription on an unlimited plan: unlimited
//  2. entitling subscription on a plan of N per month: N - monthly
//  3. positive credit balance C: C
//  4. otherwise the free tier: allowance - lifetime
//
// Remaining is never clamped, so a negative value means the user is over the
// limit, for example after a plan downgrade.
package entitlement

import (
	"time"

	"github.com/dmitrijs2005/palette/internal/common"
	"github.com/dmitrijs2005/palette/internal/server/models"
)

// Source names the accounting window a generation is charged to.
type Source string

const (
	SourceUnlimited    Source = "unlimited"
	SourceSubscription Source = "subscription"
	SourceCredits      Source = "credits"
	SourceFree         Source = "free"
)

// Unlimited is the sentinel reported as Remaining for unlimited plans.
const Unlimited = common.UnlimitedGenerations

// FreeAllowance is the number of lifetime generations on the free tier.
const FreeAllowance int64 = 1

// SubscriptionInfo is what the billing mirror knows about the user's plan.
// PlanKnown is false when the price id does not map to a configured plan.
type SubscriptionInfo struct {
	Found     bool
	Status    string
	PlanID    string
	PlanKnown bool
	Limit     int64
}

// Inputs are the counts the decision is made from.
type Inputs struct {
	Lifetime     int64
	Monthly      int64
	Credits      int64
	Subscription SubscriptionInfo
}

// Status is the computed entitlement.
type Status struct {
	TotalGenerations     int64  `json:"totalGenerations"`
	MonthlyGenerations   int64  `json:"monthlyGenerations"`
	Credits              int64  `json:"credits"`
	RemainingGenerations int64  `json:"remainingGenerations"`
	HasSubscription      bool   `json:"hasSubscription"`
	SubscriptionStatus   string `json:"subscriptionStatus,omitempty"`
	IsUnlimited          bool   `json:"isUnlimited"`
	PlanID               string `json:"planId,omitempty"`
	Source               Source `json:"source"`

	max int64
}

// Allowed reports whether one more generation may be attempted.
func (s Status) Allowed() bool {
	return s.IsUnlimited || s.RemainingGenerations > 0
}

// Quota is the limit the writer re-checks under the user's lock.
type Quota struct {
	Source    Source
	Max       int64
	Unlimited bool
}

// Quota returns the writer input for the rule that produced s. Max is the
// monthly plan limit, the free allowance or the credit balance.
func (s Status) Quota() Quota {
	return Quota{Source: s.Source, Max: s.max, Unlimited: s.IsUnlimited}
}

// IsEntitling reports whether a subscription in this status grants its
// plan's limit. Unpaid and past-due subscriptions still do.
func IsEntitling(status string) bool {
	switch status {
	case models.SubscriptionActive, models.SubscriptionTrialing,
		models.SubscriptionPastDue, models.SubscriptionUnpaid:
		return true
	}
	return false
}

// MonthStart returns the first instant of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Calculator computes entitlements with a configurable free allowance.
type Calculator struct {
	FreeAllowance int64
}

// Compute applies the rules with the default free allowance.
func Compute(in Inputs) Status {
	return Calculator{FreeAllowance: FreeAllowance}.Compute(in)
}

func (c Calculator) Compute(in Inputs) Status {
	st := Status{
		TotalGenerations:   in.Lifetime,
		MonthlyGenerations: in.Monthly,
		Credits:            in.Credits,
	}
	sub := in.Subscription
	if sub.Found {
		st.SubscriptionStatus = sub.Status
	}
	entitled := sub.Found && sub.PlanKnown && IsEntitling(sub.Status)

	switch {
	case entitled && sub.Limit == Unlimited:
		st.HasSubscription = true
		st.IsUnlimited = true
		st.PlanID = sub.PlanID
		st.RemainingGenerations = Unlimited
		st.max = Unlimited
		st.Source = SourceUnlimited
	case entitled:
		st.HasSubscription = true
		st.PlanID = sub.PlanID
		st.RemainingGenerations = sub.Limit - in.Monthly
		st.max = sub.Limit
		st.Source = SourceSubscription
	case in.Credits > 0:
		st.RemainingGenerations = in.Credits
		st.max = in.Credits
		st.Source = SourceCredits
	default:
		st.RemainingGenerations = c.FreeAllowance - in.Lifetime
		st.max = c.FreeAllowance
		st.Source = SourceFree
	}
	return st
}
