package models

import "time"

// User is the per-user document keyed by the Telegram user id.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	FirstName      string    `json:"firstName"`
	Balance        int64     `json:"balance"`
	DailyAdCount   int       `json:"dailyAdCount"`
	LastDailyReset time.Time `json:"lastDailyReset"`
	QuotaDay       string    `json:"-"`
	BonusCompleted bool      `json:"bonusCompleted"`
	ReferralCode   string    `json:"referralCode"`
	ReferredBy     string    `json:"referredBy,omitempty"`
	Stats          Stats     `json:"stats"`
	JoinDate       time.Time `json:"joinDate"`
}

type Stats struct {
	TotalEarned      int64 `json:"totalEarned"`
	TotalAdsWatched  int64 `json:"totalAdsWatched"`
	TotalReferrals   int64 `json:"totalReferrals"`
	ReferralEarnings int64 `json:"referralEarnings"`
}

// Delta is a set of atomic increments applied to a user document in one write.
type Delta struct {
	Balance          int64
	TotalEarned      int64
	TotalAdsWatched  int64
	TotalReferrals   int64
	ReferralEarnings int64
}

func (d Delta) IsZero() bool {
	return d == Delta{}
}

// DayKey is the local calendar date used for daily quota comparisons.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02")
}
