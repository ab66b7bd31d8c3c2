package models

// Source tags what a credit was earned for.
type Source string

const (
	SourceAdReward      Source = "ad_reward"
	SourceBonusTask     Source = "bonus_task"
	SourceReferralBonus Source = "referral_bonus"
	SourceCommission    Source = "commission"
)

// PaysCommission reports whether a credit from this source propagates a
// commission to the earner's referrer.
func (s Source) PaysCommission() bool {
	return s != SourceCommission && s != SourceReferralBonus
}

// Credit is a balance credit that has been acknowledged by the store.
type Credit struct {
	UserID string `json:"userId"`
	Amount int64  `json:"amount"`
	Source Source `json:"source"`
}
