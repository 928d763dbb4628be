package models

import "gorm.io/gorm"

// Referral links a referred user to the affiliate who brought them in.
// Commission on the referred user's payments accrues to the affiliate's
// credit ledger at RateBps (basis points of the paid amount).
type Referral struct {
	gorm.Model
	AffiliateUserID uint   `json:"affiliateUserId" gorm:"index;not null"`
	ReferredUserID  uint   `json:"referredUserId" gorm:"uniqueIndex;not null"`
	RateBps         int64  `json:"rateBps" gorm:"default:3000"`
	Status          string `json:"status" gorm:"type:varchar(20);default:'active'"`
}
