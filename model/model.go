package model

import (
	"time"
)

// Alert is one sent notification, kept as a write-only audit trail for
// the /history command. Monetary fields are stored pre-rounded as
// strings; the engine never reads these rows back.
type Alert struct {
	ID        uint  `gorm:"primaryKey"`
	UserID    int64 `gorm:"index"`
	ListingID string
	GPUModel  string
	GPUCount  int
	Price     string
	Coin      string
	Income    string
	Profit    string
	CreatedAt time.Time
}
