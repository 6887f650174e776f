package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fund is a contribution of tokens toward a request. Read-only for this service.
type Fund struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Funder      string          `gorm:"type:varchar(64);not null" json:"funder"`
	AmountInWei decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"amount_in_wei"`
	Token       string          `gorm:"type:varchar(64);not null" json:"token"`
	RequestID   int64           `gorm:"not null;index" json:"request_id"`
	Timestamp   time.Time       `gorm:"column:time_stamp" json:"timestamp"`
}

func (Fund) TableName() string {
	return "fund"
}
