package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Prediction is one submitter's guess for a symbol, keyed by (symbol, submitter)
type Prediction struct {
	Symbol         string          `gorm:"primaryKey;size:32" json:"symbol"`
	Submitter      string          `gorm:"primaryKey;size:128" json:"submitter"`
	BasePrice      decimal.Decimal `gorm:"type:decimal(20,6)" json:"base_price"`
	PredictedPrice decimal.Decimal `gorm:"type:decimal(20,6)" json:"predicted_price"`
	CreatedAt      time.Time       `gorm:"index" json:"created_at"`
	CreatedLabel   string          `gorm:"size:64" json:"created_label"` // exchange-local time with zone abbreviation
	Revision       int64           `gorm:"not null;default:1" json:"revision"`
}

func (Prediction) TableName() string { return "predictions" }

// Base returns the frozen reference price as a float
func (p Prediction) Base() float64 {
	return p.BasePrice.InexactFloat64()
}

// Predicted returns the predicted price as a float
func (p Prediction) Predicted() float64 {
	return p.PredictedPrice.InexactFloat64()
}

// MigratePredictionModels runs database migrations for prediction models
func MigratePredictionModels(db *gorm.DB) error {
	return db.AutoMigrate(&Prediction{})
}
