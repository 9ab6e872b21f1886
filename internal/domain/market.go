package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Market is a tracked market with its last two observed prices.
type Market struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ChangePercent returns the percent move from the previous observation.
// Zero when no previous price is known.
func (m Market) ChangePercent() decimal.Decimal {
	if m.PreviousPrice.IsZero() {
		return decimal.Zero
	}
	return m.Price.Sub(m.PreviousPrice).Div(m.PreviousPrice).Mul(decimal.NewFromInt(100))
}

// Position is a tracked holding.
type Position struct {
	ID           uuid.UUID       `json:"id"`
	Symbol       string          `json:"symbol"`
	Size         decimal.Decimal `json:"size"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	OpenedAt     time.Time       `json:"opened_at"`
}

// UnrealizedPnL returns (current - entry) * size.
func (p Position) UnrealizedPnL() decimal.Decimal {
	return p.CurrentPrice.Sub(p.EntryPrice).Mul(p.Size)
}

// Prediction is a tracked forecast whose resolution feeds the Brier
// calibration score.
type Prediction struct {
	ID         uuid.UUID  `json:"id"`
	Claim      string     `json:"claim"`
	Confidence float64    `json:"confidence"`
	CreatedAt  time.Time  `json:"created_at"`
	Resolved   bool       `json:"resolved"`
	Outcome    *bool      `json:"outcome,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
