package domain

import (
	"time"

	"github.com/google/uuid"
)

// SignalType classifies a raw observation awaiting interpretation.
type SignalType string

const (
	SignalPriceMovement        SignalType = "price_movement"
	SignalVolumeSpike          SignalType = "volume_spike"
	SignalWhaleActivity        SignalType = "whale_activity"
	SignalNewsSentiment        SignalType = "news_sentiment"
	SignalArbitrageOpportunity SignalType = "arbitrage_opportunity"
	SignalPredictionResolution SignalType = "prediction_resolution"
	SignalUserRequest          SignalType = "user_request"
	SignalScheduledTask        SignalType = "scheduled_task"
)

func ValidSignalType(s string) bool {
	switch SignalType(s) {
	case SignalPriceMovement, SignalVolumeSpike, SignalWhaleActivity,
		SignalNewsSentiment, SignalArbitrageOpportunity, SignalPredictionResolution,
		SignalUserRequest, SignalScheduledTask:
		return true
	}
	return false
}

// Signal is a raw, unprocessed observation injected by an external perception
// source. Signals are consumed exactly once by the perceive phase; the
// Processed flag is monotonic and never reverts to false.
type Signal struct {
	ID        uuid.UUID  `json:"id"`
	Type      SignalType `json:"type"`
	Source    string     `json:"source"`
	Content   string     `json:"content"`
	Strength  float64    `json:"strength"`
	Timestamp time.Time  `json:"timestamp"`
	Processed bool       `json:"processed"`
}

// Event is a signal interpreted by the perceive phase, ready for deliberation.
type Event struct {
	ID                      uuid.UUID  `json:"id"`
	SignalID                uuid.UUID  `json:"signal_id"`
	Type                    SignalType `json:"type"`
	Content                 string     `json:"content"`
	Priority                float64    `json:"priority"`
	RequiresImmediateAction bool       `json:"requires_immediate_action"`
	Timestamp               time.Time  `json:"timestamp"`
}
