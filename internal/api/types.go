package api

import "github.com/satriahrh/voicecall/domain/entities"

// CallStatusResponse describes the current call
type CallStatusResponse struct {
	ID         string                  `json:"id,omitempty"`
	State      entities.CallState      `json:"state"`
	Recording  entities.RecordingState `json:"recording"`
	TurnCount  int                     `json:"turn_count"`
	DurationMs int64                   `json:"duration_ms"`
	Metrics    entities.Metrics        `json:"metrics"`
	Grades     entities.MetricsGrades  `json:"grades"`
}

// StatsResponse describes the persisted usage counters
type StatsResponse struct {
	TotalCalls          int   `json:"total_calls"`
	ReviewsCollected    int   `json:"reviews_collected"`
	TotalCallDuration   int64 `json:"total_call_duration_ms"`
	AverageCallDuration int64 `json:"average_call_duration_ms"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
