package entities

import "time"

// Stats are the usage counters persisted across runs
type Stats struct {
	TotalCalls        int   `json:"totalCalls" bson:"totalCalls"`
	ReviewsCollected  int   `json:"reviewsCollected" bson:"reviewsCollected"`
	TotalCallDuration int64 `json:"totalCallDuration" bson:"totalCallDuration"` // milliseconds
}

// StoredStats is a partially populated Stats record loaded from storage.
// Nil fields were not present and keep their in-memory value on merge.
type StoredStats struct {
	TotalCalls        *int   `json:"totalCalls,omitempty" bson:"totalCalls,omitempty"`
	ReviewsCollected  *int   `json:"reviewsCollected,omitempty" bson:"reviewsCollected,omitempty"`
	TotalCallDuration *int64 `json:"totalCallDuration,omitempty" bson:"totalCallDuration,omitempty"`
}

// Merge returns s with every field present in stored replacing the current value
func (s Stats) Merge(stored StoredStats) Stats {
	if stored.TotalCalls != nil {
		s.TotalCalls = *stored.TotalCalls
	}
	if stored.ReviewsCollected != nil {
		s.ReviewsCollected = *stored.ReviewsCollected
	}
	if stored.TotalCallDuration != nil {
		s.TotalCallDuration = *stored.TotalCallDuration
	}
	return s
}

// AverageCallDuration returns the mean call duration, or zero before the first call
func (s Stats) AverageCallDuration() time.Duration {
	if s.TotalCalls <= 0 {
		return 0
	}
	return time.Duration(s.TotalCallDuration/int64(s.TotalCalls)) * time.Millisecond
}

// StatEventType names a usage event
type StatEventType string

const (
	StatCallStarted     StatEventType = "call_started"
	StatReviewCollected StatEventType = "review_collected"
	StatCallEnded       StatEventType = "call_ended"
)

// StatEvent is a usage event reported by the call session
type StatEvent struct {
	Type     StatEventType
	Duration time.Duration
}

// Apply returns s updated by the event
func (s Stats) Apply(e StatEvent) Stats {
	switch e.Type {
	case StatCallStarted:
		s.TotalCalls++
	case StatReviewCollected:
		s.ReviewsCollected++
	case StatCallEnded:
		if e.Duration > 0 {
			s.TotalCallDuration += e.Duration.Milliseconds()
		}
	}
	return s
}
