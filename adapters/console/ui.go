// Package console renders call events on a terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/domain/entities"
)

// Turn is one rendered line of the conversation
type Turn struct {
	Role entities.Role `json:"role"`
	Text string        `json:"text"`
	At   time.Time     `json:"at"`
}

// UI writes notifications, turns and metrics to out and keeps the transcript
type UI struct {
	out    io.Writer
	logger *zap.Logger

	mu        sync.Mutex
	turns     []Turn
	state     entities.CallState
	recording entities.RecordingState
	metrics   entities.Metrics
}

// NewUI creates a console UI
func NewUI(out io.Writer, logger *zap.Logger) *UI {
	return &UI{
		out:       out,
		logger:    logger,
		state:     entities.CallStateIdle,
		recording: entities.RecordingStateNotRecording,
	}
}

// NotifyUser implements repositories.UserInterface
func (u *UI) NotifyUser(message string, severity entities.Severity) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.logger.Debug("Notify user", zap.String("severity", string(severity)), zap.String("message", message))
	u.printf("%s %s\n", severityTag(severity), message)
}

func severityTag(s entities.Severity) string {
	switch s {
	case entities.SeveritySuccess:
		return "[ok]"
	case entities.SeverityError:
		return "[error]"
	default:
		return "[info]"
	}
}

// RenderTurn implements repositories.UserInterface
func (u *UI) RenderTurn(role entities.Role, text string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.turns = append(u.turns, Turn{Role: role, Text: text, At: time.Now()})
	label := "You"
	if role == entities.RoleAgent {
		label = "Agent"
	}
	u.printf("%s: %s\n", label, text)
}

// ShowMetrics implements repositories.UserInterface
func (u *UI) ShowMetrics(m entities.Metrics) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.metrics = m
	u.printf("%s\n", FormatMetrics(m))
}

// ShowCallState implements repositories.UserInterface
func (u *UI) ShowCallState(state entities.CallState) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state == state {
		return
	}
	u.state = state
	u.printf("* call %s\n", state)
}

// ShowRecordingState implements repositories.UserInterface
func (u *UI) ShowRecordingState(state entities.RecordingState) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.recording == state {
		return
	}
	u.recording = state
	if state == entities.RecordingStateRecording {
		u.printf("* recording... (type 'rec' again to send)\n")
	}
}

// ClearConversation implements repositories.UserInterface
func (u *UI) ClearConversation() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.turns = nil
	u.printf("Conversation cleared.\n")
}

// Transcript returns the rendered turns since the last clear
func (u *UI) Transcript() []Turn {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]Turn, len(u.turns))
	copy(out, u.turns)
	return out
}

func (u *UI) printf(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(u.out, format, args...); err != nil {
		u.logger.Warn("Failed to write to console", zap.Error(err))
	}
}

// FormatMetrics renders the graded latency breakdown on one line
func FormatMetrics(m entities.Metrics) string {
	g := m.Grades()
	parts := []string{
		fmt.Sprintf("stt %.0fms (%s)", m.STTTime, gradeLabel(g.STT)),
		fmt.Sprintf("llm %.0fms (%s)", m.LLMTime, gradeLabel(g.LLM)),
		fmt.Sprintf("tts %.0fms", m.TTSTime),
		fmt.Sprintf("total %.0fms (%s)", m.TotalResponseTime, gradeLabel(g.TotalResponse)),
		fmt.Sprintf("efficiency %.2f (%s)", m.EfficiencyRatio, gradeLabel(g.EfficiencyRatio)),
	}
	if m.AudioLength > 0 {
		parts = append(parts, fmt.Sprintf("audio %.2fs", m.AudioLength))
	}
	if m.TurnCount > 0 {
		parts = append(parts, fmt.Sprintf("turns %d", m.TurnCount))
	}
	return "  metrics: " + strings.Join(parts, " | ")
}

func gradeLabel(g entities.Grade) string {
	if g == entities.GradeNone {
		return "n/a"
	}
	return string(g)
}

// FormatStats renders the usage counters
func FormatStats(s entities.Stats) string {
	avg := s.AverageCallDuration().Round(time.Second)
	return fmt.Sprintf("calls %d | reviews %d | total %s | average %s",
		s.TotalCalls,
		s.ReviewsCollected,
		(time.Duration(s.TotalCallDuration) * time.Millisecond).Round(time.Second),
		avg)
}
