package repositories

import "github.com/satriahrh/voicecall/domain/entities"

// UserInterface is the presentation layer driven by the call session
type UserInterface interface {
	NotifyUser(message string, severity entities.Severity)
	RenderTurn(role entities.Role, text string)
	ShowMetrics(metrics entities.Metrics)
	ShowCallState(state entities.CallState)
	ShowRecordingState(state entities.RecordingState)
	ClearConversation()
}
