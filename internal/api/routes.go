package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/domain/entities"
	"github.com/satriahrh/voicecall/usecase"
)

// CallController is the call session surface exposed over HTTP
type CallController interface {
	Start(ctx context.Context) error
	End()
	ToggleRecording(ctx context.Context) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	ClearConversation()

	ID() string
	State() entities.CallState
	RecordingState() entities.RecordingState
	TurnCount() int
	Duration() time.Duration
	Metrics() entities.Metrics
}

// StatsReader exposes the usage counters
type StatsReader interface {
	Stats() entities.Stats
}

// InitRoutes initializes the local control API
func InitRoutes(e *echo.Echo, call CallController, stats StatsReader, gatherer prometheus.Gatherer, logger *zap.Logger) {
	h := &handlers{call: call, stats: stats, logger: logger}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "voicecall",
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := e.Group("/api/v1")

	v1.GET("/call", h.callStatus)
	v1.POST("/call/start", h.startCall)
	v1.POST("/call/end", h.endCall)

	v1.POST("/call/recording/toggle", h.recording(call.ToggleRecording))
	v1.POST("/call/recording/start", h.recording(call.StartRecording))
	v1.POST("/call/recording/stop", h.recording(call.StopRecording))

	v1.DELETE("/conversation", h.clearConversation)
	v1.GET("/stats", h.getStats)
}

type handlers struct {
	call   CallController
	stats  StatsReader
	logger *zap.Logger
}

func (h *handlers) status() CallStatusResponse {
	m := h.call.Metrics()
	return CallStatusResponse{
		ID:         h.call.ID(),
		State:      h.call.State(),
		Recording:  h.call.RecordingState(),
		TurnCount:  h.call.TurnCount(),
		DurationMs: h.call.Duration().Milliseconds(),
		Metrics:    m,
		Grades:     m.Grades(),
	}
}

func (h *handlers) callStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.status())
}

func (h *handlers) startCall(c echo.Context) error {
	err := h.call.Start(c.Request().Context())
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, h.status())
	case errors.Is(err, usecase.ErrCallInProgress):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "call_in_progress",
			Message: "A call is already in progress",
		})
	case errors.Is(err, usecase.ErrCallEnded):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "call_ended",
			Message: "The call was ended before it connected",
		})
	case errors.Is(err, entities.ErrPermissionDenied):
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "permission_denied",
			Message: "Microphone access denied",
		})
	default:
		h.logger.Error("Failed to start call", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "connection_failed",
			Message: err.Error(),
		})
	}
}

func (h *handlers) endCall(c echo.Context) error {
	h.call.End()
	return c.JSON(http.StatusOK, h.status())
}

func (h *handlers) recording(op func(ctx context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := op(c.Request().Context()); err != nil {
			code := "send_failed"
			if errors.Is(err, entities.ErrCapture) {
				code = "recording_error"
			}
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   code,
				Message: err.Error(),
			})
		}
		return c.JSON(http.StatusOK, h.status())
	}
}

func (h *handlers) clearConversation(c echo.Context) error {
	h.call.ClearConversation()
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) getStats(c echo.Context) error {
	s := h.stats.Stats()
	return c.JSON(http.StatusOK, StatsResponse{
		TotalCalls:          s.TotalCalls,
		ReviewsCollected:    s.ReviewsCollected,
		TotalCallDuration:   s.TotalCallDuration,
		AverageCallDuration: s.AverageCallDuration().Milliseconds(),
	})
}
