package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/satriahrh/voicecall/domain/entities"
)

// Metrics contains the Prometheus metrics of the voice client
type Metrics struct {
	// Transport metrics
	FramesReceived  *prometheus.CounterVec
	FramesSent      prometheus.Counter
	BytesSent       prometheus.Counter
	MalformedFrames prometheus.Counter

	// Call metrics
	CallsStarted  prometheus.Counter
	CallsFailed   *prometheus.CounterVec
	CallDuration  prometheus.Histogram
	ActiveCalls   prometheus.Gauge
	TurnsRendered *prometheus.CounterVec

	// Capture metrics
	RecordingsSent    prometheus.Counter
	RecordingsDropped *prometheus.CounterVec
	RecordingSize     prometheus.Histogram

	// Reassembly and playback metrics
	UnitsSealed      prometheus.Counter
	UnitSize         prometheus.Histogram
	FramesPerUnit    prometheus.Histogram
	QueueDepth       prometheus.Gauge
	UnitsPlayed      *prometheus.CounterVec
	PlaybackDuration prometheus.Histogram

	// Latency reported by the agent
	AgentLatency *prometheus.GaugeVec
}

// New creates and registers all metrics on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecall_frames_received_total",
			Help: "Total number of frames received from the agent by kind",
		}, []string{"kind"}),
		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "voicecall_frames_sent_total",
			Help: "Total number of binary frames sent to the agent",
		}),
		BytesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "voicecall_bytes_sent_total",
			Help: "Total number of audio bytes sent to the agent",
		}),
		MalformedFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "voicecall_malformed_control_frames_total",
			Help: "Total number of control frames that could not be parsed",
		}),

		CallsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "voicecall_calls_started_total",
			Help: "Total number of calls that reached the active state",
		}),
		CallsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecall_calls_failed_total",
			Help: "Total number of call attempts that failed by reason",
		}, []string{"reason"}),
		CallDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecall_call_duration_seconds",
			Help:    "Duration of completed calls",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		ActiveCalls: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicecall_active_calls",
			Help: "Number of calls currently active",
		}),
		TurnsRendered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecall_turns_total",
			Help: "Total number of conversation turns by role",
		}, []string{"role"}),

		RecordingsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "voicecall_recordings_sent_total",
			Help: "Total number of recordings sent to the agent",
		}),
		RecordingsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecall_recordings_dropped_total",
			Help: "Total number of recordings not sent by reason",
		}, []string{"reason"}),
		RecordingSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecall_recording_size_bytes",
			Help:    "Size of encoded recordings sent to the agent",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),

		UnitsSealed: f.NewCounter(prometheus.CounterOpts{
			Name: "voicecall_audio_units_sealed_total",
			Help: "Total number of audio units sealed by the reassembler",
		}),
		UnitSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecall_audio_unit_size_bytes",
			Help:    "Size of sealed audio units",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		FramesPerUnit: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecall_frames_per_audio_unit",
			Help:    "Number of media frames coalesced into one audio unit",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicecall_playback_queue_depth",
			Help: "Number of audio units waiting for playback",
		}),
		UnitsPlayed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecall_audio_units_played_total",
			Help: "Total number of audio units leaving the playback queue by outcome",
		}, []string{"outcome"}),
		PlaybackDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecall_playback_duration_seconds",
			Help:    "Wall time spent playing one audio unit",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),

		AgentLatency: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voicecall_agent_latency_milliseconds",
			Help: "Latest latency breakdown reported by the agent by stage",
		}, []string{"stage"}),
	}
}

// NewNop returns metrics registered on a private registry, for tests and tools
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveAgentMetrics publishes the latest agent snapshot
func (m *Metrics) ObserveAgentMetrics(s entities.Metrics) {
	m.AgentLatency.WithLabelValues("stt").Set(s.STTTime)
	m.AgentLatency.WithLabelValues("stt_upload").Set(s.STTUploadTime)
	m.AgentLatency.WithLabelValues("stt_processing").Set(s.STTProcessingTime)
	m.AgentLatency.WithLabelValues("llm").Set(s.LLMTime)
	m.AgentLatency.WithLabelValues("tts").Set(s.TTSTime)
	m.AgentLatency.WithLabelValues("total").Set(s.TotalResponseTime)
}
