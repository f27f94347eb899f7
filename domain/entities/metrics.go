package entities

// Grade classifies a latency or efficiency value for display
type Grade string

const (
	GradeNone    Grade = ""
	GradeGood    Grade = "good"
	GradeWarning Grade = "warning"
	GradeError   Grade = "error"
)

// Metrics is the latest performance snapshot of a call.
// Latencies are in milliseconds as reported by the agent, AudioLength is in seconds.
type Metrics struct {
	STTTime           float64 `json:"stt_time"`
	STTUploadTime     float64 `json:"stt_upload_time"`
	STTProcessingTime float64 `json:"stt_processing_time"`
	LLMTime           float64 `json:"llm_time"`
	TTSTime           float64 `json:"tts_time"`
	TotalResponseTime float64 `json:"total_response_time"`
	EfficiencyRatio   float64 `json:"efficiency_ratio"`
	AudioLength       float64 `json:"audio_length"`
	AudioFormat       string  `json:"audio_format"`
	ResponseLength    int     `json:"response_length"`
	TurnCount         int     `json:"turn_count"`
	AudioChunks       int     `json:"audio_chunks"`
}

// ApplyReport overwrites the latency fields with a report from the agent.
// Absent values in the report read as zero; AudioLength is only replaced when reported.
func (m *Metrics) ApplyReport(r MetricsReport) {
	m.STTTime = r.STTTotalTime
	m.STTUploadTime = r.STTUploadTime
	m.STTProcessingTime = r.STTProcessingTime
	m.LLMTime = r.LLMTime
	m.TTSTime = r.TTSTime
	m.TotalResponseTime = m.STTTime + m.LLMTime + m.TTSTime
	m.EfficiencyRatio = r.EfficiencyRatio
	if r.AudioDuration != 0 {
		m.AudioLength = r.AudioDuration
	}
}

// MetricsGrades holds the display grade of the graded metrics
type MetricsGrades struct {
	STT             Grade `json:"stt"`
	LLM             Grade `json:"llm"`
	TotalResponse   Grade `json:"total_response"`
	EfficiencyRatio Grade `json:"efficiency_ratio"`
}

// Grades classifies the snapshot. Unset values get GradeNone.
func (m Metrics) Grades() MetricsGrades {
	return MetricsGrades{
		STT:             gradeBelow(m.STTTime, 2000, 5000),
		LLM:             gradeBelow(m.LLMTime, 1000, 2000),
		TotalResponse:   gradeBelow(m.TotalResponseTime, 4000, 8000),
		EfficiencyRatio: gradeAbove(m.EfficiencyRatio, 0.5, 0.2),
	}
}

func gradeBelow(v, good, warning float64) Grade {
	switch {
	case v == 0:
		return GradeNone
	case v < good:
		return GradeGood
	case v < warning:
		return GradeWarning
	default:
		return GradeError
	}
}

func gradeAbove(v, good, warning float64) Grade {
	switch {
	case v == 0:
		return GradeNone
	case v > good:
		return GradeGood
	case v > warning:
		return GradeWarning
	default:
		return GradeError
	}
}

// MetricsReport is the latency breakdown the agent attaches to a control message
type MetricsReport struct {
	STTTotalTime      float64 `json:"stt_total_time"`
	STTUploadTime     float64 `json:"stt_upload_time"`
	STTProcessingTime float64 `json:"stt_processing_time"`
	LLMTime           float64 `json:"llm_time"`
	TTSTime           float64 `json:"tts_time"`
	EfficiencyRatio   float64 `json:"efficiency_ratio"`
	AudioDuration     float64 `json:"audio_duration"`
}
