package entities

import "time"

// FrameKind tags an inbound frame as control or media
type FrameKind int

const (
	FrameControl FrameKind = iota + 1
	FrameMedia
)

func (k FrameKind) String() string {
	switch k {
	case FrameControl:
		return "control"
	case FrameMedia:
		return "media"
	default:
		return "unknown"
	}
}

// InboundFrame is one message received from the agent.
// Control frames carry a JSON payload, media frames carry opaque audio bytes.
type InboundFrame struct {
	Kind       FrameKind
	Data       []byte
	ReceivedAt time.Time
}

// AudioUnit is a sealed, immutable span of concatenated media bytes.
type AudioUnit struct {
	Seq      uint64
	Frames   int
	SealedAt time.Time

	data []byte
}

// NewAudioUnit seals the given frames, in order, into a single unit.
// The frame slices are copied; later mutation of the inputs does not affect the unit.
func NewAudioUnit(seq uint64, frames [][]byte, sealedAt time.Time) AudioUnit {
	size := 0
	for _, f := range frames {
		size += len(f)
	}
	data := make([]byte, 0, size)
	for _, f := range frames {
		data = append(data, f...)
	}
	return AudioUnit{
		Seq:      seq,
		Frames:   len(frames),
		SealedAt: sealedAt,
		data:     data,
	}
}

// Bytes returns a copy of the unit payload
func (u AudioUnit) Bytes() []byte {
	out := make([]byte, len(u.data))
	copy(out, u.data)
	return out
}

// Len returns the payload size in bytes
func (u AudioUnit) Len() int {
	return len(u.data)
}

// IsEmpty reports whether the unit carries no audio
func (u AudioUnit) IsEmpty() bool {
	return len(u.data) == 0
}
