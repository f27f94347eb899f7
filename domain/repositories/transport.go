package repositories

import (
	"context"

	"github.com/satriahrh/voicecall/domain/entities"
)

// Transport is an open duplex channel to the agent
type Transport interface {
	IsOpen() bool
	SendBinary(data []byte) error
	// Frames delivers inbound frames in arrival order and is closed when the channel ends.
	Frames() <-chan entities.InboundFrame
	// Done is closed once the inbound side has ended.
	Done() <-chan struct{}
	// Err reports why the frame stream ended; nil for a normal close.
	Err() error
	Close() error
}

// TransportDialer opens transports to the agent endpoint
type TransportDialer interface {
	Dial(ctx context.Context) (Transport, error)
}
