// Sensor boundary: the host side of a depth camera running a Topology
package device

import (
	"context"
)

// Info identifies an opened device session
type Info struct {
	ID       string
	Name     string
	Topology string
}

// Device is a running depth camera. Output queues deliver frames and
// measurements to the host; input queues carry configuration to the device.
type Device interface {
	// OutputQueue opens (or returns the already opened) host queue for a stream
	OutputQueue(name string, maxSize int, blocking bool) (*Queue, error)
	// InputQueue returns the queue feeding a device input stream
	InputQueue(name string) (*Queue, error)
	Info() Info
	Close() error
}

// ConfigSender pushes a spatial calculator configuration to the device.
// Delivery is fire-and-forget: the result appears on the spatial output
// queue one or more frames later.
type ConfigSender interface {
	Send(ctx context.Context, cfg *SpatialConfig) error
}

// ConfigInput adapts an input Queue to ConfigSender
type ConfigInput struct {
	Queue *Queue
}

func (c ConfigInput) Send(ctx context.Context, cfg *SpatialConfig) error {
	return c.Queue.Send(ctx, cfg)
}
