// Package router demultiplexes the single CLPE stream callback across the
// per-camera consumers.
package router

import (
	"errors"
	"fmt"
	"sort"

	"github.com/banshee-data/clpe-bridge/internal/calibration"
	"github.com/banshee-data/clpe-bridge/internal/frame"
)

// ErrStopDelivery may be returned by a Consumer to ask the SDK to stop
// delivering frames on that camera's path.
var ErrStopDelivery = errors.New("stop delivery")

var (
	ErrInvalidCameraCount = errors.New("camera count must be positive")
	ErrCameraOutOfRange   = errors.New("camera id out of range")
	ErrNilConsumer        = errors.New("consumer is nil")
)

// Consumer receives the (image, camera info) pair for one camera. Publish
// runs on the SDK's delivery thread and must return promptly. The frame is
// owned by the consumer once Publish is called.
type Consumer interface {
	Publish(f *frame.Frame, info calibration.CameraInfo) error
}

// ConsumerFunc adapts a function to a Consumer.
type ConsumerFunc func(f *frame.Frame, info calibration.CameraInfo) error

func (fn ConsumerFunc) Publish(f *frame.Frame, info calibration.CameraInfo) error {
	return fn(f, info)
}

// Registry maps camera ids to consumers. It is built once before the stream
// starts and never modified, so the delivery thread reads it without locks.
type Registry struct {
	consumers []Consumer
}

// NewRegistry builds a Registry for cameraCount cameras. Every key of routes
// must lie in [0, cameraCount). Cameras without a route are accepted by the
// router but their frames are dropped.
func NewRegistry(cameraCount int, routes map[int]Consumer) (*Registry, error) {
	if cameraCount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCameraCount, cameraCount)
	}
	consumers := make([]Consumer, cameraCount)
	for id, c := range routes {
		if id < 0 || id >= cameraCount {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrCameraOutOfRange, id, cameraCount)
		}
		if c == nil {
			return nil, fmt.Errorf("%w: camera %d", ErrNilConsumer, id)
		}
		consumers[id] = c
	}
	return &Registry{consumers: consumers}, nil
}

// CameraCount is the number of camera ids the registry accepts.
func (r *Registry) CameraCount() int {
	return len(r.consumers)
}

// Lookup returns the consumer routed for id.
func (r *Registry) Lookup(id int) (Consumer, bool) {
	if id < 0 || id >= len(r.consumers) || r.consumers[id] == nil {
		return nil, false
	}
	return r.consumers[id], true
}

// IDs lists the routed camera ids in ascending order.
func (r *Registry) IDs() []int {
	var ids []int
	for id, c := range r.consumers {
		if c != nil {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
