package capture

import "errors"

// ErrQueueFull means the inbox is at capacity and the observation was not
// accepted. Callers may retry later or drop.
var ErrQueueFull = errors.New("capture: queue full")

// ErrStopped means the service no longer accepts observations.
var ErrStopped = errors.New("capture: service stopped")

// ErrNoPipeline means the service was built without a pipeline.
var ErrNoPipeline = errors.New("capture: pipeline is required")
