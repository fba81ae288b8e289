package rtp

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/sirupsen/logrus"
)

// FrameQueue is an unbounded FIFO of frames awaiting transmission.
//
// Any number of producers may Enqueue concurrently; the scheduler is the
// single consumer. Enqueue never blocks on the consumer and never drops.
type FrameQueue struct {
	mu     sync.Mutex
	frames deque.Deque
}

// NewFrameQueue creates an empty frame queue.
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{}
}

// Enqueue appends a frame to the tail of the queue.
// A nil frame is ignored.
func (q *FrameQueue) Enqueue(frame *Frame) {
	if frame == nil {
		return
	}

	q.mu.Lock()
	q.frames.PushBack(frame)
	q.mu.Unlock()
}

// TryDequeue removes the frame at the head of the queue.
//
// Returns:
//   - *Frame: The dequeued frame (nil when the queue is empty)
//   - bool: Whether a frame was dequeued
func (q *FrameQueue) TryDequeue() (*Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.frames.Len() == 0 {
		return nil, false
	}
	return q.frames.PopFront().(*Frame), true
}

// Len returns the number of pending frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.frames.Len()
}

// Clear drains the queue and disposes every pending frame.
//
// Returns:
//   - int: Number of frames removed
func (q *FrameQueue) Clear() int {
	q.mu.Lock()
	pending := make([]*Frame, 0, q.frames.Len())
	for q.frames.Len() > 0 {
		pending = append(pending, q.frames.PopFront().(*Frame))
	}
	q.mu.Unlock()

	// Dispose outside the lock so producers are not held up.
	for _, f := range pending {
		f.Dispose()
	}

	if len(pending) > 0 {
		logrus.WithFields(logrus.Fields{
			"function":       "FrameQueue.Clear",
			"cleared_frames": len(pending),
		}).Debug("Frame queue cleared")
	}

	return len(pending)
}
