// Package messagequeue defines the queue port used for async schedule
// requests and run event fan-out.
package messagequeue

import "context"

// Handler processes one delivered message. A returned error triggers a
// redelivery; ctx carries the publisher's request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	Drain() error
	Close() error

	// IsConnected backs the health endpoint.
	IsConnected() bool
}

// Subjects used by CourseForge.
const (
	SubjectScheduleRequest = "schedules.request" // async generation requests
	SubjectScheduleResult  = "schedules.result"  // outcomes of async requests

	SubjectRunStarted  = "schedule.run.started"
	SubjectRunHandoff  = "schedule.run.handoff"
	SubjectRunToolCall = "schedule.run.toolcall"
	SubjectRunFinished = "schedule.run.finished"
)
