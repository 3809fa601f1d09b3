package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classgate/classgate-api/pkg/jobs"
)

// Notification event types dispatched by the workflow.
const (
	NotifyRequestSubmitted  = "access_request.submitted"
	NotifyRequestApproved   = "access_request.approved"
	NotifyRequestRejected   = "access_request.rejected"
	NotifyClassApproved     = "class.approved"
	NotifyClassRejected     = "class.rejected"
	NotifyModeratorAssigned = "class.moderator_assigned"
)

// NotificationEvent is the payload delivered to the notifier.
type NotificationEvent struct {
	Type        string            `json:"type"`
	ClassID     string            `json:"class_id"`
	UserID      string            `json:"user_id,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
	DispatchKey string            `json:"dispatch_key"`
}

// Notifier delivers an event to its recipients. Delivery transport (mail,
// push, webhook) lives outside this core.
type Notifier interface {
	Notify(ctx context.Context, event NotificationEvent) error
}

// NotifierFunc allows plain functions as notifiers.
type NotifierFunc func(ctx context.Context, event NotificationEvent) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event NotificationEvent) error {
	return f(ctx, event)
}

// LogNotifier is the default delivery: a structured log line per event.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, event NotificationEvent) error {
	n.logger.Info("notification dispatched",
		zap.String("type", event.Type),
		zap.String("class_id", event.ClassID),
		zap.String("user_id", event.UserID))
	return nil
}

// NotificationService pushes workflow events onto an async queue so the
// synchronous decision path never blocks on delivery.
type NotificationService struct {
	queue   *jobs.Queue
	logger  *zap.Logger
	enabled bool
}

// NewNotificationService builds the service and its backing queue.
func NewNotificationService(notifier Notifier, cfg jobs.QueueConfig, enabled bool, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	queue := jobs.NewQueue("notifications", func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(NotificationEvent)
		if !ok {
			logger.Warn("dropping notification job with unexpected payload", zap.String("job_id", job.ID))
			return nil
		}
		return notifier.Notify(ctx, event)
	}, cfg)
	return &NotificationService{queue: queue, logger: logger, enabled: enabled}
}

// Start launches the queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the queue workers.
func (s *NotificationService) Stop() {
	if s.enabled {
		s.queue.Stop()
	}
}

// Dispatch enqueues an event. Dispatch failures are logged, never
// propagated: notification delivery must not fail a committed decision.
func (s *NotificationService) Dispatch(event NotificationEvent) {
	if !s.enabled {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.DispatchKey == "" {
		event.DispatchKey = uuid.NewString()
	}
	job := jobs.Job{ID: event.DispatchKey, Type: event.Type, Payload: event}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("type", event.Type), zap.Error(err))
	}
}
