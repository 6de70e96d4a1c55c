// README: Notification gateway: non-blocking enqueue on the request path and
// a worker that renders and mails queued jobs.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"carpool/internal/modules/identity"
	"carpool/internal/observability"
	"carpool/internal/types"
)

const (
	pushTimeout = 3 * time.Second
	popWait     = 5 * time.Second
	errorPause  = time.Second
)

type Queue interface {
	Push(ctx context.Context, n Notification) error
	Pop(ctx context.Context, wait time.Duration) (Notification, error)
}

type Recipients interface {
	Get(ctx context.Context, id types.ID) (*identity.User, error)
}

type Service struct {
	queue      Queue
	recipients Recipients
	mailer     Mailer
	enabled    bool
	log        *zap.Logger
	inflight   sync.WaitGroup
}

func NewService(queue Queue, recipients Recipients, mailer Mailer, enabled bool, log *zap.Logger) *Service {
	return &Service{
		queue:      queue,
		recipients: recipients,
		mailer:     mailer,
		enabled:    enabled,
		log:        log.Named("notify"),
	}
}

// Notify enqueues n in the background and returns immediately. Failures are
// logged and counted, never reported to the caller.
func (s *Service) Notify(ctx context.Context, n Notification) {
	if !s.enabled || n.RecipientID == "" {
		return
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		if err := s.queue.Push(pushCtx, n); err != nil {
			observability.NotificationsFailed.WithLabelValues("enqueue").Inc()
			s.log.Warn("enqueue notification failed",
				zap.String("kind", string(n.Kind)),
				zap.String("recipient_id", string(n.RecipientID)),
				zap.Error(err),
			)
			return
		}
		observability.NotificationsEnqueued.Inc()
	}()
}

// Flush waits for pending enqueues to finish.
func (s *Service) Flush() {
	s.inflight.Wait()
}

// RunWorker delivers queued notifications until ctx is cancelled.
func (s *Service) RunWorker(ctx context.Context) {
	s.log.Info("notification worker started")
	defer s.log.Info("notification worker stopped")
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := s.queue.Pop(ctx, popWait)
		if errors.Is(err, ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("dequeue notification failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(errorPause):
			}
			continue
		}
		s.Deliver(ctx, n)
	}
}

// Deliver renders and mails one notification. A failed delivery is dropped.
func (s *Service) Deliver(ctx context.Context, n Notification) {
	logger := s.log.With(zap.String("kind", string(n.Kind)), zap.String("recipient_id", string(n.RecipientID)))
	u, err := s.recipients.Get(ctx, n.RecipientID)
	if err != nil {
		observability.NotificationsFailed.WithLabelValues("recipient").Inc()
		logger.Warn("resolve recipient failed", zap.Error(err))
		return
	}
	msg, err := Render(n, u.Name, u.Email)
	if err != nil {
		observability.NotificationsFailed.WithLabelValues("render").Inc()
		logger.Warn("render notification failed", zap.Error(err))
		return
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		observability.NotificationsFailed.WithLabelValues("send").Inc()
		logger.Warn("send notification failed", zap.Error(err))
		return
	}
	logger.Debug("notification delivered")
}
