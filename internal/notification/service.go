package notification

import (
	"context"

	"go.uber.org/zap"
)

// Service wraps the publisher with the flow-safety rule of this side-channel:
// failures are logged and swallowed, never surfaced to the onboarding flow.
type Service struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewService creates the notification service.
func NewService(publisher Publisher, logger *zap.Logger) *Service {
	return &Service{publisher: publisher, logger: logger.Named("Notification")}
}

// Emit publishes best-effort.
func (s *Service) Emit(ctx context.Context, key string, event any) {
	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.Warn("Notification publish failed; continuing",
			zap.String("key", key), zap.Error(err))
	}
}
