package services

import (
	"context"
	"time"

	"github.com/dcarleson/delivd/internal/logging"
)

// Notifier is the collaborator informed when a project becomes Available.
// Composition and delivery of the actual e-mail live outside this service;
// the lifecycle only guarantees one call per affected researcher.
type Notifier interface {
	ProjectReleased(ctx context.Context, email, projectID string, deadline time.Time) error
}

// LogNotifier records release notifications in the log. Used until a mail
// backend is wired in, and in tests.
type LogNotifier struct {
	log logging.Logger
}

func NewLogNotifier(log logging.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) ProjectReleased(ctx context.Context, email, projectID string, deadline time.Time) error {
	n.log.Info(ctx, "project release notification",
		"email", email, "project", projectID, "deadline", deadline)
	return nil
}
