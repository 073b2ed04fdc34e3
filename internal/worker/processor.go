// Package worker plugs notification delivery into the asynq worker loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/andrescamacho/guiatrack/internal/notify"
	"github.com/andrescamacho/guiatrack/internal/queue"
)

// Processor consumes queued notification tasks and hands them to the mailer.
type Processor struct {
	mailer notify.Notifier
	log    *logrus.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(mailer notify.Notifier, log *logrus.Logger) *Processor {
	return &Processor{mailer: mailer, log: log}
}

// Handler registers the email job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.NotifyEmailTask, p.handleEmail)
	return mux
}

func (p *Processor) handleEmail(ctx context.Context, task *asynq.Task) error {
	var payload queue.EmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := p.mailer.Notify(ctx, payload.Email, payload.Subject, payload.Body); err != nil {
		p.log.WithError(err).WithField("email", payload.Email).Warn("delivery failed, will retry")
		return err
	}
	p.log.WithFields(logrus.Fields{
		"email":   payload.Email,
		"subject": payload.Subject,
	}).Info("notification delivered")
	return nil
}
