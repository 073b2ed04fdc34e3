// Package notify defines the outbound notification boundary. Delivery is
// always best-effort: a failed notification is logged and never fails or rolls
// back the mutation that triggered it.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/andrescamacho/guiatrack/internal/queue"
)

// Notifier dispatches a formatted message to a shipment owner.
type Notifier interface {
	Notify(ctx context.Context, email, subject, body string) error
}

// LogNotifier writes notifications to the structured log. It is the default
// for development and the delivery fallback when no SMTP relay is configured.
type LogNotifier struct {
	Log *logrus.Logger
}

// Notify logs the message.
func (n *LogNotifier) Notify(ctx context.Context, email, subject, body string) error {
	n.Log.WithFields(logrus.Fields{
		"email":   email,
		"subject": subject,
	}).Info(body)
	return nil
}

// SMTPNotifier delivers through a plain SMTP relay.
type SMTPNotifier struct {
	Addr string
	From string
	Auth smtp.Auth
}

// Notify sends the message via net/smtp.
func (n *SMTPNotifier) Notify(ctx context.Context, email, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + n.From,
		"To: " + email,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(n.Addr, n.Auth, n.From, []string{email}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// QueueNotifier defers delivery to the worker process through asynq. The API
// process only pays the cost of a Redis enqueue.
type QueueNotifier struct {
	Client *asynq.Client
}

// Notify enqueues the message for the worker.
func (n *QueueNotifier) Notify(ctx context.Context, email, subject, body string) error {
	return queue.EnqueueEmail(ctx, n.Client, queue.EmailPayload{
		Email:   email,
		Subject: subject,
		Body:    body,
	})
}
