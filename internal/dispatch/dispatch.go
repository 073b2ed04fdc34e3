// Package dispatch runs a bounded in-process worker pool for notification
// delivery, used when no Redis queue is configured. Goroutines drain a buffered
// channel so mutations never wait on a slow mail relay.
package dispatch

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/andrescamacho/guiatrack/internal/notify"
)

type job struct {
	email   string
	subject string
	body    string
}

// Pool fans notification jobs out to a fixed set of workers. It implements
// notify.Notifier so the service cannot tell it apart from a direct mailer.
type Pool struct {
	delegate notify.Notifier
	log      *logrus.Logger
	queue    chan job
	workers  int
}

// NewPool builds a Pool with queue capacity tied to worker count.
func NewPool(delegate notify.Notifier, workers int, log *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		delegate: delegate,
		log:      log,
		queue:    make(chan job, workers*4),
		workers:  workers,
	}
}

// Start launches the worker goroutines; they exit when the context closes.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx)
	}
}

// Notify queues the message without blocking. When the buffer is full the
// message is dropped with a warning; notifications are best-effort by contract.
func (p *Pool) Notify(ctx context.Context, email, subject, body string) error {
	select {
	case p.queue <- job{email: email, subject: subject, body: body}:
		return nil
	default:
		p.log.WithField("email", email).Warn("notification queue full, dropping message")
		return nil
	}
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.queue:
			if err := p.delegate.Notify(ctx, j.email, j.subject, j.body); err != nil {
				p.log.WithError(err).WithField("email", j.email).Warn("notification delivery failed")
			}
		}
	}
}
