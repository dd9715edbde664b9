package mailer

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Async hands every message to a goroutine and returns right away.
// Delivery failures are logged, never returned.
type Async struct {
	next   Mailer
	logger *logrus.Logger
	wg     sync.WaitGroup
}

func NewAsync(next Mailer, logger *logrus.Logger) *Async {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Async{next: next, logger: logger}
}

func (a *Async) SendWelcome(ctx context.Context, to, name string) error {
	a.dispatch(ctx, "welcome", to, func(ctx context.Context) error {
		return a.next.SendWelcome(ctx, to, name)
	})
	return nil
}

func (a *Async) SendCancellation(ctx context.Context, to, name string) error {
	a.dispatch(ctx, "cancellation", to, func(ctx context.Context) error {
		return a.next.SendCancellation(ctx, to, name)
	})
	return nil
}

// Wait blocks until every dispatched message was handled.
func (a *Async) Wait() {
	a.wg.Wait()
}

func (a *Async) dispatch(ctx context.Context, kind, to string, send func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := send(ctx); err != nil {
			a.logger.WithFields(logrus.Fields{
				"kind":  kind,
				"to":    to,
				"error": err,
			}).Error("async mail delivery failed")
		}
	}()
}
