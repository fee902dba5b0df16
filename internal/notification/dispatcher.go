// Package notification fans an emergency alert out to contacts over SMS and email.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"emergency-service/internal/logging"
	"emergency-service/internal/models"
)

const (
	DefaultConcurrency    = 8
	DefaultAttemptTimeout = 5 * time.Second
)

// EmailBody carries both renderings of an email.
type EmailBody struct {
	Text string
	HTML string
}

// ProviderAdapter delivers a single rendered message. Implementations return the
// provider's message id on success.
type ProviderAdapter interface {
	SendSMS(ctx context.Context, phone, body string) (string, error)
	SendEmail(ctx context.Context, address, subject string, body EmailBody) (string, error)
}

// AttemptRecorder observes every finished attempt.
type AttemptRecorder interface {
	ObserveAttempt(channel models.Channel, success bool, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(models.Channel, bool, time.Duration) {}

// Result is the rollup of one batch.
type Result struct {
	Notified       int
	FailedContacts []string
	Attempts       []models.NotificationAttempt
}

// Dispatcher sends one batch at a time with bounded parallelism.
type Dispatcher struct {
	provider    ProviderAdapter
	templates   *Templates
	concurrency int
	timeout     time.Duration
	limiters    map[models.Channel]*rate.Limiter
	recorder    AttemptRecorder
	logger      *logging.Logger
}

type Option func(*Dispatcher)

func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithAttemptTimeout bounds a single provider call, rate limit wait included.
func WithAttemptTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithRateLimit caps sends on ch to perSecond. Zero or less disables the limit.
func WithRateLimit(ch models.Channel, perSecond float64) Option {
	return func(d *Dispatcher) {
		if perSecond <= 0 {
			delete(d.limiters, ch)
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiters[ch] = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithRecorder(r AttemptRecorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

func NewDispatcher(provider ProviderAdapter, templates *Templates, logger *logging.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		provider:    provider,
		templates:   templates,
		concurrency: DefaultConcurrency,
		timeout:     DefaultAttemptTimeout,
		limiters:    make(map[models.Channel]*rate.Limiter),
		recorder:    nopRecorder{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// slot is one (contact, channel) pair of a batch.
type slot struct {
	contact int
	channel models.Channel
}

// Dispatch attempts every configured channel of every contact and rolls the
// attempts up per contact: a contact is notified when any attempt succeeded.
// Provider failures are reported in the Result, never as an error. The error is
// reserved for a batch that could not be rendered at all.
func (d *Dispatcher) Dispatch(ctx context.Context, contacts []models.Contact, content Content) (Result, error) {
	rendered, err := d.templates.Render(content)
	if err != nil {
		return Result{}, fmt.Errorf("failed to render alert: %w", err)
	}

	var slots []slot
	for i, c := range contacts {
		for _, ch := range c.Channels() {
			slots = append(slots, slot{contact: i, channel: ch})
		}
	}

	// Each goroutine owns one index, so the list keeps slot order whatever the
	// completion order.
	attempts := make([]models.NotificationAttempt, len(slots))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, s := range slots {
		g.Go(func() error {
			attempts[i] = d.attempt(ctx, contacts[s.contact], s.channel, rendered)
			return nil
		})
	}
	_ = g.Wait()

	notified := make([]bool, len(contacts))
	for i, s := range slots {
		if attempts[i].Success {
			notified[s.contact] = true
		}
	}

	res := Result{FailedContacts: make([]string, 0), Attempts: attempts}
	for i, c := range contacts {
		if notified[i] {
			res.Notified++
			continue
		}
		if len(c.Channels()) == 0 {
			d.logger.Warnf("Contact %q has no contact method", c.Name)
		}
		res.FailedContacts = append(res.FailedContacts, c.Name)
	}
	return res, nil
}

func (d *Dispatcher) attempt(ctx context.Context, contact models.Contact, ch models.Channel, r Rendered) models.NotificationAttempt {
	start := time.Now()
	id, err := d.send(ctx, ch, contact.Destination(ch), r)
	a := models.NotificationAttempt{
		ContactName: contact.Name,
		Channel:     ch,
		Duration:    time.Since(start),
	}
	if err != nil {
		a.Error = err.Error()
		d.logger.Warnf("Failed to notify %s via %s: %v", contact.Name, ch, err)
	} else {
		a.Success = true
		a.ProviderMessageID = id
		d.logger.Infof("Notified %s via %s: message_id=%s", contact.Name, ch, id)
	}
	d.recorder.ObserveAttempt(ch, a.Success, a.Duration)
	return a
}

// send runs the provider call in its own goroutine so a provider that ignores
// its context still cannot hold the batch past the attempt timeout.
func (d *Dispatcher) send(ctx context.Context, ch models.Channel, dest string, r Rendered) (string, error) {
	if err := validateDestination(ch, dest); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if lim := d.limiters[ch]; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return "", fmt.Errorf("%s rate limit: %w", ch, err)
		}
	}

	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		var res result
		switch ch {
		case models.ChannelSMS:
			res.id, res.err = d.provider.SendSMS(ctx, dest, r.SMS)
		case models.ChannelEmail:
			res.id, res.err = d.provider.SendEmail(ctx, dest, r.Subject, EmailBody{Text: r.Text, HTML: r.HTML})
		}
		done <- res
	}()

	select {
	case res := <-done:
		return res.id, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s provider timed out after %s", ch, d.timeout)
		}
		return "", fmt.Errorf("%s attempt cancelled: %w", ch, ctx.Err())
	}
}
