package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/sentinel/internal/workerpool"
)

const (
	defaultSMSWorkers     = 4
	defaultChannelTimeout = 15 * time.Second
	defaultSubject        = "Critical security alert"
)

// Config wires a Dispatcher to its channels.
type Config struct {
	Recipients RecipientSource
	Email      EmailSender
	Push       PushSender
	SMS        SMSSender

	SMSWorkers     int
	SMSQueueDepth  int
	ChannelTimeout time.Duration
	OpsRecipients  []string
	Subject        string

	Recorder ResultRecorder
	Logger   *slog.Logger
}

// Dispatcher fans a critical alert out to email, push and SMS.
type Dispatcher struct {
	recipients RecipientSource
	email      EmailSender
	push       PushSender
	sms        SMSSender
	smsPool    *workerpool.Pool[string, struct{}]

	ops     atomic.Pointer[[]string]
	timeout atomic.Int64
	subject string

	recorder ResultRecorder
	log      *slog.Logger
}

// New creates a Dispatcher and starts its SMS worker pool. Call Close to stop it.
func New(ctx context.Context, cfg Config) *Dispatcher {
	if cfg.SMSWorkers <= 0 {
		cfg.SMSWorkers = defaultSMSWorkers
	}
	if cfg.SMSQueueDepth <= 0 {
		cfg.SMSQueueDepth = cfg.SMSWorkers * 10
	}
	if cfg.Subject == "" {
		cfg.Subject = defaultSubject
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dispatcher{
		recipients: cfg.Recipients,
		email:      cfg.Email,
		push:       cfg.Push,
		sms:        cfg.SMS,
		subject:    cfg.Subject,
		recorder:   cfg.Recorder,
		log:        cfg.Logger,
	}
	d.SetOpsRecipients(cfg.OpsRecipients)
	d.SetChannelTimeout(cfg.ChannelTimeout)

	d.smsPool = workerpool.New[string, struct{}](ctx, cfg.SMSWorkers, cfg.SMSQueueDepth,
		func(_ context.Context, msg string) (_ struct{}, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrChannelPanic, r)
				}
			}()
			return struct{}{}, d.sms.SendBlocking(msg)
		},
	)
	return d
}

// SetOpsRecipients replaces the fixed operational recipients added to every email.
func (d *Dispatcher) SetOpsRecipients(addrs []string) {
	cp := append([]string(nil), addrs...)
	d.ops.Store(&cp)
}

// SetChannelTimeout bounds each channel attempt. Zero restores the default.
func (d *Dispatcher) SetChannelTimeout(t time.Duration) {
	if t <= 0 {
		t = defaultChannelTimeout
	}
	d.timeout.Store(int64(t))
}

// ChannelTimeout returns the current per-channel bound.
func (d *Dispatcher) ChannelTimeout() time.Duration {
	return time.Duration(d.timeout.Load())
}

// NotifyCritical runs all three channels concurrently and waits for each to
// resolve. It always returns exactly three outcomes: email, push, sms.
func (d *Dispatcher) NotifyCritical(ctx context.Context, message string) []Outcome {
	timeout := d.ChannelTimeout()
	channels := []struct {
		ch Channel
		fn func(context.Context) (bool, error)
	}{
		{ChannelEmail, func(ctx context.Context) (bool, error) { return d.sendEmail(ctx, message) }},
		{ChannelPush, func(ctx context.Context) (bool, error) { return d.sendPush(ctx, message) }},
		{ChannelSMS, func(ctx context.Context) (bool, error) { return d.sendSMS(ctx, message) }},
	}

	outcomes := make([]Outcome, len(channels))
	var wg sync.WaitGroup
	for i, c := range channels {
		wg.Add(1)
		go func(i int, ch Channel, fn func(context.Context) (bool, error)) {
			defer wg.Done()
			outcomes[i] = d.run(ctx, ch, timeout, fn)
		}(i, c.ch, c.fn)
	}
	wg.Wait()

	for _, o := range outcomes {
		d.record(o)
	}
	return outcomes
}

// run executes fn with its own deadline. A hung channel yields ErrChannelTimeout
// once the deadline passes, even if fn has not returned.
func (d *Dispatcher) run(ctx context.Context, ch Channel, timeout time.Duration, fn func(context.Context) (bool, error)) Outcome {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		skipped bool
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %v", ErrChannelPanic, r)}
			}
		}()
		skipped, err := fn(ctx)
		done <- result{skipped: skipped, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = result{err: ctx.Err()}
	}
	if errors.Is(res.err, context.DeadlineExceeded) {
		res.err = fmt.Errorf("%w after %v", ErrChannelTimeout, timeout)
	}

	out := Outcome{Channel: ch, Succeeded: res.err == nil, Skipped: res.skipped, Err: res.err}
	if res.err != nil {
		out.Error = res.err.Error()
		d.log.Error("notification channel failed", "channel", ch, "err", res.err)
	}
	return out
}

func (d *Dispatcher) sendEmail(ctx context.Context, message string) (bool, error) {
	admins, err := d.recipients.ListAdminRecipients(ctx)
	if err != nil {
		return false, fmt.Errorf("resolve admin recipients: %w", err)
	}
	to := mergeRecipients(admins, *d.ops.Load())
	if len(to) == 0 {
		d.log.Warn("no email recipients for critical alert, skipping")
		return true, nil
	}
	if err := d.email.Send(ctx, to, d.subject, renderAlertHTML(message, time.Now())); err != nil {
		return false, err
	}
	d.log.Info("critical alert emailed", "recipients", len(to))
	return false, nil
}

func (d *Dispatcher) sendPush(ctx context.Context, message string) (bool, error) {
	d.push.Send(ctx, message)
	return false, nil
}

// sendSMS hands the blocking send to the SMS pool. Submission waits for a free
// queue slot when the pool is saturated.
func (d *Dispatcher) sendSMS(ctx context.Context, message string) (bool, error) {
	res, err := d.smsPool.Submit(ctx, message)
	if err != nil {
		return false, err
	}
	select {
	case r := <-res:
		return false, r.Err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (d *Dispatcher) record(o Outcome) {
	if d.recorder == nil {
		return
	}
	result := "success"
	switch {
	case o.Err != nil:
		result = "error"
	case o.Skipped:
		result = "skipped"
	}
	d.recorder.NotificationResult(string(o.Channel), result)
}

// Close drains the SMS pool.
func (d *Dispatcher) Close() {
	d.smsPool.Drain()
}

// mergeRecipients de-duplicates case-insensitively, keeping first-seen order.
func mergeRecipients(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, addr := range list {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			key := strings.ToLower(addr)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, addr)
		}
	}
	return out
}

func renderAlertHTML(message string, at time.Time) string {
	var b strings.Builder
	b.WriteString("<h2>Critical security alert</h2>")
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(message))
	fmt.Fprintf(&b, "<p><small>Raised at %s</small></p>", at.Format(time.RFC1123))
	return b.String()
}
