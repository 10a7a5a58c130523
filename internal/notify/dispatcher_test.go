package notify_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/sentinel/internal/notify"
)

type staticRecipients struct {
	addrs []string
	err   error
}

func (s staticRecipients) ListAdminRecipients(context.Context) ([]string, error) {
	return s.addrs, s.err
}

type fakeEmail struct {
	mu    sync.Mutex
	err   error
	block bool
	sent  [][]string
}

func (f *fakeEmail) Send(ctx context.Context, recipients []string, subject, body string) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, recipients)
	return f.err
}

func (f *fakeEmail) calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

type fakePush struct{ n atomic.Int32 }

func (f *fakePush) Send(context.Context, string) { f.n.Add(1) }

type fakeSMS struct {
	err     error
	delay   time.Duration
	panics  bool
	running atomic.Int32
	peak    atomic.Int32
	n       atomic.Int32
}

func (f *fakeSMS) SendBlocking(string) error {
	if f.panics {
		panic("gateway exploded")
	}
	cur := f.running.Add(1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	time.Sleep(f.delay)
	f.running.Add(-1)
	f.n.Add(1)
	return f.err
}

type countingRecorder struct {
	mu      sync.Mutex
	results map[string]int
}

func (c *countingRecorder) NotificationResult(channel, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = map[string]int{}
	}
	c.results[channel+"/"+result]++
}

func newDispatcher(t *testing.T, cfg notify.Config) *notify.Dispatcher {
	t.Helper()
	if cfg.Recipients == nil {
		cfg.Recipients = staticRecipients{addrs: []string{"admin@site.local"}}
	}
	if cfg.Email == nil {
		cfg.Email = &fakeEmail{}
	}
	if cfg.Push == nil {
		cfg.Push = &fakePush{}
	}
	if cfg.SMS == nil {
		cfg.SMS = &fakeSMS{}
	}
	d := notify.New(context.Background(), cfg)
	t.Cleanup(d.Close)
	return d
}

func channels(outcomes []notify.Outcome) []notify.Channel {
	out := make([]notify.Channel, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Channel
	}
	return out
}

var allChannels = []notify.Channel{notify.ChannelEmail, notify.ChannelPush, notify.ChannelSMS}

func TestNotifyCriticalAllSucceed(t *testing.T) {
	email, push, sms := &fakeEmail{}, &fakePush{}, &fakeSMS{}
	rec := &countingRecorder{}
	d := newDispatcher(t, notify.Config{
		Recipients:    staticRecipients{addrs: []string{"admin@site.local", "ops@site.local"}},
		Email:         email,
		Push:          push,
		SMS:           sms,
		OpsRecipients: []string{"OPS@site.local", "soc@site.local"},
		Recorder:      rec,
	})

	out := d.NotifyCritical(context.Background(), "ALERT: vault")
	require.Len(t, out, 3)
	assert.Equal(t, allChannels, channels(out))
	for _, o := range out {
		assert.True(t, o.Succeeded, o.Channel)
		assert.NoError(t, o.Err)
	}

	require.Len(t, email.calls(), 1)
	assert.Equal(t, []string{"admin@site.local", "ops@site.local", "soc@site.local"}, email.calls()[0])
	assert.EqualValues(t, 1, push.n.Load())
	assert.EqualValues(t, 1, sms.n.Load())
	assert.Equal(t, map[string]int{"email/success": 1, "push/success": 1, "sms/success": 1}, rec.results)
}

func TestNotifyCriticalIsolatesFailures(t *testing.T) {
	tests := []struct {
		name      string
		cfg       notify.Config
		failed    notify.Channel
		wantError error
	}{
		{
			name:   "email send fails",
			cfg:    notify.Config{Email: &fakeEmail{err: notify.ErrFailedToSendEmail}},
			failed: notify.ChannelEmail, wantError: notify.ErrFailedToSendEmail,
		},
		{
			name:   "recipient lookup fails",
			cfg:    notify.Config{Recipients: staticRecipients{err: errors.New("db down")}},
			failed: notify.ChannelEmail,
		},
		{
			name:   "sms gateway fails",
			cfg:    notify.Config{SMS: &fakeSMS{err: errors.New("carrier rejected")}},
			failed: notify.ChannelSMS,
		},
		{
			name:   "sms sender panics",
			cfg:    notify.Config{SMS: &fakeSMS{panics: true}},
			failed: notify.ChannelSMS, wantError: notify.ErrChannelPanic,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDispatcher(t, tt.cfg)
			out := d.NotifyCritical(context.Background(), "boom")

			require.Len(t, out, 3)
			assert.Equal(t, allChannels, channels(out))
			for _, o := range out {
				if o.Channel == tt.failed {
					assert.False(t, o.Succeeded)
					assert.Error(t, o.Err)
					assert.NotEmpty(t, o.Error)
					if tt.wantError != nil {
						assert.ErrorIs(t, o.Err, tt.wantError)
					}
					continue
				}
				assert.True(t, o.Succeeded, "%s should be unaffected", o.Channel)
			}
		})
	}
}

func TestNotifyCriticalSkipsEmailWithoutRecipients(t *testing.T) {
	email := &fakeEmail{}
	rec := &countingRecorder{}
	d := newDispatcher(t, notify.Config{
		Recipients: staticRecipients{},
		Email:      email,
		Recorder:   rec,
	})

	out := d.NotifyCritical(context.Background(), "boom")
	require.Len(t, out, 3)
	assert.True(t, out[0].Succeeded)
	assert.True(t, out[0].Skipped)
	assert.Empty(t, email.calls())
	assert.Equal(t, 1, rec.results["email/skipped"])
}

func TestNotifyCriticalChannelsRunConcurrently(t *testing.T) {
	d := newDispatcher(t, notify.Config{SMS: &fakeSMS{delay: 100 * time.Millisecond}})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := d.NotifyCritical(context.Background(), "boom")
			assert.Len(t, out, 3)
		}()
	}
	wg.Wait()
	assert.Less(t, time.Since(start), 350*time.Millisecond, "four alerts share four SMS workers")
}

func TestSMSPoolIsBoundedAndQueues(t *testing.T) {
	sms := &fakeSMS{delay: 20 * time.Millisecond}
	d := newDispatcher(t, notify.Config{SMS: sms, SMSWorkers: 2, SMSQueueDepth: 1})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := d.NotifyCritical(context.Background(), "boom")
			assert.True(t, out[2].Succeeded, "saturated pool queues instead of failing")
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 8, sms.n.Load())
	assert.LessOrEqual(t, sms.peak.Load(), int32(2))
}

func TestNotifyCriticalChannelTimeout(t *testing.T) {
	d := newDispatcher(t, notify.Config{
		Email:          &fakeEmail{block: true},
		ChannelTimeout: 30 * time.Millisecond,
	})

	start := time.Now()
	out := d.NotifyCritical(context.Background(), "boom")
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, out, 3)
	assert.False(t, out[0].Succeeded)
	assert.ErrorIs(t, out[0].Err, notify.ErrChannelTimeout)
	assert.True(t, out[1].Succeeded)
	assert.True(t, out[2].Succeeded)
}

func TestSMSTimedOutJobsAreNotSent(t *testing.T) {
	sms := &fakeSMS{delay: 100 * time.Millisecond}
	rec := &countingRecorder{}
	d := newDispatcher(t, notify.Config{
		SMS:            sms,
		SMSWorkers:     1,
		ChannelTimeout: 30 * time.Millisecond,
		Recorder:       rec,
	})

	var wg sync.WaitGroup
	var timedOut atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := d.NotifyCritical(context.Background(), "boom")
			if errors.Is(out[2].Err, notify.ErrChannelTimeout) {
				timedOut.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 4, timedOut.Load())

	// Only the job already on the worker reaches the gateway.
	time.Sleep(250 * time.Millisecond)
	assert.EqualValues(t, 1, sms.n.Load())

	// Stale jobs do not hold the pool: a fresh alert goes straight through.
	d.SetChannelTimeout(time.Second)
	out := d.NotifyCritical(context.Background(), "boom")
	assert.True(t, out[2].Succeeded)
	assert.EqualValues(t, 2, sms.n.Load())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 4, rec.results["sms/error"])
	assert.Equal(t, 1, rec.results["sms/success"])
}

func TestHotReloadSettings(t *testing.T) {
	email := &fakeEmail{}
	d := newDispatcher(t, notify.Config{Recipients: staticRecipients{}, Email: email})
	assert.Equal(t, 15*time.Second, d.ChannelTimeout())

	d.SetOpsRecipients([]string{"night-shift@site.local"})
	d.SetChannelTimeout(2 * time.Second)
	assert.Equal(t, 2*time.Second, d.ChannelTimeout())

	d.NotifyCritical(context.Background(), "boom")
	require.Len(t, email.calls(), 1)
	assert.Equal(t, []string{"night-shift@site.local"}, email.calls()[0])
}

func TestDevSenderWritesFiles(t *testing.T) {
	dir := t.TempDir()
	s := notify.NewDevSender(dir)
	err := s.Send(context.Background(), []string{"a@site.local"}, "Critical security alert", "<p>hi</p>")
	require.NoError(t, err)

	html, err := filepath.Glob(filepath.Join(dir, "*_critical_security_alert.html"))
	require.NoError(t, err)
	require.Len(t, html, 1)
	body, err := os.ReadFile(html[0])
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(body))

	meta, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	assert.Len(t, meta, 1)
}

func TestNewPostmarkSenderValidates(t *testing.T) {
	_, err := notify.NewPostmarkSender(notify.PostmarkConfig{})
	assert.ErrorIs(t, err, notify.ErrInvalidConfig)

	_, err = notify.NewPostmarkSender(notify.PostmarkConfig{ServerToken: "s", AccountToken: "a", From: "not an address"})
	assert.ErrorIs(t, err, notify.ErrInvalidConfig)

	s, err := notify.NewPostmarkSender(notify.PostmarkConfig{ServerToken: "s", AccountToken: "a", From: "alerts@site.local"})
	require.NoError(t, err)
	assert.NotNil(t, s)
}
