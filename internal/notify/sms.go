package notify

import (
	"log/slog"
	"time"
)

// SimulatedSMS stands in for a synchronous SMS gateway client: SendBlocking
// holds the calling goroutine for the configured delay.
type SimulatedSMS struct {
	delay time.Duration
	to    string
	log   *slog.Logger
}

func NewSimulatedSMS(to string, delay time.Duration, log *slog.Logger) *SimulatedSMS {
	if log == nil {
		log = slog.Default()
	}
	return &SimulatedSMS{delay: delay, to: to, log: log}
}

func (s *SimulatedSMS) SendBlocking(message string) error {
	time.Sleep(s.delay)
	s.log.Info("sms sent", "to", s.to, "message", message)
	return nil
}
