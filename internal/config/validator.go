package config

import (
	"fmt"
	"net/mail"
	"strings"
)

// Validate checks the config and reports every problem at once.
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	positive := []struct {
		name string
		v    int
	}{
		{"engine.event_workers", cfg.Engine.EventWorkers},
		{"engine.queue_depth", cfg.Engine.QueueDepth},
		{"notify.sms_workers", cfg.Notify.SMSWorkers},
		{"notify.sms_queue_depth", cfg.Notify.SMSQueueDepth},
		{"notify.channel_timeout_ms", cfg.Notify.ChannelTimeoutMs},
		{"hub.write_timeout_ms", cfg.Hub.WriteTimeoutMs},
	}
	for _, p := range positive {
		if p.v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive, got %d", p.name, p.v))
		}
	}
	if cfg.Notify.SMSDelayMs < 0 {
		errs = append(errs, fmt.Sprintf("notify.sms_delay_ms must not be negative, got %d", cfg.Notify.SMSDelayMs))
	}

	validateAddresses("notify.ops_recipients", cfg.Notify.OpsRecipients, &errs)
	validateAddresses("store.admin_recipients", cfg.Store.AdminRecipients, &errs)

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateAddresses(field string, addrs []string, errs *[]string) {
	seen := make(map[string]int, len(addrs))
	for i, a := range addrs {
		if _, err := mail.ParseAddress(a); err != nil {
			*errs = append(*errs, fmt.Sprintf("%s[%d]: invalid address %q", field, i, a))
			continue
		}
		key := strings.ToLower(a)
		if prev, ok := seen[key]; ok {
			*errs = append(*errs, fmt.Sprintf("%s[%d]: duplicate of [%d] %q", field, i, prev, a))
			continue
		}
		seen[key] = i
	}
}
