package config

import "time"

// Config is the top-level YAML structure.
type Config struct {
	Version string     `yaml:"version"`
	Engine  EngineConf `yaml:"engine"`
	Notify  NotifyConf `yaml:"notify"`
	Hub     HubConf    `yaml:"hub"`
	Store   StoreConf  `yaml:"store"`
}

// EngineConf holds tunable concurrency settings for event flows.
type EngineConf struct {
	EventWorkers int `yaml:"event_workers"`
	QueueDepth   int `yaml:"queue_depth"`
}

// NotifyConf configures critical alert dispatch. OpsRecipients and
// ChannelTimeoutMs are applied on hot reload.
type NotifyConf struct {
	SMSWorkers       int      `yaml:"sms_workers"`
	SMSQueueDepth    int      `yaml:"sms_queue_depth"`
	SMSDelayMs       int      `yaml:"sms_delay_ms"`
	SMSNumber        string   `yaml:"sms_number"`
	ChannelTimeoutMs int      `yaml:"channel_timeout_ms"`
	OpsRecipients    []string `yaml:"ops_recipients"`
	EmailSubject     string   `yaml:"email_subject"`
}

// HubConf configures observer delivery.
type HubConf struct {
	WriteTimeoutMs int `yaml:"write_timeout_ms"`
}

// StoreConf configures the in-memory store used when DATABASE_URL is empty.
type StoreConf struct {
	AdminRecipients []string `yaml:"admin_recipients"`
}

func (n NotifyConf) ChannelTimeout() time.Duration {
	return time.Duration(n.ChannelTimeoutMs) * time.Millisecond
}

func (n NotifyConf) SMSDelay() time.Duration {
	return time.Duration(n.SMSDelayMs) * time.Millisecond
}

func (h HubConf) WriteTimeout() time.Duration {
	return time.Duration(h.WriteTimeoutMs) * time.Millisecond
}
