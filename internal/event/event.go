package event

import (
	"encoding/json"
	"time"
)

// SensorType is the closed set of sensors the site reports from.
type SensorType string

const (
	Motion      SensorType = "motion"
	Temperature SensorType = "temperature"
	Access      SensorType = "access"
)

// SensorTypes lists every known sensor in a stable order.
var SensorTypes = []SensorType{Motion, Temperature, Access}

// Status is the severity assigned to an event.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Persistable reports whether incidents with this status are stored.
func (s Status) Persistable() bool {
	return s == StatusWarning || s == StatusCritical
}

// Event is the canonical input model for a single sensor trigger.
type Event struct {
	ID         string                 `json:"id"`
	SensorType SensorType             `json:"sensor_type"`
	Payload    map[string]interface{} `json:"payload"`
	ReceivedAt time.Time              `json:"-"`
}

// Verdict is the classification of one Event. It is passed by value.
type Verdict struct {
	Status     Status
	Message    string
	SensorType SensorType
	Timestamp  time.Time
}

// TimeLayout is the wall-clock format observers receive.
const TimeLayout = "15:04:05"

type verdictWire struct {
	Status     Status     `json:"status"`
	Message    string     `json:"message"`
	SensorType SensorType `json:"sensor_type"`
	Timestamp  string     `json:"timestamp"`
}

// MarshalJSON encodes the verdict in its observer wire form.
func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(verdictWire{
		Status:     v.Status,
		Message:    v.Message,
		SensorType: v.SensorType,
		Timestamp:  v.Timestamp.Format(TimeLayout),
	})
}

// Incident is a stored record of a non-ok verdict.
type Incident struct {
	ID         string     `json:"id"`
	SensorType SensorType `json:"sensor_type"`
	Status     Status     `json:"status"`
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"created_at"`
}
