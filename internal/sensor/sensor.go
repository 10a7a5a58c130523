package sensor

import (
	"errors"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/sentinel/internal/event"
)

// ErrSensorNotFound is returned for sensor types outside the known set.
var ErrSensorNotFound = errors.New("sensor not found")

// ParseType maps a raw sensor name onto the closed SensorType set.
func ParseType(name string) (event.SensorType, error) {
	switch t := event.SensorType(name); t {
	case event.Motion, event.Temperature, event.Access:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrSensorNotFound, name)
}

// Classify produces the verdict for a payload from the given sensor.
// It has no side effects and returns the same verdict for the same input.
func Classify(t event.SensorType, payload map[string]interface{}, at time.Time) (event.Verdict, error) {
	var status event.Status
	var msg string
	switch t {
	case event.Motion:
		status, msg = classifyMotion(payload)
	case event.Temperature:
		status, msg = classifyTemperature(payload)
	case event.Access:
		status, msg = classifyAccess(payload)
	default:
		return event.Verdict{}, fmt.Errorf("%w: %q", ErrSensorNotFound, t)
	}
	return event.Verdict{
		Status:     status,
		Message:    msg,
		SensorType: t,
		Timestamp:  at,
	}, nil
}

// Lookup parses name and classifies payload in one step.
func Lookup(name string, payload map[string]interface{}, at time.Time) (event.Verdict, error) {
	t, err := ParseType(name)
	if err != nil {
		return event.Verdict{}, err
	}
	return Classify(t, payload, at)
}
