package sensor

import (
	"fmt"

	"github.com/gyaneshwarpardhi/sentinel/internal/event"
)

const (
	defaultTemperature  = 20.0
	warningTemperature  = 35.0
	criticalTemperature = 50.0
)

// Both thresholds are exclusive: 50 is a warning, 35 is ok.
func classifyTemperature(payload map[string]interface{}) (event.Status, string) {
	t := floatField(payload, "temperature", defaultTemperature)
	switch {
	case t > criticalTemperature:
		return event.StatusCritical, fmt.Sprintf("ALERT: critical temperature of %g°C detected.", t)
	case t > warningTemperature:
		return event.StatusWarning, fmt.Sprintf("WARNING: elevated temperature of %g°C detected.", t)
	default:
		return event.StatusOK, fmt.Sprintf("Normal temperature of %g°C recorded.", t)
	}
}
