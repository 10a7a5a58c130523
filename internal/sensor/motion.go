package sensor

import (
	"fmt"

	"github.com/gyaneshwarpardhi/sentinel/internal/event"
)

func classifyMotion(payload map[string]interface{}) (event.Status, string) {
	authorized := boolField(payload, "is_authorized", true)
	if !authorized {
		zone := stringField(payload, "zone", "unknown")
		return event.StatusCritical, fmt.Sprintf("ALERT: unauthorized motion detected in zone %s.", zone)
	}
	return event.StatusOK, "Authorized motion recorded."
}
