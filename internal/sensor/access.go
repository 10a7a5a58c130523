package sensor

import (
	"fmt"

	"github.com/gyaneshwarpardhi/sentinel/internal/event"
)

func classifyAccess(payload map[string]interface{}) (event.Status, string) {
	user := stringField(payload, "user", "unknown")
	if !boolField(payload, "access_granted", true) {
		return event.StatusCritical, fmt.Sprintf("ALERT: access denied for user '%s'.", user)
	}
	return event.StatusOK, fmt.Sprintf("Access granted to user '%s'.", user)
}
