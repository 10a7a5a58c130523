package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/sentinel/internal/event"
)

var (
	// ErrInvalidIncident is returned for incidents that must not be stored (status ok, missing fields).
	ErrInvalidIncident          = errors.New("invalid incident")
	ErrFailedToOpenDBConnection = errors.New("failed to open db connection")
	ErrFailedToApplyMigrations  = errors.New("failed to apply migrations")
)

// AdminRole is the role whose holders receive critical alert email.
const AdminRole = "admin"

// prepare validates in and fills ID and CreatedAt when absent.
func prepare(in event.Incident) (event.Incident, error) {
	if !in.Status.Persistable() {
		return in, fmt.Errorf("%w: status %q is not persisted", ErrInvalidIncident, in.Status)
	}
	if in.SensorType == "" || in.Message == "" {
		return in, fmt.Errorf("%w: sensor_type and message are required", ErrInvalidIncident)
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	return in, nil
}
