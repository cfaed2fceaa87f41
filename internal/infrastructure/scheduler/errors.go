package scheduler

import "errors"

var (
	// ErrTriggerAlreadyRunning is returned when Start is called on a running trigger
	ErrTriggerAlreadyRunning = errors.New("trigger is already running")

	// ErrInvalidSchedule is returned when a schedule expression cannot be parsed
	ErrInvalidSchedule = errors.New("invalid schedule")
)
