package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Cycle-level errors: a Source failure aborts the current cycle without
	// touching catalog state, a storage failure marks the cycle failed.
	ErrSourceUnavailable = fmt.Errorf("source unavailable")
	ErrStorage           = fmt.Errorf("catalog storage error")

	// Sync orchestration errors
	ErrSyncRunning  = fmt.Errorf("sync cycle already running")
	ErrTrackUnknown = fmt.Errorf("track not in catalog")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
