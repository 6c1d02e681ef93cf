package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrTokenExpired     = fmt.Errorf("access token expired")

	// Storage errors
	ErrStorage       = fmt.Errorf("storage failure")
	ErrQuotaExceeded = fmt.Errorf("storage quota exceeded")
	ErrNotFound      = fmt.Errorf("not found")

	// Network and upstream errors
	ErrNetwork            = fmt.Errorf("network request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Task errors
	ErrSyncBusy = fmt.Errorf("sync cycle already running")

	// Agent lifecycle errors
	ErrAgentRunning    = fmt.Errorf("agent already running")
	ErrAgentNotRunning = fmt.Errorf("agent not running")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
