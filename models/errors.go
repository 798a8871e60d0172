package models

import "errors"

var (
	ErrInvalidFix            = errors.New("invalid position fix")
	ErrSessionNotStarted     = errors.New("ride session not started")
	ErrSessionAlreadyStarted = errors.New("ride session already started")
	ErrSessionClosed         = errors.New("ride session closed")
	ErrConcurrentFix         = errors.New("concurrent fix submission")
	ErrInvalidRefuel         = errors.New("refuel amount must be positive")

	ErrInvalidReport   = errors.New("invalid crash report")
	ErrReportNotFound  = errors.New("crash report not found")
	ErrInvalidContact  = errors.New("invalid emergency contact")
	ErrContactNotFound = errors.New("emergency contact not found")
	ErrRideNotFound    = errors.New("ride not found")
)
