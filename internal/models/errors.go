package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the incident and recovery domain. Callers branch with
// errors.Is; wrapped variants preserve the base sentinel.
var (
	// ErrNotFound signals an unknown incident or action id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition signals an illegal lifecycle move.
	ErrInvalidTransition = errors.New("invalid incident transition")

	// ErrAlreadyResolved: recovery requested for a terminal incident.
	ErrAlreadyResolved = fmt.Errorf("%w: incident already resolved", ErrInvalidTransition)

	// ErrAlreadyInProgress: another recovery attempt holds the incident.
	ErrAlreadyInProgress = fmt.Errorf("%w: recovery already in progress", ErrInvalidTransition)

	// ErrNoStrategy signals that no remediation strategy maps to the
	// incident's metric category.
	ErrNoStrategy = errors.New("no recovery strategy available")

	// ErrStore signals a persistence failure. The current operation is
	// aborted without further lifecycle mutation; retrying is the caller's
	// responsibility.
	ErrStore = errors.New("store error")
)
