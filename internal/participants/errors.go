package participants

import "errors"

var (
	ErrAlreadyRegistered   = errors.New("user is already registered for this event")
	ErrEventNotFound       = errors.New("event not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrAlreadyCancelled    = errors.New("participant is already cancelled")
	ErrUnauthorized        = errors.New("not allowed to manage this participant")
	// ErrTransientConflict marks lock or serialization failures; the whole
	// transactional step may be retried.
	ErrTransientConflict = errors.New("transient store conflict")
	// ErrNotificationFailed is logged only, never returned to callers.
	ErrNotificationFailed = errors.New("notification failed")

	errPromotionConflict = errors.New("waiting participant changed before promotion")
)
