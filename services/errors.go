package services

import "errors"

// Sentinel errors shared across services and the HTTP error mapping.
var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrForbiddenOperation = errors.New("operation not permitted for this user")

	// Validation and business-rule failures.
	ErrTournamentNameRequired    = errors.New("tournament name is required")
	ErrInvalidBracketSize        = errors.New("bracket size must be 16 or 64")
	ErrInvalidEntryFee           = errors.New("entry fee cannot be negative")
	ErrInvalidCommissionRate     = errors.New("commission rate must be between 0 and 100")
	ErrInvalidRegistrationWindow = errors.New("registration window is invalid")
	ErrInvalidPrizeDistribution  = errors.New("prize distribution is invalid")
	ErrRegistrationClosed        = errors.New("tournament is not accepting registrations")
	ErrAlreadyRegistered         = errors.New("user is already registered for this tournament")
	ErrTournamentFull            = errors.New("tournament registration is full")
	ErrJoinCodeInvalid           = errors.New("join code is missing or incorrect")
	ErrTournamentNotStartable    = errors.New("tournament is not in registration status")
	ErrNotEnoughParticipants     = errors.New("tournament does not have a full roster")

	// Banner upload failures.
	ErrUnsupportedContentType = errors.New("unsupported banner content type")
	ErrUploaderUnavailable    = errors.New("object storage is not configured")
)
