package errors

import "errors"

// Sentinel errors shared across services. Handlers map these to HTTP statuses;
// services compare with errors.Is.
var (
	// Betting / round lifecycle
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrBelowMinimumStake     = errors.New("stake below room minimum")
	ErrAboveMaximumStake     = errors.New("stake above per-player maximum")
	ErrRoundNotAcceptingBets = errors.New("round is not accepting bets")
	ErrGamingSuspended       = errors.New("gaming is suspended for this user")
	ErrAlreadyLeadBidder     = errors.New("already the lead bidder")
	ErrFixedBidMismatch      = errors.New("bid must equal the fixed bid amount")
	ErrInvalidField          = errors.New("invalid lottery field")
	ErrInvalidClientSeed     = errors.New("client seed must be 1-64 characters")
	ErrNotParticipant        = errors.New("user has no stake in the round")
	ErrRoundNotFound         = errors.New("round not found")
	ErrRoomNotFound          = errors.New("room not found")

	// Fairness
	ErrInvalidOutcomeSpace = errors.New("outcome space must be positive")

	// Identity / wallet
	ErrUserNotFound    = errors.New("user not found")
	ErrUserBanned      = errors.New("user is banned")
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrInvalidSMSCode  = errors.New("invalid sms code")
	ErrSMSCodeExpired  = errors.New("sms code expired")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrBelowMinimumOut = errors.New("amount below minimum withdrawal")

	// Admin / settings
	ErrAdminNotFound         = errors.New("admin not found")
	ErrAdminDisabled         = errors.New("admin account disabled")
	ErrInvalidAdminPassword  = errors.New("invalid admin credentials")
	ErrRoomSettingNotFound   = errors.New("room setting not found")
	ErrInvalidRoomSetting    = errors.New("invalid room setting payload")
	ErrInvalidSuspendPayload = errors.New("invalid suspension payload")
	ErrInvalidWalletPayload  = errors.New("invalid wallet payload")
)
