package rewarder

import (
	"errors"
	"fmt"
)

// Error categories. Every rewarder error wraps exactly one of them so callers can
// branch with errors.Is without knowing the specific failure.
var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
)

// Validation failures: the call was rejected before any state mutation.
var (
	ErrTooEarly        = fmt.Errorf("%w: too early", ErrValidation)
	ErrInfoTooOld      = fmt.Errorf("%w: info too old", ErrValidation)
	ErrInvalidCount    = fmt.Errorf("%w: count must be positive", ErrValidation)
	ErrNoVaults        = fmt.Errorf("%w: no vaults registered", ErrValidation)
	ErrEmptyBatch      = fmt.Errorf("%w: vault batch is empty", ErrValidation)
	ErrInvalidVault    = fmt.Errorf("%w: vault id is invalid", ErrValidation)
	ErrVaultExists     = fmt.Errorf("%w: vault already registered", ErrValidation)
	ErrIndexOutOfRange = fmt.Errorf("%w: vault index out of range", ErrValidation)
	ErrInvalidState    = fmt.Errorf("%w: rewarder state is inconsistent", ErrValidation)
)

// Configuration failures: a setter received an unacceptable value.
var (
	ErrInvalidAmount = fmt.Errorf("%w: rewards per day must be a non-negative integer", ErrConfiguration)
	ErrInvalidRatio  = fmt.Errorf("%w: network ratio must be within [0, 1]", ErrConfiguration)
	ErrInvalidPeriod = fmt.Errorf("%w: cycle period and info age must be positive", ErrConfiguration)
)

// ErrPayoutFailed is returned when the reward sink rejects a slice. State is left untouched.
var ErrPayoutFailed = errors.New("payout failed")
