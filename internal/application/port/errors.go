package port

import "errors"

// ErrTwoFactorRequired is returned by Backend.Buy and Backend.Sell when the
// order must be resubmitted with a 2FA code.
var ErrTwoFactorRequired = errors.New("two-factor code required")
