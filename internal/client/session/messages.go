package session

import (
	"errors"

	"github.com/mvailland/latchkey/internal/client/identity"
	"github.com/mvailland/latchkey/internal/validation"
)

// User-facing copy. Raw collaborator errors never cross into the UI; every
// failure surfaces as one of these strings.
const (
	msgInvalidEmail           = "Enter a valid email address."
	msgPasswordTooShort       = "Password must be at least 8 characters."
	msgPasswordsDontMatch     = "Passwords do not match."
	msgPasswordRequired       = "Enter your password."
	msgInvalidCredentials     = "Wrong email or password."
	msgUnconfirmedEmail       = "Confirm your email address first. Check your inbox."
	msgEmailInUse             = "An account with this email already exists."
	msgWeakPassword           = "That password is too weak. Try a longer one."
	msgThrottled              = "Too many attempts. Please wait a moment."
	msgNetwork                = "Can't reach the server. Check your connection."
	msgSessionExpired         = "Your session expired. Please sign in with your password."
	msgFederatedFailed        = "Apple sign-in didn't complete. Please try again."
	msgFederatedUnavailable   = "Apple sign-in isn't available here."
	msgConfirmationSent       = "Almost there! We sent a confirmation link to your email."
	msgConfirmationResent     = "Confirmation email sent again."
	msgResetRequested         = "If an account exists for that email, a reset link is on its way."
	msgQuickUnlockEnabled     = "Quick unlock is on."
	msgQuickUnlockSetupFailed = "Couldn't set up quick unlock. You can retry from settings."
)

// messageFor maps a collaborator error onto user copy. Unknown errors fall
// back to the network message; by the time an error reaches here it is not
// a local validation problem.
func messageFor(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return msgInvalidCredentials
	case errors.Is(err, identity.ErrUnconfirmedEmail):
		return msgUnconfirmedEmail
	case errors.Is(err, identity.ErrEmailInUse):
		return msgEmailInUse
	case errors.Is(err, identity.ErrWeakPassword):
		return msgWeakPassword
	case errors.Is(err, identity.ErrThrottled):
		return msgThrottled
	case errors.Is(err, identity.ErrTokenExpired), errors.Is(err, identity.ErrTokenRevoked):
		return msgSessionExpired
	case errors.Is(err, identity.ErrFederatedAuth):
		return msgFederatedFailed
	default:
		return msgNetwork
	}
}

// localValidationMessage picks the most useful complaint about the current
// form values. Only called when the submit gate failed, so at least one
// check is failing.
func localValidationMessage(mode validation.Mode, email, password, confirm string) string {
	if !validation.IsEmailValid(email) {
		return msgInvalidEmail
	}
	if mode == validation.ModeSignUp {
		if !validation.IsPasswordValid(password) {
			return msgPasswordTooShort
		}
		return msgPasswordsDontMatch
	}
	return msgPasswordRequired
}
