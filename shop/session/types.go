package session

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/shop/texts"
)

// State is a checkout step. The flags a session exposes (Awaiting, Paid)
// are derived from it, so illegal flag combinations cannot be stored.
type State string

const (
	StateInit            State = "init"
	StateLangChosen      State = "lang_chosen"
	StateServiceChosen   State = "service_chosen"
	StateMethodChosen    State = "method_chosen"
	StateStarsPending    State = "stars_pending"
	StateCryptoPending   State = "crypto_pending"
	StatePaid            State = "paid"
	StateAwaitingEmail   State = "awaiting_email"
	StateOrderSubmitted  State = "order_submitted"
	StateSupportLocked   State = "support_locked"
	StateSupportUnlocked State = "support_unlocked"
)

// Method is a payment method.
type Method string

const (
	MethodNone   Method = ""
	MethodStars  Method = "stars"
	MethodCrypto Method = "crypto"
)

// ParseMethod maps a callback payload to a Method.
func ParseMethod(s string) (Method, bool) {
	switch Method(s) {
	case MethodStars:
		return MethodStars, true
	case MethodCrypto:
		return MethodCrypto, true
	}
	return MethodNone, false
}

// Awaiting names the user input a session is waiting for.
type Awaiting string

const (
	AwaitingNone       Awaiting = ""
	AwaitingEmail      Awaiting = "email"
	AwaitingScreenshot Awaiting = "screenshot"
)

// Session is the conversation state of one user.
type Session struct {
	UserID          int64
	Language        texts.Lang
	State           State
	SelectedService string
	PaymentMethod   Method
	PaidAmount      decimal.Decimal
	Currency        string
	PaymentRef      string
	Email           string
	ScreenshotRef   string
	SupportUnlockAt time.Time
	UpdatedAt       time.Time
}

// New returns the default session for userID.
func New(userID int64) Session {
	return Session{
		UserID:   userID,
		Language: texts.Default,
		State:    StateInit,
	}
}

// Awaiting reports which input the session expects next.
func (s Session) Awaiting() Awaiting {
	switch s.State {
	case StateCryptoPending:
		return AwaitingScreenshot
	case StateAwaitingEmail:
		return AwaitingEmail
	}
	return AwaitingNone
}

// Paid reports whether the current checkout has been paid.
func (s Session) Paid() bool {
	switch s.State {
	case StatePaid, StateAwaitingEmail, StateOrderSubmitted, StateSupportLocked, StateSupportUnlocked:
		return true
	}
	return false
}

// Phase returns the state as observed at now: a locked session whose
// unlock time has passed reads as unlocked.
func (s Session) Phase(now time.Time) State {
	if s.State == StateSupportLocked && !s.SupportUnlockAt.IsZero() && !now.Before(s.SupportUnlockAt) {
		return StateSupportUnlocked
	}
	return s.State
}

// Validate checks the cross-field invariants of a session.
func (s Session) Validate() error {
	aw := s.Awaiting()
	if aw == AwaitingEmail && !s.Paid() {
		return fmt.Errorf("session %d: awaiting email while unpaid", s.UserID)
	}
	if aw == AwaitingScreenshot && s.PaymentMethod != MethodCrypto {
		return fmt.Errorf("session %d: awaiting screenshot with method %q", s.UserID, s.PaymentMethod)
	}
	switch s.State {
	case StateServiceChosen, StateMethodChosen, StateStarsPending, StateCryptoPending,
		StatePaid, StateAwaitingEmail, StateOrderSubmitted, StateSupportLocked:
		if s.SelectedService == "" {
			return fmt.Errorf("session %d: state %s without a service", s.UserID, s.State)
		}
	}
	if s.Paid() && s.PaymentRef == "" {
		return fmt.Errorf("session %d: paid without a payment ref", s.UserID)
	}
	return nil
}
