package session

import (
	"errors"
	"fmt"
)

// State is the screen a client is on
type State int

const (
	Landing State = iota
	Waiting
	Quiz
	Result
	Certificate
	Admin
)

var stateNames = [...]string{"Landing", "Waiting", "Quiz", "Result", "Certificate", "Admin"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// AdminSentinel typed as a name opens the admin passphrase prompt
const AdminSentinel = "."

// User-facing messages
const (
	MsgEmptyName       = "გთხოვთ შეიყვანოთ თქვენი სრული სახელი"
	MsgWrongPassphrase = "არასწორი ადმინისტრაციული გასაღები"
	MsgConfirmClear    = "დარწმუნებული ხართ, რომ გსურთ ყველა მონაცემის წაშლა?"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrEmptyName         = errors.New("empty name")
	ErrWrongPassphrase   = errors.New("wrong admin passphrase")
)

func invalid(from State, action string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
}
