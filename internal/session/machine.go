package session

import (
	"errors"
	"fmt"
	"sync"
)

type State string

const (
	StateUnauthenticated  State = "unauthenticated"
	StateAuthenticating   State = "authenticating"
	StateAuthenticated    State = "authenticated"
	StateFetchingResource State = "fetching_resource"
	StateResourceFetched  State = "resource_fetched"
	StateFetchingLicense  State = "fetching_license"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

type Stage string

const (
	StageAuthenticate  Stage = "authenticate"
	StageFetchResource Stage = "fetch_resource"
	StageFetchLicense  Stage = "fetch_license"
)

type Kind string

const (
	KindLoginFailed            Kind = "login_failed"
	KindCaptchaFailed          Kind = "captcha_failed"
	KindAccessDenied           Kind = "access_denied"
	KindDownloadButtonNotFound Kind = "download_button_not_found"
	KindDownloadDidNotStart    Kind = "download_did_not_start"
	KindLicenseNotFound        Kind = "license_not_found"
)

// Error is the Failed(stage, reason) outcome of a driver stage.
type Error struct {
	Stage  Stage
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err carries a session error of kind k.
func IsKind(err error, k Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == k
}

var ErrBadTransition = errors.New("invalid session state transition")

var transitions = map[State][]State{
	StateUnauthenticated:  {StateAuthenticating},
	StateAuthenticating:   {StateAuthenticated},
	StateAuthenticated:    {StateFetchingResource, StateFetchingLicense},
	StateFetchingResource: {StateResourceFetched},
	StateResourceFetched:  {StateFetchingLicense, StateDone},
	StateFetchingLicense:  {StateDone},
}

// Machine tracks the driver's progress through its stages. Failed and Done
// are terminal.
type Machine struct {
	mu      sync.Mutex
	state   State
	failure *Error
}

func NewMachine() *Machine {
	return &Machine{state: StateUnauthenticated}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Failure returns the error that moved the machine to Failed, if any.
func (m *Machine) Failure() *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure
}

func (m *Machine) To(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range transitions[m.state] {
		if s == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrBadTransition, m.state, next)
}

// Fail records e and moves to Failed from any non-terminal state. The first
// failure wins.
func (m *Machine) Fail(e *Error) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateDone || m.state == StateFailed {
		if m.failure != nil {
			return m.failure
		}
		return e
	}
	m.state = StateFailed
	m.failure = e
	return e
}
