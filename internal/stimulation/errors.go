package stimulation

import (
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenStimCore/internal/model"
	"github.com/KevinKickass/OpenStimCore/internal/params"
	"github.com/KevinKickass/OpenStimCore/internal/transport"
)

// Kind classifies controller failures.
type Kind uint8

const (
	KindLifecycle Kind = iota + 1
	KindValidation
	KindCapability
	KindSetup
	KindTick
	KindTeardown
	KindOperation
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrLifecycle             = errors.New("stimulation: not initialized")
	ErrValidation            = errors.New("stimulation: validation failed")
	ErrCapabilityUnsupported = errors.New("stimulation: basic stimulation not supported")
	ErrConnectionSetup       = errors.New("stimulation: connection setup failed")
	ErrTick                  = errors.New("stimulation: tick failed")
	ErrTeardown              = errors.New("stimulation: teardown failed")
	ErrOperation             = errors.New("stimulation: operation failed")
)

var kindSentinels = map[Kind]error{
	KindLifecycle:  ErrLifecycle,
	KindValidation: ErrValidation,
	KindCapability: ErrCapabilityUnsupported,
	KindSetup:      ErrConnectionSetup,
	KindTick:       ErrTick,
	KindTeardown:   ErrTeardown,
	KindOperation:  ErrOperation,
}

func (k Kind) String() string {
	switch k {
	case KindLifecycle:
		return "lifecycle"
	case KindValidation:
		return "validation"
	case KindCapability:
		return "capability"
	case KindSetup:
		return "setup"
	case KindTick:
		return "tick"
	case KindTeardown:
		return "teardown"
	case KindOperation:
		return "operation"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Policy says what the controller does with a failure of a given kind.
type Policy uint8

const (
	// PolicyReturn hands the error to the caller.
	PolicyReturn Policy = iota
	// PolicyLog logs the error and lets the call return normally.
	PolicyLog
)

// policies is the single place where failure handling is decided.
// Tick failures are logged by the scheduler, which never returns them.
var policies = map[Kind]Policy{
	KindLifecycle:  PolicyReturn,
	KindValidation: PolicyReturn,
	KindSetup:      PolicyReturn,
	KindOperation:  PolicyReturn,
	KindCapability: PolicyLog,
	KindTick:       PolicyLog,
	KindTeardown:   PolicyLog,
}

// PolicyFor returns the handling policy of k.
func PolicyFor(k Kind) Policy {
	if p, ok := policies[k]; ok {
		return p
	}
	return PolicyReturn
}

// Error is a classified controller failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stimulation: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("stimulation: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// classify wraps a non-nil error coming out of the stack.
func classify(op string, err error) *Error {
	switch {
	case errors.Is(err, model.ErrChannelOutOfRange),
		errors.Is(err, model.ErrInvalidValue),
		errors.Is(err, model.ErrInvalidMode),
		errors.Is(err, params.ErrInvalidValue),
		errors.Is(err, params.ErrInvalidRange),
		errors.Is(err, params.ErrParamNotFound),
		errors.Is(err, transport.ErrInvalidArgument):
		return newError(KindValidation, op, err)
	case errors.Is(err, transport.ErrNotReady),
		errors.Is(err, transport.ErrClosed):
		return newError(KindLifecycle, op, err)
	default:
		return newError(KindOperation, op, err)
	}
}
