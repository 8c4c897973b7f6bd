package rio

import (
	"errors"

	E "github.com/sagernet/sing/common/exceptions"
)

var (
	// ErrInvalidArgument 参数非法
	ErrInvalidArgument = errors.New("rio: invalid argument")

	// ErrNotRegistered socket 尚未完成注册（注册续体未触发）
	ErrNotRegistered = errors.New("rio: socket not registered")

	// ErrReadPending 该 socket 已有一个在途读请求
	ErrReadPending = errors.New("rio: read already pending")

	// ErrReactorClosed 反应器已停止
	ErrReactorClosed = errors.New("rio: reactor closed")
)

// Kind 标识可报告的 socket 错误类别。
type Kind uint8

const (
	KindRegistrationFailed Kind = iota + 1
	KindAcceptInterrupted
	KindAcceptClosedByPeerProcess
	KindAcceptOnClosedChannel
	KindAcceptGenericIO
	KindNotYetConnected
	KindConnectionClosedDuringRead
	KindReadGenericIO
	KindUnexpectedReadFailure
)

func (k Kind) String() string {
	switch k {
	case KindRegistrationFailed:
		return "RegistrationFailed"
	case KindAcceptInterrupted:
		return "AcceptInterrupted"
	case KindAcceptClosedByPeerProcess:
		return "AcceptClosedByPeerProcess"
	case KindAcceptOnClosedChannel:
		return "AcceptOnClosedChannel"
	case KindAcceptGenericIO:
		return "AcceptGenericIO"
	case KindNotYetConnected:
		return "NotYetConnected"
	case KindConnectionClosedDuringRead:
		return "ConnectionClosedDuringRead"
	case KindReadGenericIO:
		return "ReadGenericIO"
	case KindUnexpectedReadFailure:
		return "UnexpectedReadFailure"
	default:
		return "Unknown"
	}
}

// Error 是带类别的 socket 错误，经 on-error 通知或读请求续体对外报告。
type Error struct {
	Kind Kind
	err  error
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, err: E.New(message)}
}

func wrapError(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, err: E.Cause(cause, message)}
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}
