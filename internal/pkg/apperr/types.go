package apperr

import (
	"errors"
	"fmt"
)

const (
	invalidArgumentCode     = "INVALID_ARGUMENT"
	notFoundCode            = "NOT_FOUND"
	internalErrorCode       = "INTERNAL_ERROR"
	transportCode           = "TRANSPORT_ERROR"
	decodeCode              = "DECODE_ERROR"
	watchCode               = "WATCH_ERROR"
	relayProcessCode        = "RELAY_PROCESS_ERROR"
	notificationStoreCode   = "NOTIFSTORE_ERROR"
	notificationStreamCode  = "NOTIFSTREAM_ERROR"
	unknownTopicCode        = "UNKNOWN_TOPIC"
	malformedFrameCode      = "MALFORMED_FRAME"
	invalidLengthCode       = "INVALID_LENGTH"
	invalidSequenceKindCode = "INVALID_SEQUENCE_KIND"
)

// Sentinel decode reasons. A *FrameDecodeErr matches exactly one of them
// through errors.Is.
var (
	ErrUnknownTopic        = errors.New("unknown topic")
	ErrMalformedFrame      = errors.New("malformed frame")
	ErrInvalidLength       = errors.New("invalid length")
	ErrInvalidSequenceKind = errors.New("invalid sequence kind")
)

type messageCause struct {
	Msg   string
	Cause error
}

func (e *messageCause) Message() string   { return e.Msg }
func (e *messageCause) CauseError() error { return e.Cause }
func (e *messageCause) Unwrap() error     { return e.Cause }

func formatError(code, msg string, cause error) string {
	if cause != nil {
		return fmt.Sprintf("[%s] %s: %v", code, msg, cause)
	}
	return fmt.Sprintf("[%s] %s", code, msg)
}

type InvalidArgErr struct {
	messageCause
}

func NewInvalidArgErr(msg string, cause error) *InvalidArgErr {
	return &InvalidArgErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *InvalidArgErr) Error() string { return formatError(invalidArgumentCode, e.Msg, e.Cause) }
func (e *InvalidArgErr) Code() string  { return invalidArgumentCode }

type NotFoundErr struct {
	messageCause
}

func NewNotFoundErr(msg string, cause error) *NotFoundErr {
	return &NotFoundErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *NotFoundErr) Error() string { return formatError(notFoundCode, e.Msg, e.Cause) }
func (e *NotFoundErr) Code() string  { return notFoundCode }

type InternalErr struct {
	messageCause
}

func NewInternalErr(msg string, cause error) *InternalErr {
	return &InternalErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *InternalErr) Error() string { return formatError(internalErrorCode, e.Msg, e.Cause) }
func (e *InternalErr) Code() string  { return internalErrorCode }

// TransportErr carries a failure reported by the pub/sub transport. Cause is
// the collaborator's error, untouched.
type TransportErr struct {
	messageCause
}

func NewTransportErr(msg string, cause error) *TransportErr {
	return &TransportErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *TransportErr) Error() string { return formatError(transportCode, e.Msg, e.Cause) }
func (e *TransportErr) Code() string  { return transportCode }

type WatchErr struct {
	messageCause
}

func NewWatchErr(msg string, cause error) *WatchErr {
	return &WatchErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *WatchErr) Error() string { return formatError(watchCode, e.Msg, e.Cause) }
func (e *WatchErr) Code() string  { return watchCode }

type RelayProcessErr struct {
	messageCause
}

func NewRelayProcessErr(msg string, cause error) *RelayProcessErr {
	return &RelayProcessErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *RelayProcessErr) Error() string { return formatError(relayProcessCode, e.Msg, e.Cause) }
func (e *RelayProcessErr) Code() string  { return relayProcessCode }

type NotificationStoreErr struct {
	messageCause
}

func NewNotificationStoreErr(msg string, cause error) *NotificationStoreErr {
	return &NotificationStoreErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *NotificationStoreErr) Error() string {
	return formatError(notificationStoreCode, e.Msg, e.Cause)
}
func (e *NotificationStoreErr) Code() string { return notificationStoreCode }

type NotificationStreamErr struct {
	messageCause
}

func NewNotificationStreamErr(msg string, cause error) *NotificationStreamErr {
	return &NotificationStreamErr{messageCause: messageCause{Msg: msg, Cause: cause}}
}

func (e *NotificationStreamErr) Error() string {
	return formatError(notificationStreamCode, e.Msg, e.Cause)
}
func (e *NotificationStreamErr) Code() string { return notificationStreamCode }

// FrameDecodeErr reports a multipart message that violates the wire layout of
// its topic. Reason is one of the sentinel decode errors; Expected and Actual
// hold part counts or byte lengths depending on the reason.
type FrameDecodeErr struct {
	messageCause
	Reason   error
	Topic    []byte
	TopicLen int
	Part     int
	Expected int
	Actual   int
}

func newFrameDecodeErr(reason error, msg string) *FrameDecodeErr {
	return &FrameDecodeErr{messageCause: messageCause{Msg: msg}, Reason: reason}
}

// NewUnknownTopicErr keeps at most maxLen bytes of the offending topic next to
// its full length.
func NewUnknownTopicErr(topic []byte, maxLen int) *FrameDecodeErr {
	n := len(topic)
	if n > maxLen {
		n = maxLen
	}
	e := newFrameDecodeErr(ErrUnknownTopic, fmt.Sprintf("unknown topic %q (len %d)", topic[:n], len(topic)))
	e.Topic = append([]byte(nil), topic[:n]...)
	e.TopicLen = len(topic)
	return e
}

func NewMalformedFrameErr(expected, actual int) *FrameDecodeErr {
	e := newFrameDecodeErr(ErrMalformedFrame, fmt.Sprintf("expected %d parts, got %d", expected, actual))
	e.Expected = expected
	e.Actual = actual
	return e
}

func NewInvalidLengthErr(topic string, part, expected, actual int) *FrameDecodeErr {
	e := newFrameDecodeErr(ErrInvalidLength, fmt.Sprintf("%s part %d: expected %d bytes, got %d", topic, part, expected, actual))
	e.Topic = []byte(topic)
	e.TopicLen = len(topic)
	e.Part = part
	e.Expected = expected
	e.Actual = actual
	return e
}

func NewInvalidSequenceKindErr(kind byte) *FrameDecodeErr {
	e := newFrameDecodeErr(ErrInvalidSequenceKind, fmt.Sprintf("sequence kind 0x%02x", kind))
	e.Actual = int(kind)
	return e
}

func (e *FrameDecodeErr) Error() string { return formatError(decodeCode, e.Reason.Error(), errors.New(e.Msg)) }

func (e *FrameDecodeErr) Code() string {
	switch e.Reason {
	case ErrUnknownTopic:
		return unknownTopicCode
	case ErrMalformedFrame:
		return malformedFrameCode
	case ErrInvalidLength:
		return invalidLengthCode
	case ErrInvalidSequenceKind:
		return invalidSequenceKindCode
	default:
		return decodeCode
	}
}

func (e *FrameDecodeErr) Is(target error) bool { return target == e.Reason }
