package playback

import (
	"github.com/turntable-fm/playback/internal/errors"
)

// ComponentPlayback identifies errors raised by this package.
const ComponentPlayback = "playback"

// InputErrorKind is the taxonomy raised by the Input/provider layer, before
// a Sink exists. It never reaches the Timeline; callers of fetch/loadable
// surface it directly (e.g. mapped to an HTTP status by a server layer).
type InputErrorKind int

const (
	InputErrorUnknown InputErrorKind = iota
	InputErrorNotFound
	InputErrorNoMatch
	InputErrorUnsupportedType
	InputErrorNetworkFailed
	InputErrorParseError
	InputErrorInvalid
	InputErrorOther
)

// httpStatusHint maps an InputErrorKind to the status code a server layer
// should use, per the mapping table in the external interfaces contract.
var httpStatusHint = map[InputErrorKind]int{
	InputErrorNotFound:        404,
	InputErrorNoMatch:         400,
	InputErrorUnsupportedType: 400,
	InputErrorInvalid:         400,
	InputErrorNetworkFailed:   500,
	InputErrorParseError:      500,
	InputErrorOther:           500,
	InputErrorUnknown:         500,
}

// NewInputError builds an InputError of the given kind. msg overrides the
// default message for InputErrorParseError and InputErrorOther; it may be
// empty for the other kinds.
func NewInputError(kind InputErrorKind, msg string) *errors.EnhancedError {
	if msg == "" {
		msg = inputErrorKindText(kind)
	}
	return errors.Newf("%s", msg).
		Component(ComponentPlayback).
		Category(errors.CategoryInput).
		Context("input_error_kind", int(kind)).
		Context("http_status", httpStatusHint[kind]).
		Build()
}

func inputErrorKindText(kind InputErrorKind) string {
	switch kind {
	case InputErrorNotFound:
		return "input type is supported but resource was not found"
	case InputErrorNoMatch:
		return "input did not match"
	case InputErrorUnsupportedType:
		return "unsupported input type"
	case InputErrorNetworkFailed:
		return "failed to fetch resource"
	case InputErrorParseError:
		return "failed to parse resource"
	case InputErrorInvalid:
		return "resource is invalid"
	case InputErrorOther:
		return "input error"
	default:
		return "an unknown error occurred"
	}
}
