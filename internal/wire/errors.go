package wire

import "errors"

var (
	// ErrSequenceTooLarge is returned when a string, byte slice, slice or map
	// has more than MaxSequenceLen elements.
	ErrSequenceTooLarge = errors.New("sequence too large")

	// ErrTrailingData is returned by Unmarshal when bytes remain after the value was decoded.
	ErrTrailingData = errors.New("trailing data after decoded value")

	// ErrUnexpectedEOF is returned when the input ends inside a value.
	ErrUnexpectedEOF = errors.New("unexpected end of input")

	// ErrInvalidBool is returned for a bool byte other than 0 or 1.
	ErrInvalidBool = errors.New("invalid bool encoding")
	// ErrInvalidChar is returned for a surrogate or out of range Char.
	ErrInvalidChar = errors.New("invalid unicode scalar value")
	// ErrInvalidUTF8 is returned when a string is not valid UTF-8, on
	// encode as well as decode.
	ErrInvalidUTF8 = errors.New("invalid utf-8 in string")
	// ErrOptionNone is returned when encoding a nil pointer field.
	ErrOptionNone = errors.New("absent optional value cannot be encoded")
	// ErrUnsupportedType is returned for kinds the format has no encoding for.
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrNotAPointer is returned when a decode target is not a non-nil pointer.
	ErrNotAPointer = errors.New("decode target must be a non-nil pointer")
	// ErrUnknownVariant is returned when decoding a tag no variant is registered under.
	ErrUnknownVariant = errors.New("unknown enum variant tag")
	// ErrUnregisteredVariant is returned when encoding a variant type that was never registered.
	ErrUnregisteredVariant = errors.New("enum variant is not registered")
)
