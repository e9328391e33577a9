package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
	"slices"
	"unicode/utf8"
)

// Marshal returns the wire encoding of v.
func Marshal(v any) ([]byte, error) {
	e := NewEncoder(nil)
	if err := e.Encode(v); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// Encoder appends wire encodings to a byte buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder that appends to dst.
func NewEncoder(dst []byte) *Encoder {
	return &Encoder{buf: dst}
}

// Bytes returns the encoded bytes so far.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Encode appends the encoding of v.
// On error the buffer is left as it was before the call.
func (e *Encoder) Encode(v any) error {
	if v == nil {
		return ErrOptionNone
	}
	n := len(e.buf)
	if err := e.encode(reflect.ValueOf(v)); err != nil {
		e.buf = e.buf[:n]
		return err
	}
	return nil
}

// WriteRaw appends b without any length prefix.
// It is used for un-typed trailing payloads.
func (e *Encoder) WriteRaw(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *Encoder) encode(v reflect.Value) error {
	t := v.Type()
	if t == charType {
		r := rune(v.Int())
		if !utf8.ValidRune(r) {
			return fmt.Errorf("%w: %#x", ErrInvalidChar, r)
		}
		e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(r))
		return nil
	}

	switch t.Kind() {
	case reflect.Bool:
		if v.Bool() {
			e.buf = append(e.buf, 1)
		} else {
			e.buf = append(e.buf, 0)
		}
	case reflect.Int8:
		e.buf = append(e.buf, byte(v.Int()))
	case reflect.Int16:
		e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(v.Int()))
	case reflect.Int32:
		e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(v.Int()))
	case reflect.Int64:
		e.buf = binary.BigEndian.AppendUint64(e.buf, uint64(v.Int()))
	case reflect.Uint8:
		e.buf = append(e.buf, byte(v.Uint()))
	case reflect.Uint16:
		e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(v.Uint()))
	case reflect.Uint32:
		e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(v.Uint()))
	case reflect.Uint64:
		e.buf = binary.BigEndian.AppendUint64(e.buf, v.Uint())

	case reflect.String:
		s := v.String()
		if len(s) > MaxSequenceLen {
			return fmt.Errorf("%w: string of %d bytes", ErrSequenceTooLarge, len(s))
		}
		if !utf8.ValidString(s) {
			return ErrInvalidUTF8
		}
		e.buf = append(e.buf, byte(len(s)))
		e.buf = append(e.buf, s...)

	case reflect.Slice:
		n := v.Len()
		if n > MaxSequenceLen {
			return fmt.Errorf("%w: %s of %d elements", ErrSequenceTooLarge, t, n)
		}
		e.buf = append(e.buf, byte(n))
		return e.encodeElems(v)

	case reflect.Array:
		return e.encodeElems(v)

	case reflect.Struct:
		for _, f := range wireFields(t) {
			if err := e.encode(v.Field(f.index)); err != nil {
				return fmt.Errorf("%s.%s: %w", t.Name(), f.name, err)
			}
		}

	case reflect.Map:
		return e.encodeMap(v)

	case reflect.Pointer:
		if v.IsNil() {
			return fmt.Errorf("%w: nil %s", ErrOptionNone, t)
		}
		return e.encode(v.Elem())

	case reflect.Interface:
		return e.encodeVariant(v)

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	return nil
}

func (e *Encoder) encodeElems(v reflect.Value) error {
	if v.Type().Elem().Kind() == reflect.Uint8 {
		if v.Kind() == reflect.Slice {
			e.buf = append(e.buf, v.Bytes()...)
			return nil
		}
		for i := range v.Len() {
			e.buf = append(e.buf, byte(v.Index(i).Uint()))
		}
		return nil
	}
	for i := range v.Len() {
		if err := e.encode(v.Index(i)); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

func (e *Encoder) encodeMap(v reflect.Value) error {
	n := v.Len()
	if n > MaxSequenceLen {
		return fmt.Errorf("%w: map of %d entries", ErrSequenceTooLarge, n)
	}

	// Go map iteration order is random, so entries are written
	// in ascending order of their encoded keys.
	type entry struct {
		key []byte
		val reflect.Value
	}
	entries := make([]entry, 0, n)
	iter := v.MapRange()
	for iter.Next() {
		ke := NewEncoder(nil)
		if err := ke.encode(iter.Key()); err != nil {
			return fmt.Errorf("map key: %w", err)
		}
		entries = append(entries, entry{key: ke.buf, val: iter.Value()})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		return bytes.Compare(a.key, b.key)
	})

	e.buf = append(e.buf, byte(n))
	for _, ent := range entries {
		e.buf = append(e.buf, ent.key...)
		if err := e.encode(ent.val); err != nil {
			return fmt.Errorf("map value: %w", err)
		}
	}
	return nil
}

func (e *Encoder) encodeVariant(v reflect.Value) error {
	info, ok := lookupEnum(v.Type())
	if !ok {
		return fmt.Errorf("%w: interface %s is not a registered enum", ErrUnsupportedType, v.Type())
	}
	if v.IsNil() {
		return fmt.Errorf("%w: nil %s", ErrOptionNone, v.Type())
	}
	inner := v.Elem()
	if inner.Kind() == reflect.Pointer {
		if inner.IsNil() {
			return fmt.Errorf("%w: nil %s", ErrOptionNone, inner.Type())
		}
		inner = inner.Elem()
	}
	tag, ok := info.byType[inner.Type()]
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrUnregisteredVariant, inner.Type(), v.Type())
	}
	e.buf = append(e.buf, tag)
	return e.encode(inner)
}
