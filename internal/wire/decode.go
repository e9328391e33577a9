package wire

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"unicode/utf8"
)

// Unmarshal decodes data into v, which must be a non-nil pointer.
// Every byte of data must be consumed; leftovers fail with ErrTrailingData.
func Unmarshal(data []byte, v any) error {
	rest, err := UnmarshalPrefix(data, v)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: %d bytes", ErrTrailingData, len(rest))
	}
	return nil
}

// UnmarshalPrefix decodes a value of v's type from the front of data
// and returns the bytes that follow it.
func UnmarshalPrefix(data []byte, v any) ([]byte, error) {
	d := NewDecoder(data)
	if err := d.Decode(v); err != nil {
		return nil, err
	}
	return d.Remaining(), nil
}

// Decoder reads wire encoded values from a byte slice.
type Decoder struct {
	data []byte
	off  int
}

// NewDecoder returns a Decoder reading from the start of data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Remaining returns the undecoded bytes. The slice aliases the input.
func (d *Decoder) Remaining() []byte {
	return d.data[d.off:]
}

// Len reports how many undecoded bytes are left.
func (d *Decoder) Len() int {
	return len(d.data) - d.off
}

// Decode reads the next value into v, which must be a non-nil pointer.
// On error the read position is left unchanged.
func (d *Decoder) Decode(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ErrNotAPointer
	}
	off := d.off
	if err := d.decode(rv.Elem()); err != nil {
		d.off = off
		return err
	}
	return nil
}

func (d *Decoder) take(n int) ([]byte, error) {
	if d.Len() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrUnexpectedEOF, n, d.Len())
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *Decoder) readByte() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) decode(v reflect.Value) error {
	t := v.Type()
	if t == charType {
		b, err := d.take(4)
		if err != nil {
			return err
		}
		r := binary.BigEndian.Uint32(b)
		if r > utf8.MaxRune || !utf8.ValidRune(rune(r)) {
			return fmt.Errorf("%w: %#x", ErrInvalidChar, r)
		}
		v.SetInt(int64(r))
		return nil
	}

	switch t.Kind() {
	case reflect.Bool:
		b, err := d.readByte()
		if err != nil {
			return err
		}
		switch b {
		case 0:
			v.SetBool(false)
		case 1:
			v.SetBool(true)
		default:
			return fmt.Errorf("%w: %d", ErrInvalidBool, b)
		}

	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := d.readUint(int(t.Size()))
		if err != nil {
			return err
		}
		// Sign-extend from the field width.
		shift := 64 - 8*t.Size()
		v.SetInt(int64(n<<shift) >> shift)

	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := d.readUint(int(t.Size()))
		if err != nil {
			return err
		}
		v.SetUint(n)

	case reflect.String:
		n, err := d.readByte()
		if err != nil {
			return err
		}
		b, err := d.take(int(n))
		if err != nil {
			return err
		}
		if !utf8.Valid(b) {
			return ErrInvalidUTF8
		}
		v.SetString(string(b))

	case reflect.Slice:
		n, err := d.readByte()
		if err != nil {
			return err
		}
		if t.Elem().Kind() == reflect.Uint8 {
			b, err := d.take(int(n))
			if err != nil {
				return err
			}
			s := reflect.MakeSlice(t, int(n), int(n))
			copyBytes(s, b)
			v.Set(s)
			return nil
		}
		s := reflect.MakeSlice(t, int(n), int(n))
		for i := range int(n) {
			if err := d.decode(s.Index(i)); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		v.Set(s)

	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			b, err := d.take(t.Len())
			if err != nil {
				return err
			}
			copyBytes(v, b)
			return nil
		}
		for i := range t.Len() {
			if err := d.decode(v.Index(i)); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}

	case reflect.Struct:
		for _, f := range wireFields(t) {
			if err := d.decode(v.Field(f.index)); err != nil {
				return fmt.Errorf("%s.%s: %w", t.Name(), f.name, err)
			}
		}

	case reflect.Map:
		n, err := d.readByte()
		if err != nil {
			return err
		}
		m := reflect.MakeMapWithSize(t, int(n))
		for range int(n) {
			k := reflect.New(t.Key()).Elem()
			if err := d.decode(k); err != nil {
				return fmt.Errorf("map key: %w", err)
			}
			val := reflect.New(t.Elem()).Elem()
			if err := d.decode(val); err != nil {
				return fmt.Errorf("map value: %w", err)
			}
			m.SetMapIndex(k, val)
		}
		v.Set(m)

	case reflect.Pointer:
		// Optional values are always present on the wire.
		p := reflect.New(t.Elem())
		if err := d.decode(p.Elem()); err != nil {
			return err
		}
		v.Set(p)

	case reflect.Interface:
		return d.decodeVariant(v)

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	return nil
}

var byteType = reflect.TypeFor[byte]()

// copyBytes fills a byte slice or addressable byte array.
// reflect.Copy only works when the element type is exactly byte.
func copyBytes(dst reflect.Value, b []byte) {
	if dst.Type().Elem() == byteType {
		reflect.Copy(dst, reflect.ValueOf(b))
		return
	}
	for i, c := range b {
		dst.Index(i).SetUint(uint64(c))
	}
}

func (d *Decoder) readUint(size int) (uint64, error) {
	b, err := d.take(size)
	if err != nil {
		return 0, err
	}
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n, nil
}

func (d *Decoder) decodeVariant(v reflect.Value) error {
	info, ok := lookupEnum(v.Type())
	if !ok {
		return fmt.Errorf("%w: interface %s is not a registered enum", ErrUnsupportedType, v.Type())
	}
	tag, err := d.readByte()
	if err != nil {
		return err
	}
	vt, ok := info.byTag[tag]
	if !ok {
		return fmt.Errorf("%w: %d for %s", ErrUnknownVariant, tag, v.Type())
	}
	inner := reflect.New(vt).Elem()
	if err := d.decode(inner); err != nil {
		return fmt.Errorf("%s: %w", vt.Name(), err)
	}
	if !inner.Type().Implements(v.Type()) {
		// Variant methods are declared on the pointer receiver.
		v.Set(inner.Addr())
		return nil
	}
	v.Set(inner)
	return nil
}
