package wire

import (
	"math/big"
	"reflect"
	"sync"
)

// MaxSequenceLen is the largest length a u8 length prefix can carry.
const MaxSequenceLen = 255

// Char is a Unicode scalar value, encoded as a big-endian u32.
// Decoding rejects surrogates and values above U+10FFFF.
type Char rune

// Uint128 is an unsigned 128-bit integer encoded as 16 big-endian bytes.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// Big returns u as a big.Int.
func (u Uint128) Big() *big.Int {
	b := new(big.Int).SetUint64(u.Hi)
	b.Lsh(b, 64)
	return b.Or(b, new(big.Int).SetUint64(u.Lo))
}

// Int128 is a signed 128-bit two's complement integer encoded as 16 big-endian bytes.
type Int128 struct {
	Hi int64
	Lo uint64
}

// Big returns i as a big.Int.
func (i Int128) Big() *big.Int {
	b := big.NewInt(i.Hi)
	b.Lsh(b, 64)
	return b.Add(b, new(big.Int).SetUint64(i.Lo))
}

var charType = reflect.TypeFor[Char]()

// Variant is implemented by every member of a tagged union.
// The tag is the single discriminant byte written before the variant's own encoding.
type Variant interface {
	WireTag() uint8
}

type enumInfo struct {
	byTag  map[uint8]reflect.Type
	byType map[reflect.Type]uint8
}

var (
	enumsMu sync.RWMutex
	enums   = make(map[reflect.Type]*enumInfo)
)

// RegisterEnum declares the interface type T as a tagged union made of variants.
// Fields and values of type T are then encoded as the variant's tag followed by
// the variant's own encoding: nothing for unit (empty struct) variants, the inner
// value for newtype variants and the member concatenation for struct variants.
//
// RegisterEnum panics on programmer errors (non-interface T, nil or duplicate variants),
// so it is meant to be called from package init.
func RegisterEnum[T Variant](variants ...T) {
	it := reflect.TypeFor[T]()
	if it.Kind() != reflect.Interface {
		panic("wire: RegisterEnum requires an interface type, got " + it.String())
	}

	info := &enumInfo{
		byTag:  make(map[uint8]reflect.Type, len(variants)),
		byType: make(map[reflect.Type]uint8, len(variants)),
	}
	for _, v := range variants {
		rt := reflect.TypeOf(v)
		if rt == nil {
			panic("wire: nil variant registered for " + it.String())
		}
		if rt.Kind() == reflect.Pointer {
			rt = rt.Elem()
		}
		tag := v.WireTag()
		if prev, ok := info.byTag[tag]; ok {
			panic("wire: tag collision between " + prev.String() + " and " + rt.String())
		}
		info.byTag[tag] = rt
		info.byType[rt] = tag
	}

	enumsMu.Lock()
	defer enumsMu.Unlock()
	enums[it] = info
}

func lookupEnum(t reflect.Type) (*enumInfo, bool) {
	enumsMu.RLock()
	defer enumsMu.RUnlock()
	info, ok := enums[t]
	return info, ok
}

type structField struct {
	index int
	name  string
}

var fieldCache sync.Map // reflect.Type -> []structField

// wireFields returns the exported struct fields that take part in encoding,
// in declaration order. Fields tagged `wire:"-"` are skipped.
func wireFields(t reflect.Type) []structField {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]structField)
	}
	fields := make([]structField, 0, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("wire") == "-" {
			continue
		}
		fields = append(fields, structField{index: i, name: f.Name})
	}
	fieldCache.Store(t, fields)
	return fields
}
