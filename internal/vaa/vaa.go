package vaa

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/wire"
)

// SupportedVersion is the only VAA version the core accepts.
const SupportedVersion uint8 = 1

const (
	// SignatureSize is guardian_index(1) + r(32) + s(32) + recovery_id(1).
	SignatureSize = 66
	// HeaderFixedSize is version(1) + guardian_set_index(4) + len(signatures)(1).
	HeaderFixedSize = 6
	// BodyHeaderSize is the size of the fixed body fields preceding the payload.
	BodyHeaderSize = 51
)

type (
	// Address is a 32-byte emitter address. Shorter native addresses are left padded.
	Address [32]byte

	ChainID uint16
)

// String returns the lowercase hex encoding without 0x prefix.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// AddressFromHex parses a hex string, with or without 0x prefix,
// left padding it to 32 bytes.
func AddressFromHex(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid hex address: %w", err)
	}
	if len(b) > len(a) {
		return a, fmt.Errorf("address too long: %d bytes", len(b))
	}
	copy(a[len(a)-len(b):], b)
	return a, nil
}

// Signature is one guardian's recoverable secp256k1 signature over a VAA digest.
type Signature struct {
	Index uint8
	R     [32]byte
	S     [32]byte
	V     uint8
}

// RSV returns the 65-byte r || s || v form expected by recovery primitives.
func (s Signature) RSV() []byte {
	out := make([]byte, 65)
	copy(out[:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	return out
}

// SignatureFromRSV builds a Signature for guardian index from a 65-byte r || s || v signature.
func SignatureFromRSV(index uint8, rsv []byte) (Signature, error) {
	if len(rsv) != 65 {
		return Signature{}, fmt.Errorf("signature must be 65 bytes, got %d", len(rsv))
	}
	sig := Signature{Index: index, V: rsv[64]}
	copy(sig.R[:], rsv[:32])
	copy(sig.S[:], rsv[32:64])
	return sig, nil
}

// Header carries the signatures of a VAA.
type Header struct {
	Version          uint8
	GuardianSetIndex uint32
	Signatures       []Signature
}

// BodyHeader holds the fixed-size body fields that precede the payload.
type BodyHeader struct {
	Timestamp        uint32
	Nonce            uint32
	EmitterChain     ChainID
	EmitterAddress   Address
	Sequence         uint64
	ConsistencyLevel uint8
}

// Body is the signed content of a VAA. Payload runs to the end of the body
// and has no length prefix.
type Body struct {
	BodyHeader
	Payload []byte
}

// VAA is a parsed Verified Action Approval.
type VAA struct {
	Header
	Body
}

// MessageID identifies a message independently of its content.
type MessageID struct {
	EmitterChain   ChainID
	EmitterAddress Address
	Sequence       uint64
}

// String renders the id as chain/emitter/sequence, the format used by guardians.
func (id MessageID) String() string {
	return fmt.Sprintf("%d/%s/%d", id.EmitterChain, id.EmitterAddress, id.Sequence)
}

// Key returns the canonical 42-byte storage key of the id.
func (id MessageID) Key() []byte {
	k := make([]byte, 0, 42)
	k = binary.BigEndian.AppendUint16(k, uint16(id.EmitterChain))
	k = append(k, id.EmitterAddress[:]...)
	return binary.BigEndian.AppendUint64(k, id.Sequence)
}

// ParseMessageID parses the chain/emitter/sequence form produced by String.
func ParseMessageID(s string) (MessageID, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return MessageID{}, fmt.Errorf("message id %q: expected chain/emitter/sequence", s)
	}
	return NewMessageID(parts[0], parts[1], parts[2])
}

// NewMessageID builds an id from its textual components.
func NewMessageID(chain, emitter, sequence string) (MessageID, error) {
	c, err := strconv.ParseUint(chain, 10, 16)
	if err != nil {
		return MessageID{}, fmt.Errorf("invalid chain %q: %w", chain, err)
	}
	addr, err := AddressFromHex(emitter)
	if err != nil {
		return MessageID{}, err
	}
	seq, err := strconv.ParseUint(sequence, 10, 64)
	if err != nil {
		return MessageID{}, fmt.Errorf("invalid sequence %q: %w", sequence, err)
	}
	return MessageID{EmitterChain: ChainID(c), EmitterAddress: addr, Sequence: seq}, nil
}

// MessageID returns the identity key of the body.
func (b *Body) MessageID() MessageID {
	return MessageID{
		EmitterChain:   b.EmitterChain,
		EmitterAddress: b.EmitterAddress,
		Sequence:       b.Sequence,
	}
}

// Time returns the body timestamp.
func (b *Body) Time() time.Time {
	return time.Unix(int64(b.Timestamp), 0)
}

// Marshal returns the serialized body: the fixed fields followed by the raw payload.
func (b *Body) Marshal() ([]byte, error) {
	e := wire.NewEncoder(make([]byte, 0, BodyHeaderSize+len(b.Payload)))
	if err := e.Encode(b.BodyHeader); err != nil {
		return nil, err
	}
	e.WriteRaw(b.Payload)
	return e.Bytes(), nil
}

// Digest returns the double keccak256 of the serialized body.
func (b *Body) Digest() ([32]byte, error) {
	raw, err := b.Marshal()
	if err != nil {
		return [32]byte{}, err
	}
	return Digest(raw), nil
}

// Digest computes keccak256(keccak256(body)). The result is both the message
// guardians sign and the replay-protection key of a committed message.
func Digest(body []byte) [32]byte {
	return crypto.Keccak256Hash(crypto.Keccak256(body))
}

// ParseBody decodes a serialized body; everything after the fixed fields is payload.
func ParseBody(data []byte) (*Body, error) {
	var b Body
	rest, err := wire.UnmarshalPrefix(data, &b.BodyHeader)
	if err != nil {
		return nil, coreerrors.WireData(err, "decode VAA body")
	}
	b.Payload = append([]byte(nil), rest...)
	return &b, nil
}

// Parse decodes a complete VAA. Only version 1 is accepted.
func Parse(data []byte) (*VAA, error) {
	if len(data) == 0 {
		return nil, coreerrors.WireData(wire.ErrUnexpectedEOF, "decode VAA header")
	}
	if data[0] != SupportedVersion {
		return nil, fmt.Errorf("%w: %d", coreerrors.ErrUnsupportedVersion, data[0])
	}

	var v VAA
	rest, err := wire.UnmarshalPrefix(data, &v.Header)
	if err != nil {
		return nil, coreerrors.WireData(err, "decode VAA header")
	}
	body, err := ParseBody(rest)
	if err != nil {
		return nil, err
	}
	v.Body = *body
	return &v, nil
}

// SplitBody returns the serialized body of a raw VAA without decoding its fields.
func SplitBody(data []byte) ([]byte, error) {
	var h Header
	rest, err := wire.UnmarshalPrefix(data, &h)
	if err != nil {
		return nil, coreerrors.WireData(err, "decode VAA header")
	}
	return rest, nil
}

// Marshal serializes the VAA: header, signatures and body.
func (v *VAA) Marshal() ([]byte, error) {
	e := wire.NewEncoder(make([]byte, 0, HeaderFixedSize+len(v.Signatures)*SignatureSize+BodyHeaderSize+len(v.Payload)))
	if err := e.Encode(v.Header); err != nil {
		return nil, err
	}
	if err := e.Encode(v.BodyHeader); err != nil {
		return nil, err
	}
	e.WriteRaw(v.Payload)
	return e.Bytes(), nil
}

// Digest is the body digest of the VAA.
func (v *VAA) Digest() ([32]byte, error) {
	return v.Body.Digest()
}
