package observation

import (
	"strings"

	"github.com/wormhole-demo/attestor/internal/vaa"
	"github.com/wormhole-demo/attestor/internal/wire"
)

// Status is the outcome of a submitted observation.
type Status interface {
	wire.Variant
	isStatus()
}

// StatusPending means the observation was merged but its bucket is below quorum.
type StatusPending struct {
	Signatures uint8
	Quorum     uint8
}

// StatusCommitted means the message is committed with Digest.
// Body is only set on statuses returned by the aggregator; it is not part of
// the wire encoding.
type StatusCommitted struct {
	ID     vaa.MessageID
	Digest [32]byte
	Body   *vaa.Body `wire:"-"`
}

// StatusError carries a failure to a transport that cannot return errors.
type StatusError struct {
	Detail string
}

func (StatusPending) WireTag() uint8   { return 0 }
func (StatusCommitted) WireTag() uint8 { return 1 }
func (StatusError) WireTag() uint8     { return 2 }

func (StatusPending) isStatus()   {}
func (StatusCommitted) isStatus() {}
func (StatusError) isStatus()     {}

func init() {
	wire.RegisterEnum[Status](StatusPending{}, StatusCommitted{}, StatusError{})
}

// ErrorStatus renders err as a StatusError, truncating the detail to what the
// wire format can carry.
func ErrorStatus(err error) StatusError {
	d := err.Error()
	if len(d) > wire.MaxSequenceLen {
		d = strings.ToValidUTF8(d[:wire.MaxSequenceLen], "")
	}
	return StatusError{Detail: d}
}

// EncodeStatus returns the tagged wire encoding of s.
func EncodeStatus(s Status) ([]byte, error) {
	return wire.Marshal(&s)
}

func DecodeStatus(b []byte) (Status, error) {
	var s Status
	if err := wire.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return s, nil
}
