// Package wire implements the packet codec and checksum for the reliable
// datagram transport: a data packet carrying a fragment of the byte stream,
// and an ack packet carrying the receiver's cumulative-ack state.
//
// Encoding is JSON over a single UDP datagram per packet. The checksum
// covers the packet with its own checksum field nulled out, so encoding
// must be deterministic: structs are marshaled in field-declaration order
// by encoding/json, never via a map, whose key order is not stable.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/crc32"
)

// EOFToken is the wire token used for the distinguished "end of stream"
// acknowledged-packet value, in place of a sequence number.
const EOFToken = "eof"

// DataPacket carries a fragment of the input stream, or — when EOF is set —
// the end-of-stream marker (empty payload, one past the last data sequence
// number).
type DataPacket struct {
	SequenceNumber uint32  `json:"sequence_number"`
	Data           string  `json:"data"`
	EOF            bool    `json:"eof"`
	Checksum       *uint32 `json:"cksum"`
}

// NewDataPacket builds an unchecksummed data packet for payload at seq.
func NewDataPacket(seq uint32, payload []byte) *DataPacket {
	return &DataPacket{
		SequenceNumber: seq,
		Data:           base64.StdEncoding.EncodeToString(payload),
		EOF:            false,
	}
}

// NewEOFPacket builds the unchecksummed end-of-stream marker for seq.
func NewEOFPacket(seq uint32) *DataPacket {
	return &DataPacket{
		SequenceNumber: seq,
		Data:           "",
		EOF:            true,
	}
}

// Payload decodes the base64 data field.
func (p *DataPacket) Payload() ([]byte, error) {
	if p.Data == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(p.Data)
}

// Sign computes and attaches the checksum.
func (p *DataPacket) Sign() {
	sum := p.computeChecksum()
	p.Checksum = &sum
}

// Verify reports whether the attached checksum matches the computed one. A
// missing checksum field always fails verification.
func (p *DataPacket) Verify() bool {
	if p.Checksum == nil {
		return false
	}
	return *p.Checksum == p.computeChecksum()
}

func (p *DataPacket) computeChecksum() uint32 {
	shadow := *p
	shadow.Checksum = nil
	b, err := json.Marshal(&shadow)
	if err != nil {
		// Marshaling a DataPacket never fails: every field is a plain
		// string, bool, uint32, or nil pointer.
		panic(fmt.Sprintf("wire: marshaling data packet for checksum: %v", err))
	}
	return crc32.ChecksumIEEE(b)
}

// Encode serializes the packet for transmission on the wire.
func (p *DataPacket) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodeDataPacket parses a datagram into a DataPacket. It does not verify
// the checksum; call Verify separately.
func DecodeDataPacket(b []byte) (*DataPacket, error) {
	var p DataPacket
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("wire: decoding data packet: %w", err)
	}
	return &p, nil
}

// AckTarget is the tagged union the acknowledged-packet field carries:
// either a cumulative sequence number, or the end-of-stream sentinel.
type AckTarget struct {
	eof bool
	n   uint32
}

// Cumulative builds an AckTarget acknowledging every sequence number up to
// and including n.
func Cumulative(n uint32) AckTarget {
	return AckTarget{n: n}
}

// EndOfStream builds the end-of-stream AckTarget.
func EndOfStream() AckTarget {
	return AckTarget{eof: true}
}

// IsEOF reports whether this is the end-of-stream sentinel.
func (a AckTarget) IsEOF() bool {
	return a.eof
}

// N returns the acknowledged sequence number. It is meaningless when IsEOF
// is true.
func (a AckTarget) N() uint32 {
	return a.n
}

func (a AckTarget) marshalValue() (json.RawMessage, error) {
	if a.eof {
		return json.RawMessage(`"` + EOFToken + `"`), nil
	}
	return json.Marshal(a.n)
}

// AckPacket is the receiver's cumulative acknowledgement.
type AckPacket struct {
	Acknowledged AckTarget
	Checksum     *uint32
}

// NewAckPacket builds an unchecksummed ack packet.
func NewAckPacket(target AckTarget) *AckPacket {
	return &AckPacket{Acknowledged: target}
}

// ackWire is the on-the-wire shape of AckPacket: acknowledged is a JSON
// number for a cumulative ack, or the literal string "eof".
type ackWire struct {
	Acknowledged json.RawMessage `json:"acknowledged"`
	Checksum     *uint32         `json:"cksum"`
}

func (p *AckPacket) toWire() (ackWire, error) {
	raw, err := p.Acknowledged.marshalValue()
	if err != nil {
		return ackWire{}, err
	}
	return ackWire{Acknowledged: raw, Checksum: p.Checksum}, nil
}

// MarshalJSON implements json.Marshaler with a stable field order
// (acknowledged, then cksum) so the checksum is reproducible.
func (p *AckPacket) MarshalJSON() ([]byte, error) {
	w, err := p.toWire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler, accepting either a number or
// the literal "eof" string for acknowledged.
func (p *AckPacket) UnmarshalJSON(b []byte) error {
	var w ackWire
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("wire: decoding ack packet: %w", err)
	}
	p.Checksum = w.Checksum

	var token string
	if err := json.Unmarshal(w.Acknowledged, &token); err == nil {
		if token != EOFToken {
			return fmt.Errorf("wire: unrecognized acknowledged token %q", token)
		}
		p.Acknowledged = EndOfStream()
		return nil
	}

	var n uint32
	if err := json.Unmarshal(w.Acknowledged, &n); err != nil {
		return fmt.Errorf("wire: acknowledged field is neither a number nor %q: %w", EOFToken, err)
	}
	p.Acknowledged = Cumulative(n)
	return nil
}

// Sign computes and attaches the checksum.
func (p *AckPacket) Sign() {
	sum := p.computeChecksum()
	p.Checksum = &sum
}

// Verify reports whether the attached checksum matches the computed one.
func (p *AckPacket) Verify() bool {
	if p.Checksum == nil {
		return false
	}
	return *p.Checksum == p.computeChecksum()
}

func (p *AckPacket) computeChecksum() uint32 {
	shadow := &AckPacket{Acknowledged: p.Acknowledged, Checksum: nil}
	b, err := json.Marshal(shadow)
	if err != nil {
		panic(fmt.Sprintf("wire: marshaling ack packet for checksum: %v", err))
	}
	return crc32.ChecksumIEEE(b)
}

// Encode serializes the packet for transmission on the wire.
func (p *AckPacket) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodeAckPacket parses a datagram into an AckPacket. It does not verify
// the checksum; call Verify separately.
func DecodeAckPacket(b []byte) (*AckPacket, error) {
	var p AckPacket
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("wire: decoding ack packet: %w", err)
	}
	return &p, nil
}
