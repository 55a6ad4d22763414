// Package ts implements the small, pure fixed-layout byte parsers this
// simulator treats as external collaborators: TS packet header fields, the
// adaptation field's PCR, and the PES header's optional PTS. Bit-level
// extraction is adapted from the general-purpose buffer.BitReader cursor;
// the marker-bit layout of the 5-byte PTS field is quoted directly from the
// ISO/IEC 13818-1 syntax the original simulator implements.
package ts

import (
	"fmt"

	"github.com/dvbsim/receiver/internal/buffer"
)

// PacketSize is the fixed size of one MPEG-2 Transport Stream packet.
const PacketSize = 188

// SyncByte is the required value of byte 0 of every TS packet.
const SyncByte = 0x47

// Validate reports whether pkt looks like a TS packet: correct length and
// sync byte.
func Validate(pkt []byte) bool {
	return len(pkt) == PacketSize && pkt[0] == SyncByte
}

// PID returns the 13-bit packet identifier.
func PID(pkt []byte) uint16 {
	return (uint16(pkt[1]&0x1F) << 8) | uint16(pkt[2])
}

// UnitStart reports the payload_unit_start_indicator bit.
func UnitStart(pkt []byte) bool {
	return pkt[1]&0x40 != 0
}

// HasAdaptation reports whether the adaptation_field_control bits indicate
// an adaptation field is present (values 10 or 11).
func HasAdaptation(pkt []byte) bool {
	return pkt[3]&0x20 != 0
}

// HasPayload reports whether the adaptation_field_control bits indicate a
// payload is present (values 01 or 11).
func HasPayload(pkt []byte) bool {
	return pkt[3]&0x10 != 0
}

// CC returns the 4-bit continuity counter.
func CC(pkt []byte) byte {
	return pkt[3] & 0x0F
}

func adaptationLength(pkt []byte) int {
	if !HasAdaptation(pkt) {
		return 0
	}
	return int(pkt[4])
}

// Payload returns the slice of pkt following the 4-byte header and any
// adaptation field. Returns nil if the packet declares no payload or the
// adaptation length overruns the packet.
func Payload(pkt []byte) []byte {
	if !HasPayload(pkt) {
		return nil
	}
	offset := 4
	if HasAdaptation(pkt) {
		offset += 1 + adaptationLength(pkt)
	}
	if offset > len(pkt) {
		return nil
	}
	return pkt[offset:]
}

// HasPCR reports whether the adaptation field carries a PCR_flag.
func HasPCR(pkt []byte) bool {
	if !HasAdaptation(pkt) || adaptationLength(pkt) < 1 {
		return false
	}
	flags := pkt[5]
	return flags&0x10 != 0
}

// PCR returns the program clock reference as (base, ext) — base in units of
// 1/90000s (33 bits), ext in units of 1/27000000s (9 bits). Only valid when
// HasPCR(pkt) is true.
func PCR(pkt []byte) (base uint64, ext uint16) {
	br := buffer.NewBitReader(pkt[6:12])
	base, _ = br.ReadBits(33)
	br.SkipBits(6)
	e, _ := br.ReadBits(9)
	return base, uint16(e)
}

// PCRValue combines base and ext into the integer 27MHz tick count the Stc
// module works in: pcr = base*300 + ext.
func PCRValue(base uint64, ext uint16) uint64 {
	return base*300 + uint64(ext)
}

// PES start-code prefix, always "00 00 01".
var pesStartPrefix = [3]byte{0x00, 0x00, 0x01}

// ValidatePESHeader checks the minimum start-code prefix and that the
// buffer is long enough to contain a fixed PES header.
func ValidatePESHeader(pes []byte) error {
	if len(pes) < 9 {
		return fmt.Errorf("pes header too short: %d bytes", len(pes))
	}
	if pes[0] != pesStartPrefix[0] || pes[1] != pesStartPrefix[1] || pes[2] != pesStartPrefix[2] {
		return fmt.Errorf("pes start code prefix mismatch")
	}
	return nil
}

// HasPTS reports whether the PES header's PTS_DTS_flags indicate a PTS is
// present (values 10 or 11 in the top two bits of byte 7).
func HasPTS(pes []byte) bool {
	if len(pes) < 8 {
		return false
	}
	return pes[7]&0x80 != 0
}

// HeaderDataLength returns the PES_header_data_length byte (byte 8), the
// count of bytes following it that make up the optional fields.
func HeaderDataLength(pes []byte) int {
	if len(pes) < 9 {
		return 0
	}
	return int(pes[8])
}

// ValidatePTS checks the marker layout of the 5-byte PTS field starting at
// byte 9: the leading '0010' nibble for PTS-only (or '0011' for PTS+DTS)
// and the three marker_bit('1') positions.
func ValidatePTS(pes []byte) bool {
	if len(pes) < 14 {
		return false
	}
	top := pes[9] >> 4
	if top != 0x2 && top != 0x3 {
		return false
	}
	if pes[9]&0x01 == 0 {
		return false
	}
	if pes[11]&0x01 == 0 {
		return false
	}
	if pes[13]&0x01 == 0 {
		return false
	}
	return true
}

// GetPTS extracts the 33-bit, 90kHz PTS from the 5-byte field at byte 9.
// Only valid when ValidatePTS(pes) is true.
func GetPTS(pes []byte) int64 {
	b9, b10, b11, b12, b13 := pes[9], pes[10], pes[11], pes[12], pes[13]
	pts := (int64(b9&0x0E) << 29) |
		(int64(b10) << 22) |
		(int64(b11&0xFE) << 14) |
		(int64(b12) << 7) |
		int64(b13>>1)
	return pts
}

// Payload returns the elementary stream payload that follows the optional
// PES header fields.
func PESPayload(pes []byte) []byte {
	offset := 9 + HeaderDataLength(pes)
	if offset > len(pes) {
		return nil
	}
	return pes[offset:]
}
