package ts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadOnlyPacket(pid uint16, unitStart bool, cc byte, payload []byte) []byte {
	pkt := make([]byte, PacketSize)
	pkt[0] = SyncByte
	pkt[1] = byte((pid >> 8) & 0x1F)
	if unitStart {
		pkt[1] |= 0x40
	}
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | (cc & 0x0F) // adaptation_field_control = 01 (payload only)
	copy(pkt[4:], payload)
	return pkt
}

func TestValidate(t *testing.T) {
	pkt := payloadOnlyPacket(0x100, true, 0, []byte{0x01})
	assert.True(t, Validate(pkt))

	bad := append([]byte(nil), pkt...)
	bad[0] = 0x00
	assert.False(t, Validate(bad))

	assert.False(t, Validate(pkt[:100]))
}

func TestPIDAndUnitStartAndCC(t *testing.T) {
	pkt := payloadOnlyPacket(0x1FFF, true, 9, []byte{0xAA})
	assert.Equal(t, uint16(0x1FFF), PID(pkt))
	assert.True(t, UnitStart(pkt))
	assert.Equal(t, byte(9), CC(pkt))

	pkt2 := payloadOnlyPacket(0x0100, false, 3, nil)
	assert.False(t, UnitStart(pkt2))
	assert.Equal(t, uint16(0x0100), PID(pkt2))
}

func TestPayloadOffsetWithoutAdaptation(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	pkt := payloadOnlyPacket(0x20, true, 0, payload)
	got := Payload(pkt)
	require.Len(t, got, PacketSize-4)
	assert.Equal(t, payload, got[:len(payload)])
}

func TestPCRRoundTrip(t *testing.T) {
	pkt := make([]byte, PacketSize)
	pkt[0] = SyncByte
	pkt[1] = 0x00
	pkt[2] = 0x21 // pid 0x21
	pkt[3] = 0x30 // adaptation + payload, cc 0
	pkt[4] = 7    // adaptation_field_length
	pkt[5] = 0x10 // PCR_flag
	copy(pkt[6:12], []byte{0x00, 0x00, 0x01, 0xF4, 0x7E, 0x32})

	require.True(t, HasAdaptation(pkt))
	require.True(t, HasPCR(pkt))

	base, ext := PCR(pkt)
	assert.Equal(t, uint64(1000), base)
	assert.Equal(t, uint16(50), ext)
	assert.Equal(t, uint64(1000*300+50), PCRValue(base, ext))
}

func TestHasPCRFalseWithoutAdaptation(t *testing.T) {
	pkt := payloadOnlyPacket(0x21, false, 0, nil)
	assert.False(t, HasPCR(pkt))
}

func ptsPacket(pts int64) []byte {
	pes := make([]byte, 14)
	pes[0], pes[1], pes[2] = 0x00, 0x00, 0x01
	pes[3] = 0xE0 // video stream id
	pes[6] = 0x80
	pes[7] = 0x80 // PTS present, no DTS
	pes[8] = 5    // header data length

	b9 := byte(0x21 | (((pts >> 30) & 0x7) << 1))
	b10 := byte((pts >> 22) & 0xFF)
	b11 := byte((((pts >> 15) & 0x7F) << 1) | 0x01)
	b12 := byte((pts >> 7) & 0xFF)
	b13 := byte(((pts & 0x7F) << 1) | 0x01)
	copy(pes[9:14], []byte{b9, b10, b11, b12, b13})
	return pes
}

func TestPTSRoundTrip(t *testing.T) {
	pes := ptsPacket(90000)
	require.NoError(t, ValidatePESHeader(pes))
	require.True(t, HasPTS(pes))
	require.True(t, ValidatePTS(pes))
	assert.Equal(t, int64(90000), GetPTS(pes))
	assert.Equal(t, 5, HeaderDataLength(pes))
}

func TestValidatePTSRejectsBadMarkerBits(t *testing.T) {
	pes := ptsPacket(90000)
	pes[11] &^= 0x01 // clear a marker bit
	assert.False(t, ValidatePTS(pes))
}

func TestValidatePESHeaderRejectsBadPrefix(t *testing.T) {
	pes := ptsPacket(1)
	pes[2] = 0x00
	assert.Error(t, ValidatePESHeader(pes))
}

func TestPESPayloadOffset(t *testing.T) {
	pes := ptsPacket(1234)
	pes = append(pes, []byte{0x01, 0x02, 0x03}...)
	payload := PESPayload(pes)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, payload)
}
