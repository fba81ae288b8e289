package rtp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, ssrc uint32) *TransportContext {
	t.Helper()
	tc, err := NewTransportContext(ssrc, MediaDescription{
		Media:       "video",
		PayloadType: 26,
		Encoding:    "JPEG",
		ClockRate:   90000,
		Control:     "video",
	})
	require.NoError(t, err)
	return tc
}

func TestNextSequence(t *testing.T) {
	tests := []struct {
		name    string
		current uint16
		want    uint16
	}{
		{name: "from zero", current: 0, want: 1},
		{name: "mid range", current: 1000, want: 1001},
		{name: "one before max", current: math.MaxUint16 - 1, want: math.MaxUint16},
		{name: "wraps at max", current: math.MaxUint16, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestContext(t, 1)
			tc.SequenceNumber = tt.current

			assert.Equal(t, tt.want, NextSequence(tc))
			assert.Equal(t, tt.want, tc.SequenceNumber)
		})
	}
}

func TestNextSequence_ContiguousAcrossWrap(t *testing.T) {
	tc := newTestContext(t, 1)
	tc.SequenceNumber = math.MaxUint16 - 10

	prev := tc.SequenceNumber
	for i := 0; i < 100; i++ {
		next := NextSequence(tc)
		assert.Equal(t, prev+1, next, "uint16 arithmetic wraps contiguously")
		prev = next
	}
}

func TestAdvanceTimestamp(t *testing.T) {
	tc := newTestContext(t, 1)

	assert.Equal(t, uint32(9000), TimestampIncrement(9))
	assert.Equal(t, uint32(9000), AdvanceTimestamp(tc, 9))
	assert.Equal(t, uint32(18000), AdvanceTimestamp(tc, 9))
	assert.Equal(t, uint32(18000), tc.RTPTimestamp)

	tc.RTPTimestamp = math.MaxUint32 - 999
	assert.Equal(t, uint32(8000), AdvanceTimestamp(tc, 9), "accumulator wraps modulo 2^32")
}

func TestStamp(t *testing.T) {
	tc := newTestContext(t, 0x1111)
	tc.RTPTimestamp = 27000
	tc.SequenceNumber = 41

	p := NewPacket(26, []byte{1}, false)
	p.SSRC = 0x2222

	Stamp(p, tc, 0x3333)

	assert.Equal(t, uint32(0x3333), p.SSRC, "packet is relabelled with the sender's SSRC")
	assert.Equal(t, uint32(27000), p.Timestamp)
	assert.Equal(t, uint16(42), p.SequenceNumber)
	assert.Equal(t, uint16(42), tc.SequenceNumber)
}
