package segment

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestSplitScenario reproduces spec §8 scenario 3: a 2500-byte C_PDU
// splits into four pieces of (800, 800, 800, 100) bytes.
func TestSplitScenario(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 2500)
	pieces := Split(payload)
	require.Len(t, pieces, 4)

	want := []struct {
		offset, size  int
		first, last bool
	}{
		{0, 800, true, false},
		{800, 800, false, false},
		{1600, 800, false, false},
		{2400, 100, false, true},
	}
	for i, w := range want {
		require.Equal(t, w.offset, pieces[i].Offset, "piece %d offset", i)
		require.Len(t, pieces[i].Data, w.size, "piece %d size", i)
		require.Equal(t, w.first, pieces[i].First, "piece %d first", i)
		require.Equal(t, w.last, pieces[i].Last, "piece %d last", i)
	}
}

func TestSplitSingleSegmentCarriesBothFlags(t *testing.T) {
	pieces := Split([]byte("hello"))
	require.Len(t, pieces, 1)
	require.True(t, pieces[0].First)
	require.True(t, pieces[0].Last)
}

func TestSplitExactBoundary(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01}, MaxSegmentSize)
	pieces := Split(payload)
	require.Len(t, pieces, 1)
	require.True(t, pieces[0].First)
	require.True(t, pieces[0].Last)

	payload = bytes.Repeat([]byte{0x01}, MaxSegmentSize+1)
	pieces = Split(payload)
	require.Len(t, pieces, 2)
	require.True(t, pieces[0].First)
	require.False(t, pieces[0].Last)
	require.False(t, pieces[1].First)
	require.True(t, pieces[1].Last)
}

// TestReassembleRoundTrip is the spec §8 "segmentation then reassembly
// is the identity" property, exercised across a range of sizes.
func TestReassembleRoundTrip(t *testing.T) {
	now := time.Unix(0, 0)
	for _, size := range []int{1, 799, 800, 801, 2500, 4096} {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i)
		}
		pieces := Split(payload)
		ra := NewReassembler(time.Minute)
		key := Key{Remote: 1, CPDUID: 42}
		var got []byte
		for i, p := range pieces {
			complete, done, err := ra.Put(key, size, p.Offset, p.Data, now)
			require.NoError(t, err)
			if i < len(pieces)-1 {
				require.False(t, done)
			} else {
				require.True(t, done)
				got = complete
			}
		}
		require.Equal(t, payload, got, "size=%d", size)
		require.Zero(t, ra.Pending())
	}
}

func TestReassembleOutOfOrder(t *testing.T) {
	now := time.Unix(0, 0)
	payload := bytes.Repeat([]byte{0xCC}, 2500)
	pieces := Split(payload)
	ra := NewReassembler(time.Minute)
	key := Key{Remote: 2, CPDUID: 7}

	// Deliver last piece first, then the rest in order.
	_, done, err := ra.Put(key, 2500, pieces[3].Offset, pieces[3].Data, now)
	require.NoError(t, err)
	require.False(t, done)
	for _, p := range pieces[:3] {
		complete, done, err := ra.Put(key, 2500, p.Offset, p.Data, now)
		require.NoError(t, err)
		if p.Offset == pieces[2].Offset {
			require.True(t, done)
			require.Equal(t, payload, complete)
		} else {
			require.False(t, done)
		}
	}
}

func TestReassembleTimeout(t *testing.T) {
	ra := NewReassembler(time.Second)
	start := time.Unix(0, 0)
	key := Key{Remote: 3, CPDUID: 1}
	_, done, err := ra.Put(key, 100, 0, make([]byte, 50), start)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, 1, ra.Pending())

	expired := ra.ExpireTimeouts(start.Add(2 * time.Second))
	require.Equal(t, []Key{key}, expired)
	require.Zero(t, ra.Pending())
}

func TestReassembleOffsetRangeRejected(t *testing.T) {
	ra := NewReassembler(time.Minute)
	key := Key{Remote: 4, CPDUID: 1}
	_, _, err := ra.Put(key, 100, 90, make([]byte, 20), time.Unix(0, 0))
	require.ErrorIs(t, err, ErrOffsetRange)
}
