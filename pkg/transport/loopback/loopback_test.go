package loopback

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hflink/stanag5066/pkg/transport"
)

func TestPairRoundTrip(t *testing.T) {
	a, b := Pair()
	defer a.Close()
	defer b.Close()

	done := make(chan struct{})
	go func() {
		n, err := a.WriteV([][]byte{[]byte("hel"), []byte("lo")})
		require.NoError(t, err)
		require.Equal(t, 5, n)
		close(done)
	}()

	// WriteV issues one pipe write per iov, and a single Read returns at
	// most one write's bytes, so read until all five have arrived.
	buf := make([]byte, 5)
	n, err := io.ReadFull(b, buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))
	<-done
}

func TestReadinessWaitsForWantedEvents(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(1, transport.EventReadable))

	r.MarkReady(1, transport.EventWritable) // not wanted yet
	events, err := r.Wait(20 * time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, events)

	r.MarkReady(1, transport.EventReadable)
	events, err = r.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, 1, events[0].Fd)
	require.Equal(t, transport.EventReadable, events[0].Events)
}

func TestReadinessModifyChangesWant(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(2, transport.EventReadable))
	require.NoError(t, r.Modify(2, transport.EventWritable))

	r.MarkReady(2, transport.EventReadable)
	events, err := r.Wait(20 * time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, events)

	r.MarkReady(2, transport.EventWritable)
	events, err = r.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestReadinessRemoveDropsPending(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(3, transport.EventReadable))
	r.MarkReady(3, transport.EventReadable)
	require.NoError(t, r.Remove(3))

	events, err := r.Wait(20 * time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, events)
}
