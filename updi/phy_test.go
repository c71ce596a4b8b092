package updi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPhyEchoInvariant(t *testing.T) {
	ft := newFakeTarget()
	phy, err := newPhyWithTransport(ft, 50*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, phy.send([]byte{0x12, 0x34}))
	require.Equal(t, 1, ft.breaks)
}

func TestPhyEchoMismatchIsProtocolFault(t *testing.T) {
	ft := newFakeTarget()
	phy, err := newPhyWithTransport(ft, 50*time.Millisecond)
	require.NoError(t, err)

	// Corrupt the next echo so it no longer matches what was written.
	ft.rxBuf = []byte{0xFF}
	err = phy.send([]byte{0x01})
	require.Error(t, err)
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, KindProtocol, uerr.Kind)
}

func TestPhyDoubleBreakRecoveryFlushesAndResyncs(t *testing.T) {
	ft := newFakeTarget()
	phy, err := newPhyWithTransport(ft, 50*time.Millisecond)
	require.NoError(t, err)

	before := ft.breaks
	require.NoError(t, phy.sendDoubleBreak())
	require.Equal(t, before+2, ft.breaks)
}
