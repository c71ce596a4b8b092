package updi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestDataLink(t *testing.T) (*DataLink, *fakeTarget) {
	t.Helper()
	ft := newFakeTarget()
	phy, err := newPhyWithTransport(ft, 50*time.Millisecond)
	require.NoError(t, err)
	dl, err := NewDataLink(phy, AddressMode24)
	require.NoError(t, err)
	return dl, ft
}

func TestDataLinkStLd(t *testing.T) {
	dl, _ := newTestDataLink(t)
	require.NoError(t, dl.st(0x1000, 0x42))
	got, err := dl.ld(0x1000)
	require.NoError(t, err)
	require.Equal(t, byte(0x42), got)
}

func TestDataLinkRepeatBoundaries(t *testing.T) {
	dl, _ := newTestDataLink(t)

	require.Error(t, dl.repeat(0))
	require.Error(t, dl.repeat(MaxRepeatUnits+1))
	require.NoError(t, dl.repeat(1))
	require.NoError(t, dl.repeat(MaxRepeatUnits))
}

func TestDataLinkPtrIncBurst(t *testing.T) {
	dl, _ := newTestDataLink(t)

	require.NoError(t, dl.stPtr(0x2000))
	payload := make([]byte, MaxRepeatUnits)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, dl.repeat(len(payload)))
	require.NoError(t, dl.stPtrInc(payload))

	require.NoError(t, dl.stPtr(0x2000))
	require.NoError(t, dl.repeat(len(payload)))
	readBack, err := dl.ldPtrInc(len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, readBack)
}

func TestDataLinkReadSIB(t *testing.T) {
	dl, ft := newTestDataLink(t)
	raw, err := dl.readSIB()
	require.NoError(t, err)
	require.Equal(t, ft.sib, raw)
}

func TestDataLinkKeyIsByteReversedOnWire(t *testing.T) {
	dl, ft := newTestDataLink(t)
	require.NoError(t, dl.key(KeySize64, keyNVMProg))
	require.NotZero(t, ft.keyState&(1<<asiKeyStatusNVMProg))
}
