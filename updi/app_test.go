package updi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testTarget struct {
	sigrow     uint32
	expectedID uint32
}

func (t testTarget) SigrowAddress() uint32    { return t.sigrow }
func (t testTarget) SyscfgAddress() uint32    { return 0x0F00 }
func (t testTarget) NvmctrlAddress() uint32   { return 0x1000 }
func (t testTarget) FusesAddress() uint32     { return 0x1280 }
func (t testTarget) UserrowAddress() uint32   { return 0x1300 }
func (t testTarget) FlashStart() uint32       { return 0x8000 }
func (t testTarget) FlashSize() uint32        { return 8192 }
func (t testTarget) FlashPageSize() uint32    { return 64 }
func (t testTarget) ExpectedDeviceID() uint32 { return t.expectedID }

func newTestSession(t *testing.T) (*Session, *fakeTarget) {
	t.Helper()
	ft := newFakeTarget()
	phy, err := newPhyWithTransport(ft, 50*time.Millisecond)
	require.NoError(t, err)
	target := testTarget{sigrow: 0x1100, expectedID: 0x1E9327}
	s, err := newSession(phy, target)
	require.NoError(t, err)
	return s, ft
}

func TestSessionOpenDecodesSIBAndPicksP0Driver(t *testing.T) {
	s, _ := newTestSession(t)
	require.Equal(t, "0", s.SIB.NVM)
	require.IsType(t, &NvmP0{}, s.nvm)
}

func TestSessionEnterAndLeaveProgMode(t *testing.T) {
	s, _ := newTestSession(t)

	inProg, err := s.InProgMode()
	require.NoError(t, err)
	require.False(t, inProg)

	require.NoError(t, s.EnterProgMode())
	inProg, err = s.InProgMode()
	require.NoError(t, err)
	require.True(t, inProg)

	// Idempotent.
	require.NoError(t, s.EnterProgMode())

	require.NoError(t, s.LeaveProgMode())
}

func TestSessionReadSignatureMatchesExpected(t *testing.T) {
	s, ft := newTestSession(t)
	ft.writeMem(0x1100, 0x27)
	ft.writeMem(0x1101, 0x93)
	ft.writeMem(0x1102, 0x1E)

	require.NoError(t, s.EnterProgMode())
	sig, err := s.ReadSignature()
	require.NoError(t, err)
	require.Equal(t, [3]byte{0x27, 0x93, 0x1E}, sig)
}

func TestSessionReadSignatureMismatchErrors(t *testing.T) {
	s, ft := newTestSession(t)
	ft.writeMem(0x1100, 0x00)
	ft.writeMem(0x1101, 0x00)
	ft.writeMem(0x1102, 0x00)

	require.NoError(t, s.EnterProgMode())
	_, err := s.ReadSignature()
	require.Error(t, err)
}

func TestSessionUnlockByChipEraseClearsLock(t *testing.T) {
	s, ft := newTestSession(t)
	ft.writeMem(0x8000, 0xAA) // pretend flash holds stale data pre-erase

	require.NoError(t, s.UnlockByChipErase())
	require.Zero(t, ft.sysState&(1<<asiSysStatusLockStatus))
	require.Zero(t, len(ft.mem)) // chip erase wipes memory in the fake target
}

func TestSessionWriteUserRowLocked(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.WriteUserRowLocked(0x1300, []byte{1, 2, 3, 4}))

	got, err := s.ReadData(0x1300, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestSessionReadDeviceInfoRecoversViaDoubleBreak(t *testing.T) {
	ft := newFakeTarget()
	ft.failFirstSIBRead = true
	phy, err := newPhyWithTransport(ft, 50*time.Millisecond)
	require.NoError(t, err)

	breaksBeforeSession := ft.breaks
	target := testTarget{sigrow: 0x1100, expectedID: 0x1E9327}
	s, err := newSession(phy, target)
	require.NoError(t, err)
	require.Equal(t, 2, ft.sibReads)
	require.GreaterOrEqual(t, ft.breaks-breaksBeforeSession, 2)
	require.Equal(t, "0", s.SIB.NVM)
}
