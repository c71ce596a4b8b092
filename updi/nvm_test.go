package updi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestNvmRig(t *testing.T, build func(rw *ReadWrite, target Target) NvmDriver) (NvmDriver, *fakeTarget, Target) {
	t.Helper()
	ft := newFakeTarget()
	phy, err := newPhyWithTransport(ft, 50*time.Millisecond)
	require.NoError(t, err)
	dl, err := NewDataLink(phy, AddressMode24)
	require.NoError(t, err)
	rw := NewReadWrite(dl)
	target := testTarget{sigrow: 0x1100, expectedID: 0x1E9327}
	return build(rw, target), ft, target
}

func TestNvmP0WriteFlashRoundTrip(t *testing.T) {
	nvm, ft, target := newTestNvmRig(t, func(rw *ReadWrite, target Target) NvmDriver {
		return NewNvmP0(rw, target)
	})
	data := []byte{0x01, 0x02, 0x03, 0x04}
	require.NoError(t, nvm.WriteFlash(target.FlashStart(), data))
	require.Equal(t, byte(0x01), ft.readMem(target.FlashStart()))
	require.Equal(t, byte(0x04), ft.readMem(target.FlashStart()+3))
}

// TestNvmWaitReadyNeverReturnsWhileBusy proves waitReady keeps polling
// until the busy bit actually clears, using the P:0 register layout.
func TestNvmWaitReadyNeverReturnsWhileBusy(t *testing.T) {
	nvm, ft, target := newTestNvmRig(t, func(rw *ReadWrite, target Target) NvmDriver {
		return NewNvmP0(rw, target)
	})
	p0 := nvm.(*NvmP0)
	statusAddr := target.NvmctrlAddress() + p0Regs.statusOffset
	ft.writeMem(statusAddr, 1<<p0Regs.flashBusyBit)

	done := make(chan error, 1)
	go func() { done <- p0.waitReady(200 * time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("waitReady returned early while busy bit set: %v", err)
	default:
	}

	ft.writeMem(statusAddr, 0)
	require.NoError(t, <-done)
}

func TestNvmWaitReadyTimesOutWhenNeverClears(t *testing.T) {
	nvm, ft, target := newTestNvmRig(t, func(rw *ReadWrite, target Target) NvmDriver {
		return NewNvmP0(rw, target)
	})
	p0 := nvm.(*NvmP0)
	statusAddr := target.NvmctrlAddress() + p0Regs.statusOffset
	ft.writeMem(statusAddr, 1<<p0Regs.flashBusyBit)

	err := p0.waitReady(20 * time.Millisecond)
	require.Error(t, err)
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, KindNvmTimeout, uerr.Kind)
}

func TestNvmP4WriteFlashLeavesNocmd(t *testing.T) {
	nvm, ft, target := newTestNvmRig(t, func(rw *ReadWrite, target Target) NvmDriver {
		return NewNvmP4(rw, target)
	})
	require.NoError(t, nvm.WriteFlash(target.FlashStart(), []byte{0xAA, 0xBB}))
	ctrlAddr := target.NvmctrlAddress() + p4Regs.ctrlAOffset
	require.Equal(t, byte(p4CmdNocmd), ft.readMem(ctrlAddr))
}

func TestNvmP5WriteFlashLeavesNocmd(t *testing.T) {
	nvm, ft, target := newTestNvmRig(t, func(rw *ReadWrite, target Target) NvmDriver {
		return NewNvmP5(rw, target)
	})
	require.NoError(t, nvm.WriteFlash(target.FlashStart(), []byte{0x01, 0x02, 0x03, 0x04}))
	ctrlAddr := target.NvmctrlAddress() + p5Regs.ctrlAOffset
	require.Equal(t, byte(p5CmdNocmd), ft.readMem(ctrlAddr))
}
