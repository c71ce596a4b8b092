package updi

import (
	"time"

	"github.com/kjconroy/updi/serial"
)

// fakeTarget decodes the UPDI frames a DataLink issues and drives a
// simulated target: a byte-addressable memory, a CS register file, a
// pointer register, and a SIB string. It stands in for real hardware so
// the protocol stack can be exercised without a PTY, whose timing is
// Linux-specific and non-deterministic under CI.
type fakeTarget struct {
	mem     map[uint32]byte
	cs      map[byte]byte
	sib     []byte
	ptr     uint32
	repeatN int

	pendingData *pendingWrite

	keyState   byte
	sysState   byte
	resetArmed bool

	breaks  int
	writes  [][]byte
	closed  bool
	rxBuf   []byte
	busyFor int // number of STATUS polls that still report busy

	// failFirstSIBRead, when set, makes the first SIB request come back
	// truncated so the caller must recover via a double break.
	failFirstSIBRead bool
	sibReads         int
}

type pendingWrite struct {
	address uint32
	width   int // 1 or 2
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		mem:      make(map[uint32]byte),
		cs:       make(map[byte]byte),
		sib:      []byte("ATtiny817  NVM:0 OCD:1UPDI      "),
		sysState: 1 << asiSysStatusLockStatus,
	}
}

func (f *fakeTarget) writeMem(address uint32, b byte) {
	f.mem[address] = b
}

func (f *fakeTarget) readMem(address uint32) byte {
	return f.mem[address]
}

// Write implements transport: it records the frame, appends the raw
// bytes as the loopback echo, then appends whatever reply the simulated
// target produces for that frame.
func (f *fakeTarget) Write(data []byte) (int, error) {
	cp := append([]byte(nil), data...)
	f.writes = append(f.writes, cp)
	f.rxBuf = append(f.rxBuf, data...)
	f.rxBuf = append(f.rxBuf, f.respond(data)...)
	return len(data), nil
}

func (f *fakeTarget) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	if len(f.rxBuf) == 0 {
		return 0, nil
	}
	n := copy(buf, f.rxBuf)
	f.rxBuf = f.rxBuf[n:]
	return n, nil
}

func (f *fakeTarget) SetBreak() error   { f.breaks++; return nil }
func (f *fakeTarget) ClearBreak() error { return nil }
func (f *fakeTarget) Flush(serial.Queue) error {
	f.rxBuf = nil
	return nil
}
func (f *fakeTarget) Close() error { f.closed = true; return nil }

func le(data []byte, width int) uint32 {
	var v uint32
	for i := 0; i < width; i++ {
		v |= uint32(data[i]) << (8 * uint(i))
	}
	return v
}

// respond decodes one complete frame (or a pending data phase) and
// returns the bytes the target would put back on the wire after the
// host's own echo.
func (f *fakeTarget) respond(data []byte) []byte {
	if f.pendingData != nil {
		p := f.pendingData
		f.pendingData = nil
		for i := 0; i < p.width && i < len(data); i++ {
			f.writeMem(p.address+uint32(i), data[i])
		}
		return []byte{ackByte}
	}

	if len(data) < 2 || data[0] != syncByte {
		return nil
	}
	op := data[1] & 0xE0
	switch op {
	case opLDCS:
		index := data[1] & 0x0F
		switch index {
		case csASISysState:
			return []byte{f.sysState}
		case csASIKeyState:
			return []byte{f.keyState}
		default:
			return []byte{f.cs[index]}
		}
	case opSTCS:
		index := data[1] & 0x0F
		value := data[2]
		f.cs[index] = value
		f.applyCSWrite(index, value)
		return nil
	case opREPEAT:
		f.repeatN = int(data[2]) + 1
		return nil
	case opLDS:
		width := addrWidth(data[1])
		addr := le(data[2:], width)
		return []byte{f.readMem(addr)}
	case opSTS:
		width := addrWidth(data[1])
		addr := le(data[2:], width)
		dataWidth := 1
		if data[1]&0x03 == data16 {
			dataWidth = 2
		}
		f.pendingData = &pendingWrite{address: addr, width: dataWidth}
		return []byte{ackByte}
	case opST:
		sub := data[1] & 0x0C
		if sub == ptrAddress {
			width := 2
			if data[1]&0x03 == data24 {
				width = 3
			}
			f.ptr = le(data[2:], width)
			return []byte{ackByte}
		}
		// ptrInc burst: payload is the data, sized by the armed repeat.
		payload := data[2:]
		for i, b := range payload {
			f.writeMem(f.ptr, b)
			f.ptr++
			_ = i
		}
		f.repeatN = 0
		return []byte{ackByte}
	case opLD:
		n := f.repeatN
		if n == 0 {
			n = 1
		}
		f.repeatN = 0
		dataWidth := 1
		if data[1]&0x03 == data16 {
			dataWidth = 2
		}
		out := make([]byte, 0, n*dataWidth)
		for i := 0; i < n; i++ {
			for w := 0; w < dataWidth; w++ {
				out = append(out, f.readMem(f.ptr))
				f.ptr++
			}
		}
		return out
	case opKEY:
		if data[1]&0x1C == keySIB {
			f.sibReads++
			if f.failFirstSIBRead && f.sibReads == 1 {
				return make([]byte, 32) // all zero bytes: too short once trimmed
			}
			return append([]byte(nil), f.sib...)
		}
		f.applyKey(data[2:])
		return nil
	}
	return nil
}

// applyCSWrite simulates the target's reaction to a CS register write:
// reset-cycle driven key consumption and user-row finalisation.
func (f *fakeTarget) applyCSWrite(index, value byte) {
	switch index {
	case csASIResetReq:
		switch value {
		case resetAssert:
			f.resetArmed = true
		case resetRelease:
			if !f.resetArmed {
				return
			}
			f.resetArmed = false
			if f.keyState&(1<<asiKeyStatusNVMProg) != 0 {
				f.sysState &^= 1 << asiSysStatusLockStatus
				f.sysState |= 1 << asiSysStatusNVMProg
			}
			if f.keyState&(1<<asiKeyStatusChipErase) != 0 {
				f.sysState &^= 1 << asiSysStatusLockStatus
				f.mem = make(map[uint32]byte)
			}
			if f.keyState&(1<<asiKeyStatusUROWWrite) != 0 {
				f.sysState |= 1 << asiSysStatusUROWProg
			}
		}
	case csASISysCtrlA:
		if value&(1<<asiSysCtrlAUrowFinal) != 0 {
			f.sysState &^= 1 << asiSysStatusUROWProg
		}
	case csASIKeyState:
		// KEY_STATUS bits are cleared by writing 1 to them.
		f.keyState &^= value
	}
}

// applyKey reverses a KEY instruction's payload back to ASCII and arms
// the matching capability bit, mirroring what a real target does when it
// recognises one of the fixed 8-byte keys.
func (f *fakeTarget) applyKey(payload []byte) {
	reversed := make([]byte, len(payload))
	for i, b := range payload {
		reversed[len(payload)-1-i] = b
	}
	switch string(reversed) {
	case string(keyNVMProg):
		f.keyState |= 1 << asiKeyStatusNVMProg
	case string(keyChipErase):
		f.keyState |= 1 << asiKeyStatusChipErase
	case string(keyUserRow):
		f.keyState |= 1 << asiKeyStatusUROWWrite
	}
}

func addrWidth(opByte byte) int {
	switch opByte & 0x0C {
	case addr16:
		return 2
	case addr24:
		return 3
	default:
		return 1
	}
}
