package updi

import "time"

const (
	nvmWaitWriteTimeout = 100 * time.Millisecond
	nvmChipEraseTimeout = 10 * time.Second
)

// NvmDriver is the interface all five NVM controller variants implement.
// Polymorphism over variants is plain interface satisfaction, not an
// inheritance hierarchy: each driver owns its own register map and
// command set and is selected once, after SIB decode, by the application
// layer.
type NvmDriver interface {
	ChipErase() error
	EraseFlashPage(address uint32) error
	EraseEeprom() error
	EraseUserRow(address uint32, size int) error
	WriteFlash(address uint32, data []byte) error
	WriteUserRow(address uint32, data []byte) error
	WriteEeprom(address uint32, data []byte) error
	WriteFuse(address uint32, data []byte) error
}

// nvmRegs describes one variant's register offsets (relative to the
// device's nvmctrl_address) and STATUS busy/error bit layout. Every
// variant's wait_nvm_ready/execute_nvm_command share this same shape in
// the reference implementation; only the numbers differ.
type nvmRegs struct {
	ctrlAOffset      uint32
	statusOffset     uint32
	addrOffset       uint32
	dataOffset       uint32
	writeErrorMask   byte
	writeErrorShift  uint
	eepromBusyBit    uint
	flashBusyBit     uint
}

// nvmCommon provides the wait/execute primitives shared by all variants,
// composed into each concrete driver rather than inherited.
type nvmCommon struct {
	rw     *ReadWrite
	target Target
	regs   nvmRegs
}

func newNvmCommon(rw *ReadWrite, target Target, regs nvmRegs) nvmCommon {
	return nvmCommon{rw: rw, target: target, regs: regs}
}

// waitReady polls STATUS until both busy bits clear, an error bit is
// observed, or timeout expires. It never returns success while a busy bit
// remains set.
func (c *nvmCommon) waitReady(timeout time.Duration) error {
	deadline := NewTimeout(timeout)
	statusAddr := c.target.NvmctrlAddress() + c.regs.statusOffset
	for {
		status, err := c.rw.readByte(statusAddr)
		if err != nil {
			return err
		}
		if status&c.regs.writeErrorMask != 0 {
			return nvmErr("wait ready", int(status&c.regs.writeErrorMask)>>c.regs.writeErrorShift)
		}
		busy := uint32(status)&(1<<c.regs.eepromBusyBit) | uint32(status)&(1<<c.regs.flashBusyBit)
		if busy == 0 {
			return nil
		}
		if deadline.Expired() {
			return newErr(KindNvmTimeout, "wait ready", nil)
		}
	}
}

func (c *nvmCommon) executeCommand(cmd byte) error {
	return c.rw.writeByte(c.target.NvmctrlAddress()+c.regs.ctrlAOffset, cmd)
}

func (c *nvmCommon) dummyWrite(address uint32) error {
	return c.rw.writeData(address, []byte{0xFF})
}
