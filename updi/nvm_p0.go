package updi

// NVM command codes for the P:0 controller (tiny0/1/2, mega0): a
// page-buffered 16-bit-addressed controller with dedicated ADDR/DATA
// registers used only for the fuse write path.
const (
	p0CmdNop            = 0x00
	p0CmdWritePage      = 0x01
	p0CmdErasePage      = 0x02
	p0CmdEraseWritePage = 0x03
	p0CmdPageBufferClr  = 0x04
	p0CmdChipErase      = 0x05
	p0CmdEraseEeprom    = 0x06
	p0CmdWriteFuse      = 0x07
)

var p0Regs = nvmRegs{
	ctrlAOffset:     0x00,
	statusOffset:    0x02,
	addrOffset:      0x08,
	dataOffset:      0x06,
	writeErrorMask:  1 << 2,
	writeErrorShift: 2,
	eepromBusyBit:   1,
	flashBusyBit:    0,
}

// NvmP0 drives the P:0 NVM controller.
type NvmP0 struct {
	nvmCommon
}

// NewNvmP0 builds a P:0 driver over rw for the given target.
func NewNvmP0(rw *ReadWrite, target Target) *NvmP0 {
	return &NvmP0{nvmCommon: newNvmCommon(rw, target, p0Regs)}
}

func (n *NvmP0) ChipErase() error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p0CmdChipErase); err != nil {
		return err
	}
	return n.waitReady(nvmChipEraseTimeout)
}

func (n *NvmP0) EraseFlashPage(address uint32) error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.dummyWrite(address); err != nil {
		return err
	}
	if err := n.executeCommand(p0CmdErasePage); err != nil {
		return err
	}
	return n.waitReady(nvmWaitWriteTimeout)
}

func (n *NvmP0) EraseEeprom() error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p0CmdEraseEeprom); err != nil {
		return err
	}
	return n.waitReady(nvmWaitWriteTimeout)
}

func (n *NvmP0) EraseUserRow(address uint32, size int) error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	// User row is EEPROM-backed on P:0; erasing single EEPROM pages needs
	// a dummy write per location to be erased.
	for offset := 0; offset < size; offset++ {
		if err := n.dummyWrite(address + uint32(offset)); err != nil {
			return err
		}
	}
	if err := n.executeCommand(p0CmdErasePage); err != nil {
		return err
	}
	return n.waitReady(nvmWaitWriteTimeout)
}

func (n *NvmP0) WriteFlash(address uint32, data []byte) error {
	return n.writeNVM(address, data, true, p0CmdWritePage)
}

func (n *NvmP0) WriteUserRow(address uint32, data []byte) error {
	return n.WriteEeprom(address, data)
}

func (n *NvmP0) WriteEeprom(address uint32, data []byte) error {
	return n.writeNVM(address, data, false, p0CmdEraseWritePage)
}

func (n *NvmP0) WriteFuse(address uint32, data []byte) error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.rw.writeByte(n.target.NvmctrlAddress()+n.regs.addrOffset, byte(address)); err != nil {
		return err
	}
	if err := n.rw.writeByte(n.target.NvmctrlAddress()+n.regs.addrOffset+1, byte(address>>8)); err != nil {
		return err
	}
	if err := n.rw.writeByte(n.target.NvmctrlAddress()+n.regs.dataOffset, data[0]); err != nil {
		return err
	}
	if err := n.executeCommand(p0CmdWriteFuse); err != nil {
		return err
	}
	return n.waitReady(nvmWaitWriteTimeout)
}

// writeNVM clears the page buffer, loads it by writing directly to the
// target location, then commits with nvmCommand. By default the page must
// already be erased (WRITE_PAGE); callers pass ERASE_WRITE_PAGE for
// EEPROM writes, which erase-then-write in one commit.
func (n *NvmP0) writeNVM(address uint32, data []byte, wordAccess bool, nvmCommand byte) error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p0CmdPageBufferClr); err != nil {
		return err
	}
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	var err error
	if wordAccess {
		err = n.rw.writeDataWords(address, data)
	} else {
		err = n.rw.writeData(address, data)
	}
	if err != nil {
		return err
	}
	if err := n.executeCommand(nvmCommand); err != nil {
		return err
	}
	return n.waitReady(nvmWaitWriteTimeout)
}
