package updi

// NVM command codes for the P:4 controller (AVR DU): 24-bit addressed,
// no page buffer, ported verbatim from the reference driver.
const (
	p4CmdNocmd            = 0x00
	p4CmdNoop             = 0x01
	p4CmdFlashWrite       = 0x02
	p4CmdFlashPageErase   = 0x08
	p4CmdEepromWrite      = 0x12
	p4CmdEepromEraseWrite = 0x13
	p4CmdEepromByteErase  = 0x18
	p4CmdChipErase        = 0x20
	p4CmdEepromErase      = 0x30
)

var p4Regs = nvmRegs{
	ctrlAOffset:     0x00,
	statusOffset:    0x06,
	addrOffset:      0x0C,
	dataOffset:      0x08,
	writeErrorMask:  0x70,
	writeErrorShift: 4,
	eepromBusyBit:   0,
	flashBusyBit:    1,
}

// NvmP4 drives the P:4 NVM controller.
type NvmP4 struct {
	nvmCommon
}

// NewNvmP4 builds a P:4 driver over rw for the given target.
func NewNvmP4(rw *ReadWrite, target Target) *NvmP4 {
	return &NvmP4{nvmCommon: newNvmCommon(rw, target, p4Regs)}
}

func (n *NvmP4) ChipErase() error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p4CmdChipErase); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmChipEraseTimeout)
	if err := n.executeCommand(p4CmdNocmd); err != nil {
		return err
	}
	return waitErr
}

func (n *NvmP4) EraseFlashPage(address uint32) error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p4CmdFlashPageErase); err != nil {
		return err
	}
	if err := n.dummyWrite(address); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmWaitWriteTimeout)
	if err := n.executeCommand(p4CmdNocmd); err != nil {
		return err
	}
	return waitErr
}

func (n *NvmP4) EraseEeprom() error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p4CmdEepromErase); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmWaitWriteTimeout)
	if err := n.executeCommand(p4CmdNocmd); err != nil {
		return err
	}
	return waitErr
}

// EraseUserRow is implemented as flash on P:4; size is unused.
func (n *NvmP4) EraseUserRow(address uint32, _ int) error {
	return n.EraseFlashPage(address)
}

func (n *NvmP4) WriteFlash(address uint32, data []byte) error {
	return n.writeNVM(address, data, true)
}

// WriteUserRow is implemented as flash on P:4.
func (n *NvmP4) WriteUserRow(address uint32, data []byte) error {
	return n.writeNVM(address, data, false)
}

func (n *NvmP4) WriteEeprom(address uint32, data []byte) error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p4CmdEepromEraseWrite); err != nil {
		return err
	}
	if err := n.rw.writeData(address, data); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmWaitWriteTimeout)
	if err := n.executeCommand(p4CmdNocmd); err != nil {
		return err
	}
	return waitErr
}

// WriteFuse is EEPROM-mapped on P:4.
func (n *NvmP4) WriteFuse(address uint32, data []byte) error {
	return n.WriteEeprom(address, data)
}

func (n *NvmP4) writeNVM(address uint32, data []byte, wordAccess bool) error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p4CmdFlashWrite); err != nil {
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
	waitErr := n.waitReady(nvmWaitWriteTimeout)
	if cmdErr := n.executeCommand(p4CmdNocmd); cmdErr != nil {
		return cmdErr
	}
	return waitErr
}
