package updi

// NVM command codes for the P:2 controller (AVR DA/DB/DD): 24-bit
// addressed, no page buffer — words are written directly to the flash
// address and the controller latches them as they arrive.
const (
	p2CmdNocmd             = 0x00
	p2CmdNoop              = 0x01
	p2CmdFlashWrite        = 0x02
	p2CmdFlashPageErase    = 0x08
	p2CmdEepromWrite       = 0x12
	p2CmdEepromEraseWrite  = 0x13
	p2CmdEepromByteErase   = 0x18
	p2CmdChipErase         = 0x20
	p2CmdEepromErase       = 0x30
)

var p2Regs = nvmRegs{
	ctrlAOffset:     0x00,
	statusOffset:    0x06,
	addrOffset:      0x0C,
	dataOffset:      0x08,
	writeErrorMask:  0x70,
	writeErrorShift: 4,
	eepromBusyBit:   0,
	flashBusyBit:    1,
}

// NvmP2 drives the P:2 NVM controller.
type NvmP2 struct {
	nvmCommon
}

// NewNvmP2 builds a P:2 driver over rw for the given target.
func NewNvmP2(rw *ReadWrite, target Target) *NvmP2 {
	return &NvmP2{nvmCommon: newNvmCommon(rw, target, p2Regs)}
}

func (n *NvmP2) ChipErase() error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p2CmdChipErase); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmChipEraseTimeout)
	if err := n.executeCommand(p2CmdNocmd); err != nil {
		return err
	}
	return waitErr
}

func (n *NvmP2) EraseFlashPage(address uint32) error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p2CmdFlashPageErase); err != nil {
		return err
	}
	if err := n.dummyWrite(address); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmWaitWriteTimeout)
	if err := n.executeCommand(p2CmdNocmd); err != nil {
		return err
	}
	return waitErr
}

func (n *NvmP2) EraseEeprom() error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p2CmdEepromErase); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmWaitWriteTimeout)
	if err := n.executeCommand(p2CmdNocmd); err != nil {
		return err
	}
	return waitErr
}

// EraseUserRow is implemented as flash on P:2; size is unused.
func (n *NvmP2) EraseUserRow(address uint32, _ int) error {
	return n.EraseFlashPage(address)
}

func (n *NvmP2) WriteFlash(address uint32, data []byte) error {
	return n.writeNVM(address, data, true)
}

// WriteUserRow is implemented as flash on P:2.
func (n *NvmP2) WriteUserRow(address uint32, data []byte) error {
	return n.writeNVM(address, data, false)
}

func (n *NvmP2) WriteEeprom(address uint32, data []byte) error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p2CmdEepromEraseWrite); err != nil {
		return err
	}
	if err := n.rw.writeData(address, data); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmWaitWriteTimeout)
	if err := n.executeCommand(p2CmdNocmd); err != nil {
		return err
	}
	return waitErr
}

// WriteFuse is EEPROM-mapped on P:2.
func (n *NvmP2) WriteFuse(address uint32, data []byte) error {
	return n.WriteEeprom(address, data)
}

// writeNVM has no page buffer on P:2: the write command is issued first,
// then the data words are written directly, latched as they arrive.
func (n *NvmP2) writeNVM(address uint32, data []byte, wordAccess bool) error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p2CmdFlashWrite); err != nil {
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
	if cmdErr := n.executeCommand(p2CmdNocmd); cmdErr != nil {
		return cmdErr
	}
	return waitErr
}
