package updi

// NVM command codes for the P:3 controller (AVR EA): 24-bit addressed,
// page-buffered, the same command encoding family as P:5.
const (
	p3CmdNocmd                  = 0x00
	p3CmdNoop                   = 0x01
	p3CmdFlashPageWrite         = 0x04
	p3CmdFlashPageEraseWrite    = 0x05
	p3CmdFlashPageErase         = 0x08
	p3CmdFlashPageBufferClear   = 0x0F
	p3CmdEepromPageWrite        = 0x14
	p3CmdEepromPageEraseWrite   = 0x15
	p3CmdEepromPageErase        = 0x17
	p3CmdEepromPageBufferClear  = 0x1F
	p3CmdChipErase              = 0x20
	p3CmdEepromErase            = 0x30
)

var p3Regs = nvmRegs{
	ctrlAOffset:     0x00,
	statusOffset:    0x06,
	addrOffset:      0x0C,
	dataOffset:      0x08,
	writeErrorMask:  0x70,
	writeErrorShift: 4,
	eepromBusyBit:   0,
	flashBusyBit:    1,
}

// NvmP3 drives the P:3 NVM controller.
type NvmP3 struct {
	nvmCommon
}

// NewNvmP3 builds a P:3 driver over rw for the given target.
func NewNvmP3(rw *ReadWrite, target Target) *NvmP3 {
	return &NvmP3{nvmCommon: newNvmCommon(rw, target, p3Regs)}
}

func (n *NvmP3) ChipErase() error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p3CmdChipErase); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmChipEraseTimeout)
	if err := n.executeCommand(p3CmdNocmd); err != nil {
		return err
	}
	return waitErr
}

func (n *NvmP3) EraseFlashPage(address uint32) error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.dummyWrite(address); err != nil {
		return err
	}
	if err := n.executeCommand(p3CmdFlashPageErase); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmWaitWriteTimeout)
	if err := n.executeCommand(p3CmdNocmd); err != nil {
		return err
	}
	return waitErr
}

func (n *NvmP3) EraseEeprom() error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p3CmdEepromErase); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmWaitWriteTimeout)
	if err := n.executeCommand(p3CmdNocmd); err != nil {
		return err
	}
	return waitErr
}

// EraseUserRow is implemented as flash on P:3.
func (n *NvmP3) EraseUserRow(address uint32, _ int) error {
	return n.EraseFlashPage(address)
}

func (n *NvmP3) WriteFlash(address uint32, data []byte) error {
	return n.writeNVM(address, data, true, p3CmdFlashPageWrite, p3CmdFlashPageBufferClear)
}

// WriteUserRow is implemented as flash on P:3.
func (n *NvmP3) WriteUserRow(address uint32, data []byte) error {
	return n.writeNVM(address, data, true, p3CmdFlashPageWrite, p3CmdFlashPageBufferClear)
}

func (n *NvmP3) WriteEeprom(address uint32, data []byte) error {
	return n.writeNVM(address, data, false, p3CmdEepromPageEraseWrite, p3CmdEepromPageBufferClear)
}

// WriteFuse is EEPROM-mapped on P:3.
func (n *NvmP3) WriteFuse(address uint32, data []byte) error {
	return n.WriteEeprom(address, data)
}

func (n *NvmP3) writeNVM(address uint32, data []byte, wordAccess bool, commitCmd, bufferClearCmd byte) error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(bufferClearCmd); err != nil {
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
	if err := n.executeCommand(commitCmd); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmWaitWriteTimeout)
	if err := n.executeCommand(p3CmdNocmd); err != nil {
		return err
	}
	return waitErr
}
