package updi

// NVM command codes for the P:5 controller (AVR EB): 24-bit addressed,
// separate page buffers for flash and EEPROM, ported verbatim from the
// reference driver.
const (
	p5CmdNocmd                 = 0x00
	p5CmdNoop                  = 0x01
	p5CmdFlashPageWrite        = 0x04
	p5CmdFlashPageEraseWrite   = 0x05
	p5CmdFlashPageErase        = 0x08
	p5CmdFlashPageBufferClear  = 0x0F
	p5CmdEepromPageWrite       = 0x14
	p5CmdEepromPageEraseWrite  = 0x15
	p5CmdEepromPageErase       = 0x17
	p5CmdEepromPageBufferClear = 0x1F
	p5CmdChipErase             = 0x20
	p5CmdEepromErase           = 0x30
)

var p5Regs = nvmRegs{
	ctrlAOffset:     0x00,
	statusOffset:    0x06,
	addrOffset:      0x0C,
	dataOffset:      0x08,
	writeErrorMask:  0x70,
	writeErrorShift: 4,
	eepromBusyBit:   0,
	flashBusyBit:    1,
}

// NvmP5 drives the P:5 NVM controller.
type NvmP5 struct {
	nvmCommon
}

// NewNvmP5 builds a P:5 driver over rw for the given target.
func NewNvmP5(rw *ReadWrite, target Target) *NvmP5 {
	return &NvmP5{nvmCommon: newNvmCommon(rw, target, p5Regs)}
}

func (n *NvmP5) ChipErase() error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p5CmdChipErase); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmChipEraseTimeout)
	if err := n.executeCommand(p5CmdNocmd); err != nil {
		return err
	}
	return waitErr
}

func (n *NvmP5) EraseFlashPage(address uint32) error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.dummyWrite(address); err != nil {
		return err
	}
	if err := n.executeCommand(p5CmdFlashPageErase); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmWaitWriteTimeout)
	if err := n.executeCommand(p5CmdNocmd); err != nil {
		return err
	}
	return waitErr
}

func (n *NvmP5) EraseEeprom() error {
	if err := n.waitReady(nvmWaitWriteTimeout); err != nil {
		return err
	}
	if err := n.executeCommand(p5CmdEepromErase); err != nil {
		return err
	}
	waitErr := n.waitReady(nvmWaitWriteTimeout)
	if err := n.executeCommand(p5CmdNocmd); err != nil {
		return err
	}
	return waitErr
}

// EraseUserRow is implemented as flash on P:5; size is unused.
func (n *NvmP5) EraseUserRow(address uint32, _ int) error {
	return n.EraseFlashPage(address)
}

func (n *NvmP5) WriteFlash(address uint32, data []byte) error {
	return n.writeNVM(address, data, true, p5CmdFlashPageWrite, p5CmdFlashPageBufferClear)
}

// WriteUserRow is implemented as flash on P:5.
func (n *NvmP5) WriteUserRow(address uint32, data []byte) error {
	return n.writeNVM(address, data, true, p5CmdFlashPageWrite, p5CmdFlashPageBufferClear)
}

func (n *NvmP5) WriteEeprom(address uint32, data []byte) error {
	return n.writeNVM(address, data, false, p5CmdEepromPageEraseWrite, p5CmdEepromPageBufferClear)
}

// WriteFuse is EEPROM-mapped on P:5.
func (n *NvmP5) WriteFuse(address uint32, data []byte) error {
	return n.WriteEeprom(address, data)
}

// writeNVM uses the flash page buffer for word access and the EEPROM page
// buffer otherwise — the two stay separate on P:5, unlike P:0's single
// shared buffer.
func (n *NvmP5) writeNVM(address uint32, data []byte, wordAccess bool, commitCmd, bufferClearCmd byte) error {
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
	if err := n.executeCommand(p5CmdNocmd); err != nil {
		return err
	}
	return waitErr
}
