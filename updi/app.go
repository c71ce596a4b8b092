package updi

import "time"

const (
	unlockTimeout    = 100 * time.Millisecond
	eraseTimeout     = 500 * time.Millisecond
	userRowTimeout   = 500 * time.Millisecond
)

// Session owns the physical link and the currently installed NVM driver
// for one programming session. It is the application layer: session
// lifecycle, key-based unlock, SIB decode and variant dispatch, signature
// verification. A Session is not safe for concurrent use; callers must
// serialise access themselves.
type Session struct {
	phy    *Phy
	dl     *DataLink
	rw     *ReadWrite
	mode   AddressMode
	nvm    NvmDriver
	target Target
	SIB    *SIB
}

// Open starts a session: opens the physical link, issues the initial
// 24-bit data-link handshake, reads and decodes the SIB (retrying once
// via a double break on failure), and installs the NVM driver the SIB's
// NVM character selects.
func Open(portName string, baud uint32, readTimeout time.Duration, target Target) (*Session, error) {
	phy, err := OpenPhy(portName, baud, readTimeout)
	if err != nil {
		return nil, err
	}
	return newSession(phy, target)
}

func newSession(phy *Phy, target Target) (*Session, error) {
	dl, err := NewDataLink(phy, AddressMode24)
	if err != nil {
		phy.Close()
		return nil, err
	}
	s := &Session{
		phy:    phy,
		dl:     dl,
		rw:     NewReadWrite(dl),
		mode:   AddressMode24,
		target: target,
	}
	if err := s.readDeviceInfo(); err != nil {
		phy.Close()
		return nil, err
	}
	return s, nil
}

// Close tears down the physical link.
func (s *Session) Close() error {
	return s.phy.Close()
}

// NVM returns the currently installed variant driver.
func (s *Session) NVM() NvmDriver {
	return s.nvm
}

func (s *Session) readDeviceInfo() error {
	raw, err := s.rw.readSIB()
	var sib *SIB
	if err == nil {
		sib, err = decodeSIB(raw)
	}
	if err != nil {
		if derr := s.phy.sendDoubleBreak(); derr != nil {
			return derr
		}
		raw, err = s.rw.readSIB()
		if err == nil {
			sib, err = decodeSIB(raw)
		}
		if err != nil {
			return newErr(KindProtocol, "read device info: SIB unreadable after double-break recovery", err)
		}
	}
	s.SIB = sib

	if sib.NVM == "0" {
		dl, err := NewDataLink(s.phy, AddressMode16)
		if err != nil {
			return err
		}
		s.dl = dl
		s.mode = AddressMode16
		s.rw = NewReadWrite(dl)
		s.nvm = NewNvmP0(s.rw, s.target)
		return nil
	}

	switch sib.NVM {
	case "2":
		s.nvm = NewNvmP2(s.rw, s.target)
	case "3":
		s.nvm = NewNvmP3(s.rw, s.target)
	case "4":
		s.nvm = NewNvmP4(s.rw, s.target)
	case "5":
		s.nvm = NewNvmP5(s.rw, s.target)
	default:
		return newErr(KindNotSupported, "unsupported NVM revision: "+sib.NVM, nil)
	}
	return nil
}

// InProgMode reports whether the target is currently in NVMPROG state.
func (s *Session) InProgMode() (bool, error) {
	status, err := s.rw.readCS(csASISysState)
	if err != nil {
		return false, err
	}
	return status&(1<<asiSysStatusNVMProg) != 0, nil
}

func (s *Session) reset(apply bool) error {
	value := byte(resetRelease)
	if apply {
		value = resetAssert
	}
	return s.rw.writeCS(csASIResetReq, value)
}

func (s *Session) resetCycle() error {
	if err := s.reset(true); err != nil {
		return err
	}
	return s.reset(false)
}

func (s *Session) waitUnlocked(timeout time.Duration) bool {
	deadline := NewTimeout(timeout)
	for !deadline.Expired() {
		status, err := s.rw.readCS(csASISysState)
		if err != nil {
			return false
		}
		if status&(1<<asiSysStatusLockStatus) == 0 {
			return true
		}
	}
	return false
}

func (s *Session) waitUrowProg(timeout time.Duration, waitForHigh bool) bool {
	deadline := NewTimeout(timeout)
	for !deadline.Expired() {
		status, err := s.rw.readCS(csASISysState)
		if err != nil {
			return false
		}
		high := status&(1<<asiSysStatusUROWProg) != 0
		if high == waitForHigh {
			return true
		}
	}
	return false
}

// EnterProgMode enters NVM programming mode. It is idempotent: if the
// target is already in NVMPROG, it returns success immediately.
func (s *Session) EnterProgMode() error {
	inProg, err := s.InProgMode()
	if err != nil {
		return err
	}
	if inProg {
		return nil
	}

	if err := s.reset(true); err != nil {
		return err
	}
	if err := s.rw.writeKey(KeySize64, keyNVMProg); err != nil {
		return err
	}
	keyStatus, err := s.rw.readCS(csASIKeyState)
	if err != nil {
		return err
	}
	if keyStatus&(1<<asiKeyStatusNVMProg) == 0 {
		return newErr(KindSession, "enter progmode: key not accepted", nil)
	}
	if err := s.resetCycle(); err != nil {
		return err
	}
	if !s.waitUnlocked(unlockTimeout) {
		return newErr(KindLocked, "enter progmode: device is locked", nil)
	}
	inProg, err = s.InProgMode()
	if err != nil {
		return err
	}
	if !inProg {
		return newErr(KindSession, "enter progmode: NVMPROG not set after unlock", nil)
	}
	return nil
}

// LeaveProgMode resets the target and disables UPDI, releasing any keys.
// This is best-effort: it still attempts to disable UPDI even if a
// preceding step in the caller's workflow or the reset cycle failed, and
// returns the first error it saw.
func (s *Session) LeaveProgMode() error {
	resetErr := s.resetCycle()
	disableErr := s.rw.writeCS(csCTRLB, (1<<ctrlbUPDIDisBit)|(1<<ctrlbCCDetDisBit))
	if resetErr != nil {
		return resetErr
	}
	return disableErr
}

// UnlockByChipErase arms the chip-erase key, which erases and unlocks the
// device even though it was previously locked against normal programming.
func (s *Session) UnlockByChipErase() error {
	if err := s.rw.writeKey(KeySize64, keyChipErase); err != nil {
		return err
	}
	keyStatus, err := s.rw.readCS(csASIKeyState)
	if err != nil {
		return err
	}
	if keyStatus&(1<<asiKeyStatusChipErase) == 0 {
		return newErr(KindSession, "unlock: key not accepted", nil)
	}
	if err := s.resetCycle(); err != nil {
		return err
	}
	if !s.waitUnlocked(eraseTimeout) {
		return newErr(KindLocked, "unlock: chip erase by key failed", nil)
	}
	return nil
}

// WriteUserRowLocked writes data to the user row of a locked device using
// the user-row key, without requiring a prior chip erase.
func (s *Session) WriteUserRowLocked(address uint32, data []byte) error {
	if err := s.rw.writeKey(KeySize64, keyUserRow); err != nil {
		return err
	}
	keyStatus, err := s.rw.readCS(csASIKeyState)
	if err != nil {
		return err
	}
	if keyStatus&(1<<asiKeyStatusUROWWrite) == 0 {
		return newErr(KindSession, "write user row locked: key not accepted", nil)
	}
	if err := s.resetCycle(); err != nil {
		return err
	}
	if !s.waitUrowProg(userRowTimeout, true) {
		return newErr(KindSession, "write user row locked: failed to enter UROW write mode", nil)
	}

	if err := s.rw.writeData(address, data); err != nil {
		return err
	}
	if err := s.rw.writeCS(csASISysCtrlA, (1<<asiSysCtrlAUrowFinal)|(1<<ctrlbCCDetDisBit)); err != nil {
		return err
	}
	if !s.waitUrowProg(userRowTimeout, false) {
		if rerr := s.resetCycle(); rerr != nil {
			return rerr
		}
		return newErr(KindSession, "write user row locked: failed to exit UROW write mode", nil)
	}

	if err := s.rw.writeCS(csASIKeyState, (1<<asiKeyStatusUROWWrite)|(1<<ctrlbCCDetDisBit)); err != nil {
		return err
	}
	return s.resetCycle()
}

// ReadSignature reads the 3-byte device signature at the target's
// sigrow_address and verifies it against the expected device ID.
func (s *Session) ReadSignature() ([3]byte, error) {
	var sig [3]byte
	raw, err := s.rw.readData(s.target.SigrowAddress(), 3)
	if err != nil {
		return sig, err
	}
	copy(sig[:], raw)
	got := uint32(sig[0]) | uint32(sig[1])<<8 | uint32(sig[2])<<16
	if got != s.target.ExpectedDeviceID() {
		return sig, newErr(KindSession, "signature mismatch", nil)
	}
	return sig, nil
}

// ReadData reads size bytes starting at address.
func (s *Session) ReadData(address uint32, size int) ([]byte, error) {
	return s.rw.readData(address, size)
}

// WriteData writes data starting at address.
func (s *Session) WriteData(address uint32, data []byte) error {
	return s.rw.writeData(address, data)
}
