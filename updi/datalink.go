package updi

const (
	opLDS    = 0x00
	opSTS    = 0x40
	opLD     = 0x20
	opST     = 0x60
	opLDCS   = 0x80
	opSTCS   = 0xC0
	opREPEAT = 0xA0
	opKEY    = 0xE0

	ptrPlain   = 0x00
	ptrInc     = 0x04
	ptrAddress = 0x08

	addr8  = 0x00
	addr16 = 0x04
	addr24 = 0x08

	data8  = 0x00
	data16 = 0x01
	data24 = 0x02

	keySIB = 0x04
	keyKEY = 0x00

	ackByte = 0x40

	csSTATUSA     = 0x00
	csSTATUSB     = 0x01
	csCTRLA       = 0x02
	csCTRLB       = 0x03
	csASIKeyState = 0x07
	csASIResetReq = 0x08
	csASICtrlA    = 0x09
	csASISysCtrlA = 0x0A
	csASISysState = 0x0B
	csASICrcState = 0x0C

	ctrlbCCDetDisBit = 3
	ctrlbUPDIDisBit  = 2

	// MaxRepeatUnits is the largest burst a single REPEAT can drive: the
	// repeat count is an 8-bit N+1, so the ceiling is 256 units.
	MaxRepeatUnits = 256
)

// AddressMode selects 16-bit or 24-bit pointer/address encoding. It is a
// tagged value swapped in by re-assignment, not a subclass: P:0 parts use
// 16-bit addressing, P:2 through P:5 use 24-bit.
type AddressMode int

const (
	AddressMode16 AddressMode = iota
	AddressMode24
)

func (m AddressMode) addrBits() byte {
	if m == AddressMode16 {
		return addr16
	}
	return addr24
}

func (m AddressMode) width() int {
	if m == AddressMode16 {
		return 2
	}
	return 3
}

// DataLink assembles and issues UPDI opcodes over a Phy: SYNC + opcode +
// payload, with the ACK handshake STS/ST require between address and data
// phases.
type DataLink struct {
	phy  *Phy
	mode AddressMode
}

// NewDataLink builds a DataLink over phy in the given address mode and
// performs the initialisation sequence (disable collision detect, set
// guard time).
func NewDataLink(phy *Phy, mode AddressMode) (*DataLink, error) {
	d := &DataLink{phy: phy, mode: mode}
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

// init disables collision detection and sets a guard-time CTRLA value.
// The reference device manuals tabulate the exact guard-time encoding per
// baud rate; lacking that table here, a conservative fixed guard time
// (8 bit-times, encoding 0x00) is used for every baud, per the Open
// Question resolution recorded alongside this package.
func (d *DataLink) init() error {
	if err := d.stcs(csCTRLB, 1<<ctrlbCCDetDisBit); err != nil {
		return err
	}
	return d.stcs(csCTRLA, 0x00)
}

func (d *DataLink) putLE(buf []byte, v uint32, width int) []byte {
	for i := 0; i < width; i++ {
		buf = append(buf, byte(v>>(8*uint(i))))
	}
	return buf
}

func (d *DataLink) ldcs(index byte) (byte, error) {
	if err := d.phy.send([]byte{syncByte, opLDCS | index}); err != nil {
		return 0, err
	}
	reply, err := d.phy.receive(1)
	if err != nil {
		return 0, err
	}
	return reply[0], nil
}

func (d *DataLink) stcs(index, value byte) error {
	return d.phy.send([]byte{syncByte, opSTCS | index, value})
}

func (d *DataLink) expectAck() error {
	reply, err := d.phy.receive(1)
	if err != nil {
		return err
	}
	if reply[0] != ackByte {
		return newErr(KindProtocol, "expected ACK", nil)
	}
	return nil
}

// repeat arms the next LD/ST-with-increment to execute n times (1..256).
func (d *DataLink) repeat(n int) error {
	if n < 1 || n > MaxRepeatUnits {
		return newErr(KindProtocol, "repeat count out of range", nil)
	}
	return d.phy.send([]byte{syncByte, opREPEAT | data8, byte(n - 1)})
}

// ld reads a single byte from an absolute address (LDS).
func (d *DataLink) ld(address uint32) (byte, error) {
	frame := []byte{syncByte, opLDS | d.mode.addrBits() | data8}
	frame = d.putLE(frame, address, d.mode.width())
	if err := d.phy.send(frame); err != nil {
		return 0, err
	}
	reply, err := d.phy.receive(1)
	if err != nil {
		return 0, err
	}
	return reply[0], nil
}

// st writes a single byte to an absolute address (STS), observing the
// ACK after the address phase and after the data phase.
func (d *DataLink) st(address uint32, value byte) error {
	frame := []byte{syncByte, opSTS | d.mode.addrBits() | data8}
	frame = d.putLE(frame, address, d.mode.width())
	if err := d.phy.send(frame); err != nil {
		return err
	}
	if err := d.expectAck(); err != nil {
		return err
	}
	if err := d.phy.send([]byte{value}); err != nil {
		return err
	}
	return d.expectAck()
}

// st16 writes a single 16-bit word to an absolute address (STS, data16).
func (d *DataLink) st16(address uint32, value uint16) error {
	frame := []byte{syncByte, opSTS | d.mode.addrBits() | data16}
	frame = d.putLE(frame, address, d.mode.width())
	if err := d.phy.send(frame); err != nil {
		return err
	}
	if err := d.expectAck(); err != nil {
		return err
	}
	if err := d.phy.send([]byte{byte(value), byte(value >> 8)}); err != nil {
		return err
	}
	return d.expectAck()
}

// stPtr loads the target's internal pointer register with address, via
// ST in PTR_ADDRESS submode.
func (d *DataLink) stPtr(address uint32) error {
	frame := []byte{syncByte, opST | ptrAddress | dataSizeForMode(d.mode)}
	frame = d.putLE(frame, address, d.mode.width())
	if err := d.phy.send(frame); err != nil {
		return err
	}
	return d.expectAck()
}

func dataSizeForMode(mode AddressMode) byte {
	if mode == AddressMode16 {
		return data16
	}
	return data24
}

// ldPtrInc reads n bytes via the pointer register, auto-incrementing
// after each. The caller is responsible for arming repeat() first when
// n > 1.
func (d *DataLink) ldPtrInc(n int) ([]byte, error) {
	if err := d.phy.send([]byte{syncByte, opLD | ptrInc | data8}); err != nil {
		return nil, err
	}
	return d.phy.receive(n)
}

// ldPtrInc16 reads `words` 16-bit words via the pointer register,
// auto-incrementing by 2 after each.
func (d *DataLink) ldPtrInc16(words int) ([]byte, error) {
	if err := d.phy.send([]byte{syncByte, opLD | ptrInc | data16}); err != nil {
		return nil, err
	}
	return d.phy.receive(words * 2)
}

// stPtrInc writes data via the pointer register, auto-incrementing after
// each byte. A single ACK follows the whole burst. The caller is
// responsible for arming repeat() first when len(data) > 1.
func (d *DataLink) stPtrInc(data []byte) error {
	frame := append([]byte{syncByte, opST | ptrInc | data8}, data...)
	if err := d.phy.send(frame); err != nil {
		return err
	}
	return d.expectAck()
}

// stPtrInc16 writes word-pairs via the pointer register, auto-incrementing
// by 2 after each word. A single ACK follows the whole burst.
func (d *DataLink) stPtrInc16(data []byte) error {
	frame := append([]byte{syncByte, opST | ptrInc | data16}, data...)
	if err := d.phy.send(frame); err != nil {
		return err
	}
	return d.expectAck()
}

// key transfers an 8/16/32-byte key. Keys are transferred low-byte-first,
// so the byte reversal of the (big-endian-looking) ASCII key string
// happens here and only here.
func (d *DataLink) key(sizeCode byte, key []byte) error {
	reversed := make([]byte, len(key))
	for i, b := range key {
		reversed[len(key)-1-i] = b
	}
	frame := append([]byte{syncByte, opKEY | keyKEY | sizeCode}, reversed...)
	return d.phy.send(frame)
}

// readSIB reads the 32-byte System Information Block.
func (d *DataLink) readSIB() ([]byte, error) {
	if err := d.phy.send([]byte{syncByte, opKEY | keySIB | sibSize256}); err != nil {
		return nil, err
	}
	return d.phy.receive(32)
}

const sibSize256 = 0x02
