package updi

import (
	"errors"
	"time"

	"github.com/kjconroy/updi/serial"
)

var errTimeout = errors.New("timed out waiting for bytes")

const (
	syncByte = 0x55

	// breakHold is long enough to read as a break at any UPDI baud this
	// stack supports; the target's auto-baud detector only needs to see
	// a low period of at least one character time at its slowest rate.
	breakHold = 24 * time.Millisecond

	defaultReadTimeout = 500 * time.Millisecond
)

// transport is the subset of *serial.Port the physical layer depends on.
// Abstracting it lets tests exercise Phy against an in-memory fake
// instead of a real tty, since PTYs are Linux-specific and their timing
// is non-deterministic under CI.
type transport interface {
	Write(data []byte) (int, error)
	ReadTimeout(data []byte, timeout time.Duration) (int, error)
	SetBreak() error
	ClearBreak() error
	Flush(queue serial.Queue) error
	Close() error
}

// Phy drives the physical layer: a half-duplex single-wire UART where
// every byte the host writes loops back on the receive path and must be
// consumed as an echo before the real reply (if any) follows.
type Phy struct {
	port        transport
	readTimeout time.Duration
}

// OpenPhy opens name at baud with 8 data bits, even parity, 2 stop bits,
// and performs the initial BREAK + SYNC handshake so the target's
// auto-baud detector locks onto the host rate.
func OpenPhy(name string, baud uint32, readTimeout time.Duration) (*Phy, error) {
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	port, err := serial.Open(name, serial.NewOptions().SetReadTimeout(readTimeout))
	if err != nil {
		return nil, newErr(KindProtocol, "open", err)
	}
	attrs, err := port.GetAttr2()
	if err != nil {
		port.Close()
		return nil, newErr(KindProtocol, "get attrs", err)
	}
	attrs.MakeRaw()
	attrs.Cflag |= serial.PARENB | serial.CSTOPB | serial.CREAD | serial.CLOCAL
	attrs.Cflag &^= serial.PARODD
	attrs.SetCustomSpeed(baud)
	if err := port.SetAttr2(attrs); err != nil {
		port.Close()
		return nil, newErr(KindProtocol, "set attrs", err)
	}

	return newPhy(port, readTimeout)
}

// newPhyWithTransport builds a Phy over an arbitrary transport, bypassing
// serial.Open entirely. Used by tests to drive the link over an in-memory
// fake.
func newPhyWithTransport(t transport, readTimeout time.Duration) (*Phy, error) {
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	return newPhy(t, readTimeout)
}

func newPhy(t transport, readTimeout time.Duration) (*Phy, error) {
	p := &Phy{port: t, readTimeout: readTimeout}
	if err := p.initialBreakSync(); err != nil {
		t.Close()
		return nil, err
	}
	return p, nil
}

func (p *Phy) initialBreakSync() error {
	if err := p.assertBreak(); err != nil {
		return err
	}
	return p.send([]byte{syncByte})
}

func (p *Phy) assertBreak() error {
	if err := p.port.SetBreak(); err != nil {
		return newErr(KindProtocol, "assert break", err)
	}
	time.Sleep(breakHold)
	if err := p.port.ClearBreak(); err != nil {
		return newErr(KindProtocol, "clear break", err)
	}
	return nil
}

// send writes data and consumes its own echo, verifying byte-for-byte
// equality; a mismatch is a protocol fault, per the PHY loopback invariant.
func (p *Phy) send(data []byte) error {
	if _, err := p.port.Write(data); err != nil {
		return newErr(KindProtocol, "send", err)
	}
	echo := make([]byte, len(data))
	if err := p.readExact(echo); err != nil {
		return newErr(KindProtocol, "send: echo", err)
	}
	for i := range data {
		if echo[i] != data[i] {
			return newErr(KindProtocol, "send: echo mismatch", nil)
		}
	}
	return nil
}

// receive reads exactly n bytes after any echo has already been consumed
// by send; fewer than n bytes before the read timeout is a protocol fault.
func (p *Phy) receive(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := p.readExact(buf); err != nil {
		return nil, newErr(KindProtocol, "receive", err)
	}
	return buf, nil
}

func (p *Phy) readExact(buf []byte) error {
	read := 0
	deadline := NewTimeout(p.readTimeout)
	for read < len(buf) {
		n, err := p.port.ReadTimeout(buf[read:], deadline.Remaining())
		if err != nil {
			return err
		}
		read += n
		if deadline.Expired() && read < len(buf) {
			return errTimeout
		}
	}
	return nil
}

// sendDoubleBreak resynchronizes a target whose PHY has drifted: two
// rapid break pulses, followed by a flush of whatever the target emitted
// while desynchronized.
func (p *Phy) sendDoubleBreak() error {
	if err := p.assertBreak(); err != nil {
		return err
	}
	if err := p.assertBreak(); err != nil {
		return err
	}
	if err := p.port.Flush(serial.TCIFLUSH); err != nil {
		return newErr(KindProtocol, "double break: flush", err)
	}
	return p.send([]byte{syncByte})
}

func (p *Phy) Close() error {
	return p.port.Close()
}
