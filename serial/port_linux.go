package serial

import (
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/daedaluz/fdev/poll"
	ioctl "github.com/daedaluz/goioctl"
)

// Termios mirrors struct termios from <asm-generic/termbits.h>.
type Termios struct {
	Iflag IFlag
	Oflag OFlag
	Cflag CFlag
	Lflag LFlag
	Line  byte
	Cc    [19]byte
}

// Termios2 mirrors struct termios2, which adds an explicit input/output
// speed pair so a baud rate outside the fixed POSIX table (B0..B4000000)
// can be requested via the BOTHER Cflag bit. UPDI targets are routinely
// run at baud rates that don't land on a standard value once guard-time
// correction is folded in, so this is the struct actually used to open a
// port, not the plain Termios above.
type Termios2 struct {
	Iflag  IFlag
	Oflag  OFlag
	Cflag  CFlag
	Lflag  LFlag
	Line   byte
	Cc     [19]byte
	ISpeed uint32
	OSpeed uint32
}

type IFlag uint32

const (
	IGNBRK IFlag = 0000001
	BRKINT IFlag = 0000002
	PARMRK IFlag = 0000010
	ISTRIP IFlag = 0000040
	INLCR  IFlag = 0000100
	IGNCR  IFlag = 0000200
	ICRNL  IFlag = 0000400
	IXON   IFlag = 0002000
)

type OFlag uint32

const (
	OPOST OFlag = 0000001
)

type CFlag uint32

const (
	CBAUD  CFlag = 0010017
	B9600  CFlag = 0000015
	B19200 CFlag = 0000016
	B38400 CFlag = 0000017

	CSIZE CFlag = 0000060
	CS5   CFlag = 0000000
	CS6   CFlag = 0000020
	CS7   CFlag = 0000040
	CS8   CFlag = 0000060

	CSTOPB CFlag = 0000100
	CREAD  CFlag = 0000200
	PARENB CFlag = 0000400
	PARODD CFlag = 0001000
	HUPCL  CFlag = 0002000
	CLOCAL CFlag = 0004000

	CBAUDEX  CFlag = 0010000
	BOTHER   CFlag = 0010000
	B57600   CFlag = 0010001
	B115200  CFlag = 0010002
	B230400  CFlag = 0010003
	B460800  CFlag = 0010004
	B500000  CFlag = 0010005
	B921600  CFlag = 0010007
	B1000000 CFlag = 0010010
)

type LFlag uint32

const (
	ISIG   LFlag = 0000001
	ICANON LFlag = 0000002
	ECHO   LFlag = 0000010
	ECHONL LFlag = 0000100
	IEXTEN LFlag = 0100000
)

// Action selects when a changed attribute set takes effect; see tcsetattr(3).
type Action uintptr

const (
	TCSANOW Action = iota
	TCSADRAIN
	TCSAFLUSH
)

// Queue selects which queue Flush acts on; see tcflush(3).
type Queue uintptr

const (
	TCIFLUSH Queue = iota
	TCOFLUSH
	TCIOFLUSH
)

// Options configures how Open behaves.
type Options struct {
	ReadTimeout time.Duration
	OpenMode    int
}

// NewOptions returns the defaults: blocking reads, read-write, no
// controlling terminal takeover.
func NewOptions() *Options {
	return &Options{
		ReadTimeout: -1,
		OpenMode:    syscall.O_RDWR | syscall.O_NOCTTY,
	}
}

func (o *Options) SetReadTimeout(timeout time.Duration) *Options {
	o.ReadTimeout = timeout
	return o
}

// Port is a raw Linux tty device file driven directly through termios
// ioctls, with no line discipline processing beyond what MakeRaw strips.
type Port struct {
	options *Options
	closed  atomic.Bool
	f       int
}

func Open(name string, opts *Options) (*Port, error) {
	if opts == nil {
		opts = NewOptions()
	}
	fd, err := syscall.Open(name, opts.OpenMode, 0)
	if err != nil {
		return nil, wrapErr("open "+name, err)
	}
	return &Port{options: opts, f: fd}, nil
}

func (p *Port) Write(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	n, err := syscall.Write(p.f, data)
	return n, wrapErr("write", err)
}

func (p *Port) readTimeout(data []byte, timeout time.Duration) (int, error) {
	if err := poll.WaitInput(p.f, timeout); err != nil {
		return 0, wrapErr("read timeout", err)
	}
	n, err := syscall.Read(p.f, data)
	return n, wrapErr("read", err)
}

func (p *Port) Read(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	if p.options.ReadTimeout > -1 {
		return p.readTimeout(data, p.options.ReadTimeout)
	}
	n, err := syscall.Read(p.f, data)
	return n, wrapErr("read", err)
}

func (p *Port) ReadTimeout(data []byte, timeout time.Duration) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	return p.readTimeout(data, timeout)
}

func (p *Port) SetReadTimeout(timeout time.Duration) {
	p.options.ReadTimeout = timeout
}

func (p *Port) Fd() int {
	if p.closed.Load() {
		return -1
	}
	return p.f
}

func (p *Port) Close() error {
	if !p.closed.Swap(true) {
		fd := p.f
		p.f = -1
		return wrapErr("close", syscall.Close(fd))
	}
	return ErrClosed
}

func (p *Port) GetAttr() (*Termios, error) {
	attrs := &Termios{}
	if err := ioctl.Ioctl(uintptr(p.f), tcgets, uintptr(unsafe.Pointer(attrs))); err != nil {
		return nil, wrapErr("TCGETS", err)
	}
	return attrs, nil
}

func (p *Port) SetAttr(when Action, attrs *Termios) error {
	return wrapErr("TCSETS", ioctl.Ioctl(uintptr(p.f), tcsets+uintptr(when), uintptr(unsafe.Pointer(attrs))))
}

func (p *Port) GetAttr2() (*Termios2, error) {
	attrs := &Termios2{}
	if err := ioctl.Ioctl(uintptr(p.f), tcgets2, uintptr(unsafe.Pointer(attrs))); err != nil {
		return nil, wrapErr("TCGETS2", err)
	}
	return attrs, nil
}

func (p *Port) SetAttr2(attrs *Termios2) error {
	return wrapErr("TCSETS2", ioctl.Ioctl(uintptr(p.f), tcsets2, uintptr(unsafe.Pointer(attrs))))
}

// SetBreak turns the line break condition on: continuous space (logic
// zero) until ClearBreak is called.
func (p *Port) SetBreak() error {
	return wrapErr("TIOCSBRK", ioctl.Ioctl(uintptr(p.f), tiocsbrk, 0))
}

// ClearBreak ends a break condition previously started with SetBreak.
func (p *Port) ClearBreak() error {
	return wrapErr("TIOCCBRK", ioctl.Ioctl(uintptr(p.f), tioccbrk, 0))
}

// Drain blocks until all written output has been transmitted.
func (p *Port) Drain() error {
	return wrapErr("TCSBRK", ioctl.Ioctl(uintptr(p.f), tcsbrk, 1))
}

// Flush discards data written but not yet transmitted, received but not
// yet read, or both, depending on queue.
func (p *Port) Flush(queue Queue) error {
	return wrapErr("TCFLSH", ioctl.Ioctl(uintptr(p.f), tcflsh, uintptr(queue)))
}

// MakeRaw strips canonical-mode, echo and signal-generating behaviour so
// every byte written to the wire passes through untouched.
func (p *Port) MakeRaw() error {
	attrs, err := p.GetAttr()
	if err != nil {
		return err
	}
	attrs.MakeRaw()
	return p.SetAttr(TCSANOW, attrs)
}

func (attrs *Termios) MakeRaw() {
	attrs.Iflag &^= IGNBRK | BRKINT | PARMRK | ISTRIP | INLCR | IGNCR | ICRNL | IXON
	attrs.Oflag &^= OPOST
	attrs.Lflag &^= ECHO | ECHONL | ICANON | ISIG | IEXTEN
	attrs.Cflag &^= CSIZE | PARENB
	attrs.Cflag |= CS8
}

func (attrs *Termios2) MakeRaw() {
	attrs.Iflag &^= IGNBRK | BRKINT | PARMRK | ISTRIP | INLCR | IGNCR | ICRNL | IXON
	attrs.Oflag &^= OPOST
	attrs.Lflag &^= ECHO | ECHONL | ICANON | ISIG | IEXTEN
	attrs.Cflag &^= CSIZE | PARENB
	attrs.Cflag |= CS8
}

func (attrs *Termios) SetSpeed(speed CFlag) {
	attrs.Cflag &^= CBAUD
	attrs.Cflag |= speed
}

func (attrs *Termios2) SetSpeed(speed CFlag) {
	attrs.Cflag &^= CBAUD
	attrs.Cflag |= speed
}

// SetCustomSpeed requests an arbitrary baud rate via BOTHER, bypassing the
// fixed B-constant table entirely.
func (attrs *Termios2) SetCustomSpeed(baud uint32) {
	attrs.Cflag &^= CBAUD
	attrs.Cflag |= BOTHER
	attrs.ISpeed = baud
	attrs.OSpeed = baud
}
