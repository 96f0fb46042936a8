//go:build linux

// Package i2c talks to register-mapped devices on a Linux /dev/i2c-* bus.
package i2c

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl numbers from linux/i2c-dev.h.
const (
	ioctlRDWR = 0x0707
	flagRead  = 0x0001
)

type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type i2cRdwrIoctlData struct {
	msgs  uintptr
	nmsgs uint32
}

// Bus is an open adapter. Transfers from every Dev on the bus are
// serialized.
type Bus struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func Open(path string) (*Bus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2c: open %s: %w", path, err)
	}
	return &Bus{f: f, path: path}, nil
}

// OpenNumber opens /dev/i2c-n.
func OpenNumber(n int) (*Bus, error) {
	return Open(fmt.Sprintf("/dev/i2c-%d", n))
}

func (b *Bus) Path() string {
	if b == nil {
		return ""
	}
	return b.path
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

// Dev returns a handle for the 7-bit address addr.
func (b *Bus) Dev(addr uint16) *Dev {
	if b == nil {
		return nil
	}
	return &Dev{bus: b, addr: addr}
}

type Dev struct {
	bus  *Bus
	addr uint16
}

func (d *Dev) Addr() uint16 { return d.addr }

// ReadReg reads len(dst) bytes starting at reg using a repeated start.
func (d *Dev) ReadReg(reg byte, dst []byte) error {
	return d.transfer([]byte{reg}, dst)
}

func (d *Dev) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := d.ReadReg(reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Dev) WriteReg(reg, value byte) error {
	return d.transfer([]byte{reg, value}, nil)
}

func (d *Dev) transfer(w, r []byte) error {
	if d == nil || d.bus == nil {
		return errors.New("i2c: nil device")
	}
	if d.addr == 0 || d.addr > 0x7F {
		return fmt.Errorf("i2c: invalid address 0x%X", d.addr)
	}

	var msgs [2]i2cMsg
	n := 0
	if len(w) > 0 {
		msgs[n] = i2cMsg{addr: d.addr, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))}
		n++
	}
	if len(r) > 0 {
		msgs[n] = i2cMsg{addr: d.addr, flags: flagRead, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))}
		n++
	}
	if n == 0 {
		return nil
	}

	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	if d.bus.f == nil {
		return fmt.Errorf("i2c: %s is closed", d.bus.path)
	}
	data := i2cRdwrIoctlData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(n)}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.bus.f.Fd(), uintptr(ioctlRDWR), uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return fmt.Errorf("i2c: addr 0x%02X: %w", d.addr, errno)
	}
	return nil
}
