//go:build !linux

// Package i2c talks to register-mapped devices on a Linux /dev/i2c-* bus.
package i2c

import "errors"

var errUnsupported = errors.New("i2c: requires linux")

type Bus struct{}

type Dev struct{ addr uint16 }

func Open(path string) (*Bus, error) { return nil, errUnsupported }

func OpenNumber(n int) (*Bus, error) { return nil, errUnsupported }

func (b *Bus) Path() string { return "" }

func (b *Bus) Close() error { return nil }

func (b *Bus) Dev(addr uint16) *Dev { return &Dev{addr: addr} }

func (d *Dev) Addr() uint16 { return d.addr }

func (d *Dev) ReadReg(reg byte, dst []byte) error { return errUnsupported }

func (d *Dev) ReadRegU8(reg byte) (byte, error) { return 0, errUnsupported }

func (d *Dev) WriteReg(reg, value byte) error { return errUnsupported }
