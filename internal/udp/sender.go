// Package udp sends the same datagram to a fixed list of listeners.
package udp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

type udpConn interface {
	io.Writer
	io.Closer
}

type (
	resolveFunc func(network, address string) (*net.UDPAddr, error)
	dialFunc    func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)
)

type target struct {
	addr string
	conn udpConn
}

// Sender holds one connected socket per target.
type Sender struct {
	targets []target
}

// Dial connects to every host:port in addrs. Blank entries are skipped; any
// resolve or dial failure closes what was opened and fails the whole call.
func Dial(addrs []string) (*Sender, error) {
	return dial(addrs, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func dial(addrs []string, resolve resolveFunc, dialUDP dialFunc) (*Sender, error) {
	s := &Sender{}
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		raddr, err := resolve("udp", a)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("udp: resolve %s: %w", a, err)
		}
		// A nil laddr lets the kernel pick the outgoing interface.
		conn, err := dialUDP("udp", nil, raddr)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("udp: dial %s: %w", a, err)
		}
		s.targets = append(s.targets, target{addr: a, conn: conn})
	}
	return s, nil
}

// Targets returns the configured destinations in order.
func (s *Sender) Targets() []string {
	out := make([]string, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, t.addr)
	}
	return out
}

// Send writes payload to every target. One failing target does not stop the
// others; all failures are joined.
func (s *Sender) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var errs []error
	for _, t := range s.targets {
		if _, err := t.conn.Write(payload); err != nil {
			errs = append(errs, fmt.Errorf("udp: send %s: %w", t.addr, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Sender) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, t := range s.targets {
		if err := t.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.targets = nil
	return errors.Join(errs...)
}
