package udp

import (
	"errors"
	"net"
	"reflect"
	"testing"
	"time"
)

type fakeConn struct {
	writes   [][]byte
	writeErr error
	closed   bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func fakeDialer(conns map[string]*fakeConn) dialFunc {
	return func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		c := &fakeConn{}
		conns[raddr.String()] = c
		return c, nil
	}
}

func TestDial_SkipsBlankTargets(t *testing.T) {
	conns := map[string]*fakeConn{}
	s, err := dial([]string{"127.0.0.1:4000", " ", "127.0.0.1:4001"}, net.ResolveUDPAddr, fakeDialer(conns))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()
	if got, want := s.Targets(), []string{"127.0.0.1:4000", "127.0.0.1:4001"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("targets=%v want %v", got, want)
	}
	if len(conns) != 2 {
		t.Fatalf("dialed %d want 2", len(conns))
	}
}

func TestDial_ResolveFailureClosesOpened(t *testing.T) {
	conns := map[string]*fakeConn{}
	resolveErr := errors.New("nope")
	resolve := func(network, address string) (*net.UDPAddr, error) {
		if address == "bad:addr" {
			return nil, resolveErr
		}
		return net.ResolveUDPAddr(network, address)
	}
	_, err := dial([]string{"127.0.0.1:4000", "bad:addr"}, resolve, fakeDialer(conns))
	if !errors.Is(err, resolveErr) {
		t.Fatalf("err=%v want %v", err, resolveErr)
	}
	if c := conns["127.0.0.1:4000"]; c == nil || !c.closed {
		t.Fatalf("first target not closed")
	}
}

func TestSend_EmptyPayloadNoWrite(t *testing.T) {
	c := &fakeConn{}
	s := &Sender{targets: []target{{addr: "x", conn: c}}}
	if err := s.Send(nil); err != nil {
		t.Fatalf("Send(nil): %v", err)
	}
	if len(c.writes) != 0 {
		t.Fatalf("writes=%d want 0", len(c.writes))
	}
}

func TestSend_ContinuesPastFailingTarget(t *testing.T) {
	boom := errors.New("boom")
	bad := &fakeConn{writeErr: boom}
	good := &fakeConn{}
	s := &Sender{targets: []target{{addr: "bad", conn: bad}, {addr: "good", conn: good}}}

	err := s.Send([]byte("hi"))
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
	if len(good.writes) != 1 || string(good.writes[0]) != "hi" {
		t.Fatalf("good writes=%q", good.writes)
	}
}

func TestClose_NilAndRepeated(t *testing.T) {
	var nilSender *Sender
	if err := nilSender.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
	s := &Sender{targets: []target{{addr: "x", conn: &fakeConn{}}}}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestDial_LoopbackDelivery(t *testing.T) {
	ln, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	s, err := Dial([]string{ln.LocalAddr().String()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer s.Close()
	if err := s.Send([]byte(`{"type":"navcore"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_ = ln.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := ln.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(buf[:n]); got != `{"type":"navcore"}` {
		t.Fatalf("got=%q", got)
	}
}
