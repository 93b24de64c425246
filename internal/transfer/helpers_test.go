package transfer

import (
	"errors"
	"io"
	"math/rand"
	"net"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/Utftp/internal/common"
)

func init() {
	log.SetOutput(io.Discard)
}

func listen(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPacket(t *testing.T, conn net.PacketConn, timeout time.Duration) (common.Packet, net.Addr) {
	t.Helper()
	pck, addr, err := tryReadPacket(conn, timeout)
	if err != nil {
		t.Fatalf("read packet: %v", err)
	}
	return pck, addr
}

func tryReadPacket(conn net.PacketConn, timeout time.Duration) (common.Packet, net.Addr, error) {
	buf := make([]byte, common.RequestBufferSize)
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return common.Packet{}, nil, err
	}
	n, addr, err := conn.ReadFrom(buf)
	if err != nil {
		return common.Packet{}, nil, err
	}
	pck, err := common.PacketFromBytes(buf[:n])
	return pck, addr, err
}

func send(t *testing.T, conn net.PacketConn, pck *common.Packet, to net.Addr) {
	t.Helper()
	if _, err := conn.WriteTo(pck.ToBytes(), to); err != nil {
		t.Fatal(err)
	}
}

func expectSilence(t *testing.T, conn net.PacketConn, wait time.Duration) {
	t.Helper()
	pck, _, err := tryReadPacket(conn, wait)
	if err == nil {
		t.Fatalf("unexpected %v packet (block %d)", pck.Opcode, pck.Block)
	}
	if !isTimeout(err) {
		t.Fatal(err)
	}
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

func fast(o *Options) {
	o.Timeout = 50 * time.Millisecond
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("transfer did not finish")
		return errors.New("unreachable")
	}
}

// lossyConn drops every outgoing datagram for which drop returns true.
type lossyConn struct {
	net.PacketConn
	drop func(pck common.Packet) bool
}

func (c *lossyConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	if pck, err := common.PacketFromBytes(p); err == nil && c.drop(pck) {
		return len(p), nil
	}
	return c.PacketConn.WriteTo(p, addr)
}

// dropFirst drops the first packet of the given kind and block only.
func dropFirst(op common.Opcode, block uint8) func(common.Packet) bool {
	dropped := false
	return func(pck common.Packet) bool {
		if !dropped && pck.Opcode == op && pck.Block == block {
			dropped = true
			return true
		}
		return false
	}
}
