package transfer

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/Utftp/internal/common"
)

// Sender streams one file to one peer, keeping a single Data packet in
// flight until it is acknowledged.
type Sender struct {
	conn    net.PacketConn
	peer    net.Addr
	file    io.Reader
	options *Options
	log     *log.Entry

	Stats *Stats
}

func NewSender(conn net.PacketConn, peer net.Addr, file io.Reader, opts ...func(*Options)) *Sender {
	options := applyOptions(opts)
	return &Sender{
		conn:    conn,
		peer:    peer,
		file:    file,
		options: options,
		log:     options.Logger.WithField("Peer", peer.String()),
		Stats:   newStats(),
	}
}

// Run sends the file block by block. It returns nil once the final (short
// or empty) block is acknowledged and ErrMaxRetransmit when the peer stops
// answering. Run does not close the conn or the file.
func (s *Sender) Run() error {
	buf := make([]byte, common.BlockSize)
	block := common.FirstBlock
	var seq uint32

	for {
		r, err := io.ReadFull(s.file, buf)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read block %d: %w", seq, err)
		}

		pck := common.NewData(block, buf[:r])
		if err := s.sendAndWait(pck, seq); err != nil {
			return err
		}
		s.Stats.delivered(pck.Data)

		if pck.IsFinal() {
			s.log.WithFields(log.Fields{
				"Blocks":      s.Stats.Blocks,
				"Bytes":       s.Stats.Bytes,
				"Retransmits": s.Stats.Retransmits,
				"Digest":      s.Stats.Digest(),
			}).Info("File sent")
			return nil
		}

		block = common.NextBlock(block)
		seq++
	}
}

func (s *Sender) sendAndWait(pck *common.Packet, seq uint32) error {
	raw := pck.ToBytes()
	if err := s.write(raw); err != nil {
		return err
	}
	s.log.WithFields(log.Fields{"Block": pck.Block, "Size": len(pck.Data)}).Debug("Sent Data")

	// The deadline belongs to the last send, stale acks do not extend it.
	deadline := time.Now().Add(s.options.Timeout)
	attempts := 0
	buf := make([]byte, common.RequestBufferSize)

	for {
		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if !isTimeout(err) {
				return fmt.Errorf("wait for ack %d: %w", pck.Block, err)
			}

			if attempts >= s.options.MaxAttempts {
				s.log.WithField("Block", pck.Block).Warn("Connection closed at max resend attempts")
				if err := s.write(common.NewError(common.MsgMaxRetransmit).ToBytes()); err != nil {
					s.log.WithError(err).Error("Could not send Error packet")
				}
				return ErrMaxRetransmit
			}

			s.log.WithFields(log.Fields{"Block": pck.Block, "Attempt": attempts + 1}).Info("Timeout, resending packet")
			if err := s.write(raw); err != nil {
				return err
			}
			attempts++
			s.Stats.retransmitted(seq)
			deadline = time.Now().Add(s.options.Timeout)
			continue
		}

		if !sameAddr(addr, s.peer) {
			s.log.WithField("From", addr.String()).Warn("Dropping packet from unknown address")
			continue
		}

		reply, err := common.PacketFromBytes(buf[:n])
		if err != nil {
			s.log.WithError(err).Warn("Received invalid Packet")
			continue
		}

		switch reply.Opcode {
		case common.Ack:
			if reply.Block == pck.Block {
				return nil
			}
			s.log.WithFields(log.Fields{
				"Expected": pck.Block,
				"Received": reply.Block,
			}).Warn("Received wrong Acknowledge")
		case common.Error:
			return &RemoteError{Message: reply.Message}
		default:
			s.log.WithField("Packet Type", reply.Opcode).Warn("Unexpected Packet Type")
		}
	}
}

func (s *Sender) write(raw []byte) error {
	if _, err := s.conn.WriteTo(raw, s.peer); err != nil {
		return fmt.Errorf("write to %v: %w", s.peer, err)
	}
	return nil
}

func sameAddr(a, b net.Addr) bool {
	ua, okA := a.(*net.UDPAddr)
	ub, okB := b.(*net.UDPAddr)
	if okA && okB {
		return ua.Port == ub.Port && ua.IP.Equal(ub.IP)
	}
	return a.String() == b.String()
}
