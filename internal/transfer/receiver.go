package transfer

import (
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/Utftp/internal/common"
)

// Receiver writes incoming Data blocks to a file in order and acknowledges
// each one to the address it came from. It has no retransmission of its
// own and relies on the sender resending lost blocks.
type Receiver struct {
	conn    net.PacketConn
	file    io.Writer
	options *Options
	log     *log.Entry

	Stats *Stats
}

func NewReceiver(conn net.PacketConn, file io.Writer, opts ...func(*Options)) *Receiver {
	options := applyOptions(opts)
	return &Receiver{
		conn:    conn,
		file:    file,
		options: options,
		log:     options.Logger,
		Stats:   newStats(),
	}
}

// Run returns nil after the final block is written and acknowledged, or a
// *RemoteError when the sender reports an error.
func (r *Receiver) Run() error {
	buf := make([]byte, common.RequestBufferSize)
	expected := common.FirstBlock
	wrapped := false

	for {
		if r.options.ReadTimeout > 0 {
			if err := r.conn.SetReadDeadline(time.Now().Add(r.options.ReadTimeout)); err != nil {
				return fmt.Errorf("set read deadline: %w", err)
			}
		}

		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			return fmt.Errorf("receive block %d: %w", expected, err)
		}

		pck, err := common.PacketFromBytes(buf[:n])
		if err != nil {
			r.log.WithError(err).Warn("Received invalid Packet")
			continue
		}

		switch pck.Opcode {
		case common.Error:
			return &RemoteError{Message: pck.Message}
		case common.Data:
		default:
			r.log.WithField("Packet Type", pck.Opcode).Warn("Unexpected Packet Type")
			continue
		}

		if pck.Block != expected {
			// Our last Ack got lost and the sender repeated the block.
			prev, ok := common.PrevBlock(expected, wrapped)
			if !ok {
				r.log.WithField("Block", pck.Block).Warn("Dropping Data before first block")
				continue
			}
			r.Stats.duplicate(r.Stats.Blocks - 1)
			r.log.WithFields(log.Fields{"Block": pck.Block, "Expected": expected}).Info("Resending Ack")
			if err := r.ack(prev, addr); err != nil {
				return err
			}
			continue
		}

		if _, err := r.file.Write(pck.Data); err != nil {
			return fmt.Errorf("write block %d: %w", expected, err)
		}
		if err := r.ack(expected, addr); err != nil {
			return err
		}
		r.Stats.delivered(pck.Data)
		r.log.WithFields(log.Fields{"Block": pck.Block, "Size": len(pck.Data)}).Debug("Received Data")

		if pck.IsFinal() {
			r.log.WithFields(log.Fields{
				"Blocks":     r.Stats.Blocks,
				"Bytes":      r.Stats.Bytes,
				"Duplicates": r.Stats.Duplicates,
				"Digest":     r.Stats.Digest(),
			}).Info("Transfer done")
			return nil
		}

		next := common.NextBlock(expected)
		if next < expected {
			wrapped = true
		}
		expected = next
	}
}

func (r *Receiver) ack(block uint8, addr net.Addr) error {
	if _, err := r.conn.WriteTo(common.NewAck(block).ToBytes(), addr); err != nil {
		return fmt.Errorf("ack %d to %v: %w", block, addr, err)
	}
	return nil
}
