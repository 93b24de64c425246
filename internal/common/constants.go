package common

import "time"

const ServerPort = 50000

const (
	BlockSize         = 512
	HeaderSize        = 1 + 1
	RequestBufferSize = 1472
	PacketSize        = HeaderSize + BlockSize
)

const (
	AckTimeout        = time.Second
	MaxResendAttempts = 5
)

const (
	MsgFileNotFound  = "file not found"
	MsgMaxRetransmit = "connection closed: max retransmit attempts reached"
)

type Opcode uint8

const (
	Request Opcode = iota + 1
	Data
	Ack
	Error
)

func (op Opcode) String() string {
	switch op {
	case Request:
		return "Request"
	case Data:
		return "Data"
	case Ack:
		return "Ack"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// FirstBlock is the block number of the first Data packet of every transfer.
const FirstBlock uint8 = 1

// lastBlock is the highest usable block number, the counter wraps to
// FirstBlock instead of reaching 255.
const lastBlock uint8 = 254

func NextBlock(block uint8) uint8 {
	if block >= lastBlock {
		return FirstBlock
	}
	return block + 1
}

// PrevBlock returns the block confirmed before block. ok is false when
// block is the first block and the counter has not wrapped yet.
func PrevBlock(block uint8, wrapped bool) (prev uint8, ok bool) {
	if block <= FirstBlock {
		if !wrapped {
			return 0, false
		}
		return lastBlock, true
	}
	return block - 1, true
}
