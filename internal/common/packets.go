package common

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrEmptyPacket     = errors.New("empty packet")
	ErrUnknownOpcode   = errors.New("unknown opcode")
	ErrTruncated       = errors.New("packet truncated")
	ErrPayloadTooLarge = errors.New("payload too large")
)

type DecodeError struct {
	Opcode Opcode
	Length int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %v packet (%d bytes): %v", e.Opcode, e.Length, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Packet is one of the four packet kinds. Block and Data are only used by
// Data and Ack packets, Message by Request (filename) and Error packets.
type Packet struct {
	Opcode  Opcode
	Block   uint8
	Data    []byte
	Message string
}

func NewRequest(filename string) *Packet {
	return &Packet{
		Opcode:  Request,
		Message: filename,
	}
}

func NewData(block uint8, data []byte) *Packet {
	return &Packet{
		Opcode: Data,
		Block:  block,
		Data:   data,
	}
}

func NewAck(block uint8) *Packet {
	return &Packet{
		Opcode: Ack,
		Block:  block,
	}
}

func NewError(msg string) *Packet {
	return &Packet{
		Opcode:  Error,
		Message: msg,
	}
}

func (pck *Packet) GetFilePath() (string, error) {
	if pck.Opcode != Request {
		return "", fmt.Errorf("can not get file path from %v packet", pck.Opcode)
	}
	return pck.Message, nil
}

func (pck *Packet) IsFinal() bool {
	return pck.Opcode == Data && len(pck.Data) < BlockSize
}

func (pck *Packet) ToBytes() []byte {
	switch pck.Opcode {
	case Data:
		arr := make([]byte, HeaderSize+len(pck.Data))
		arr[0] = byte(Data)
		arr[1] = pck.Block
		copy(arr[HeaderSize:], pck.Data)
		return arr
	case Ack:
		return []byte{byte(Ack), pck.Block}
	case Error:
		arr := make([]byte, 0, len(pck.Message)+2)
		arr = append(arr, byte(Error))
		arr = append(arr, pck.Message...)
		return append(arr, 0)
	default:
		arr := make([]byte, 0, len(pck.Message)+1)
		arr = append(arr, byte(pck.Opcode))
		return append(arr, pck.Message...)
	}
}

// PacketFromBytes decodes one datagram. The returned packet does not alias
// bytes, so receive buffers can be reused.
func PacketFromBytes(bytes []byte) (Packet, error) {
	if len(bytes) == 0 {
		return Packet{}, &DecodeError{Length: 0, Err: ErrEmptyPacket}
	}

	op := Opcode(bytes[0])
	fail := func(err error) (Packet, error) {
		return Packet{}, &DecodeError{Opcode: op, Length: len(bytes), Err: err}
	}

	switch op {
	case Request:
		return Packet{Opcode: Request, Message: string(bytes[1:])}, nil
	case Data:
		if len(bytes) < HeaderSize {
			return fail(ErrTruncated)
		}
		if len(bytes)-HeaderSize > BlockSize {
			return fail(ErrPayloadTooLarge)
		}
		data := make([]byte, len(bytes)-HeaderSize)
		copy(data, bytes[HeaderSize:])
		return Packet{Opcode: Data, Block: bytes[1], Data: data}, nil
	case Ack:
		if len(bytes) < HeaderSize {
			return fail(ErrTruncated)
		}
		return Packet{Opcode: Ack, Block: bytes[1]}, nil
	case Error:
		return Packet{Opcode: Error, Message: errorMessage(bytes[1:])}, nil
	default:
		// Unknown opcodes fail like empty input so receive loops can drop them.
		return fail(ErrUnknownOpcode)
	}
}

// errorMessage cuts the message at its terminator, a missing one is tolerated.
func errorMessage(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
