package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sync(1) + Sequence(2) + Target(1) + Command(1) + Length(1) + Payload + CRC(2)
type Frame struct {
	Sequence uint16  // request/ack correlation
	Target   Target  // addressed stimulator
	Command  Command // operation
	Payload  []byte  // at most MaxPayload bytes
}

type Command uint8

const (
	CmdHello          Command = 0x01
	CmdAck            Command = 0x02
	CmdNack           Command = 0x03
	CmdStartStim      Command = 0x10
	CmdStopStim       Command = 0x11
	CmdAnalog         Command = 0x12
	CmdSave           Command = 0x20
	CmdLoad           Command = 0x21
	CmdRequestConfigs Command = 0x22
	CmdWaveform       Command = 0x23
	CmdEventShape     Command = 0x24
	CmdIPD            Command = 0x25
)

const (
	syncByte   = 0xA5
	headerLen  = 6
	crcLen     = 2
	MaxPayload = 255
)

// Capability bits carried in the hello ack payload.
const capBasic = 0x01

var (
	ErrShortFrame  = errors.New("frame incomplete")
	ErrBadSync     = errors.New("frame sync byte missing")
	ErrBadChecksum = errors.New("frame checksum mismatch")
)

func (c Command) String() string {
	switch c {
	case CmdHello:
		return "hello"
	case CmdAck:
		return "ack"
	case CmdNack:
		return "nack"
	case CmdStartStim:
		return "start_stim"
	case CmdStopStim:
		return "stop_stim"
	case CmdAnalog:
		return "analog"
	case CmdSave:
		return "save"
	case CmdLoad:
		return "load"
	case CmdRequestConfigs:
		return "request_configs"
	case CmdWaveform:
		return "waveform"
	case CmdEventShape:
		return "event_shape"
	case CmdIPD:
		return "ipd"
	default:
		return fmt.Sprintf("cmd(0x%02X)", uint8(c))
	}
}

// Encode builds the complete wire frame.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, fmt.Errorf("payload too long: %d bytes", len(f.Payload))
	}

	frame := make([]byte, headerLen+len(f.Payload)+crcLen)

	frame[0] = syncByte
	binary.BigEndian.PutUint16(frame[1:3], f.Sequence)
	frame[3] = byte(f.Target)
	frame[4] = byte(f.Command)
	frame[5] = byte(len(f.Payload))
	copy(frame[headerLen:], f.Payload)

	end := headerLen + len(f.Payload)
	hi, lo := CRC16CCITT(frame[1:end])
	frame[end] = hi
	frame[end+1] = lo

	return frame, nil
}

// DecodeFrame parses one frame from the start of data and reports how many
// bytes it consumed. ErrShortFrame means more bytes are needed.
func DecodeFrame(data []byte) (*Frame, int, error) {
	if len(data) == 0 {
		return nil, 0, ErrShortFrame
	}
	if data[0] != syncByte {
		return nil, 0, ErrBadSync
	}
	if len(data) < headerLen {
		return nil, 0, ErrShortFrame
	}

	length := int(data[5])
	total := headerLen + length + crcLen
	if len(data) < total {
		return nil, 0, ErrShortFrame
	}

	end := headerLen + length
	hi, lo := CRC16CCITT(data[1:end])
	if data[end] != hi || data[end+1] != lo {
		return nil, total, ErrBadChecksum
	}

	frame := &Frame{
		Sequence: binary.BigEndian.Uint16(data[1:3]),
		Target:   Target(data[3]),
		Command:  Command(data[4]),
	}
	if length > 0 {
		frame.Payload = append([]byte(nil), data[headerLen:end]...)
	}

	return frame, total, nil
}

// AckedSequence returns the sequence an ack or nack refers to.
func (f *Frame) AckedSequence() (uint16, bool) {
	if (f.Command != CmdAck && f.Command != CmdNack) || len(f.Payload) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(f.Payload[0:2]), true
}

func ackFrame(req *Frame, extra ...byte) *Frame {
	payload := make([]byte, 2, 2+len(extra))
	binary.BigEndian.PutUint16(payload, req.Sequence)
	payload = append(payload, extra...)
	return &Frame{
		Sequence: req.Sequence,
		Target:   req.Target,
		Command:  CmdAck,
		Payload:  payload,
	}
}

// CRC16CCITT is the bitwise CRC used over every frame after the sync byte.
func CRC16CCITT(buf []byte) (byte, byte) {
	var crc uint16 = 0xffff
	for _, b := range buf {
		data := uint16(b)
		data ^= crc & 0xff
		data ^= (data & 0x0f) << 4
		crc = (crc >> 8) ^ (data << 8) ^ (data << 3) ^ (data >> 4)
	}
	return byte(crc >> 8), byte(crc & 0xff)
}
