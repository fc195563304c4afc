// services/houseblocks/frame.go
package houseblocks

import (
	"homectl-go/errcode"

	"github.com/pkg/errors"
)

// Wire framing:
//
//	'$' flag(1) device-type(4) serial(8) payload(0..MAX) crc(4 hex) '\n'
//
// flag is 'S' for service (boot-loader) mode, 'A' for application mode. The
// CRC covers flag, address and payload.
const (
	frameStart = '$'
	frameEnd   = '\n'

	flagService     = 'S'
	flagApplication = 'A'

	crcHexLen = 4
)

// crc16 is CRC-16/ARC: poly 0x8005 reflected, init 0x0000, no final xor.
// The polynomial is this implementation's choice of wire checksum; it lives
// in this one function so it can be swapped to match other firmware.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

const hexUpper = "0123456789ABCDEF"

func hexNibble(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	default:
		return 0, false
	}
}

// EncodeFrame renders one on-wire frame.
func EncodeFrame(serviceMode bool, address Address, payload Payload) []byte {
	flag := byte(flagApplication)
	if serviceMode {
		flag = flagService
	}

	body := make([]byte, 0, 1+DeviceTypeLen+SerialLen+len(payload))
	body = append(body, flag)
	body = append(body, address.DeviceType[:]...)
	body = append(body, address.Serial[:]...)
	body = append(body, payload...)

	crc := crc16(body)

	frame := make([]byte, 0, len(body)+2+crcHexLen)
	frame = append(frame, frameStart)
	frame = append(frame, body...)
	frame = append(frame,
		hexUpper[(crc>>12)&0xF],
		hexUpper[(crc>>8)&0xF],
		hexUpper[(crc>>4)&0xF],
		hexUpper[crc&0xF],
	)
	frame = append(frame, frameEnd)
	return frame
}

// Frame is one parsed wire frame.
type Frame struct {
	ServiceMode bool
	Address     Address
	Payload     Payload
}

// ParseFrame decodes a complete frame including start and end bytes.
func ParseFrame(data []byte) (Frame, error) {
	const minLen = 1 + 1 + DeviceTypeLen + SerialLen + crcHexLen + 1
	if len(data) < minLen {
		return Frame{}, errors.Wrap(errcode.FrameDecode, "frame too short")
	}
	if data[0] != frameStart {
		return Frame{}, errors.Wrapf(errcode.FrameDecode, "bad start byte 0x%02x", data[0])
	}
	if data[len(data)-1] != frameEnd {
		return Frame{}, errors.Wrapf(errcode.FrameDecode, "bad end byte 0x%02x", data[len(data)-1])
	}

	body := data[1 : len(data)-1-crcHexLen]
	crcHex := data[len(data)-1-crcHexLen : len(data)-1]

	var crcWire uint16
	for _, b := range crcHex {
		nibble, ok := hexNibble(b)
		if !ok {
			return Frame{}, errors.Wrapf(errcode.FrameDecode, "bad crc character %q", b)
		}
		crcWire = crcWire<<4 | uint16(nibble)
	}
	if crc := crc16(body); crc != crcWire {
		return Frame{}, errors.Wrapf(errcode.FrameDecode, "crc mismatch: computed %04X, wire %04X", crc, crcWire)
	}

	var frame Frame
	switch body[0] {
	case flagService:
		frame.ServiceMode = true
	case flagApplication:
		frame.ServiceMode = false
	default:
		return Frame{}, errors.Wrapf(errcode.FrameDecode, "bad mode flag %q", body[0])
	}

	copy(frame.Address.DeviceType[:], body[1:1+DeviceTypeLen])
	copy(frame.Address.Serial[:], body[1+DeviceTypeLen:1+DeviceTypeLen+SerialLen])

	payload := body[1+DeviceTypeLen+SerialLen:]
	if len(payload) > MaxPayloadLen {
		return Frame{}, errors.Wrapf(errcode.FrameDecode, "payload too long: %d", len(payload))
	}
	frame.Payload = append(Payload(nil), payload...)

	return frame, nil
}
