package serial

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/mirror-control/mcc/internal/mirror"
)

// Frame layout, all multi-byte fields little-endian except the CRC:
//
//	0x7E | len(2) | seq | op | payload[len] | crc16(2, big-endian)
//
// The CRC covers len through payload. Responses echo seq and set the high
// bit of op; their first payload byte is the device status.
const (
	frameSync     = 0x7E
	headerSize    = 5
	trailerSize   = 2
	maxPayload    = 1024
	maxResyncSkip = 4096
	responseBit   = 0x80
)

// Operation codes.
const (
	opConnect    byte = 0x01
	opDisconnect byte = 0x02
	opApply      byte = 0x03
	opTelemetry  byte = 0x04
)

type frame struct {
	seq     byte
	op      byte
	payload []byte
}

// crc16 is the CCITT variant used by Klipper-style MCU links.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc & 0xFF)
		b ^= b << 4
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}

func (f frame) marshal() []byte {
	buf := make([]byte, headerSize+len(f.payload)+trailerSize)
	buf[0] = frameSync
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(f.payload)))
	buf[3] = f.seq
	buf[4] = f.op
	copy(buf[5:], f.payload)
	binary.BigEndian.PutUint16(buf[5+len(f.payload):], crc16(buf[1:5+len(f.payload)]))
	return buf
}

// readFrame scans for the sync byte and reads one complete frame.
// Corrupted frames fail with ErrDeviceIO.
func readFrame(r io.Reader) (frame, error) {
	var one [1]byte
	for skipped := 0; ; skipped++ {
		if skipped > maxResyncSkip {
			return frame{}, fmt.Errorf("%w: no frame sync in %d bytes", mirror.ErrDeviceIO, maxResyncSkip)
		}
		if _, err := io.ReadFull(r, one[:]); err != nil {
			return frame{}, err
		}
		if one[0] == frameSync {
			break
		}
	}

	head := make([]byte, headerSize-1)
	if _, err := io.ReadFull(r, head); err != nil {
		return frame{}, err
	}
	n := int(binary.LittleEndian.Uint16(head[0:2]))
	if n > maxPayload {
		return frame{}, fmt.Errorf("%w: frame length %d exceeds %d", mirror.ErrDeviceIO, n, maxPayload)
	}

	rest := make([]byte, n+trailerSize)
	if _, err := io.ReadFull(r, rest); err != nil {
		return frame{}, err
	}

	checked := append(head, rest[:n]...)
	if got, want := binary.BigEndian.Uint16(rest[n:]), crc16(checked); got != want {
		return frame{}, fmt.Errorf("%w: CRC mismatch %04x != %04x", mirror.ErrDeviceIO, got, want)
	}
	return frame{seq: head[2], op: head[3], payload: rest[:n]}, nil
}

func putCommand(buf []byte, c mirror.Command) {
	for i, v := range c {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
}

func getFloats(buf []byte, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out
}
