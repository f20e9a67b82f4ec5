// Package mrofile reads and writes mirror commands in the .mro binary record.
//
// A record is a 20-byte ASCII version tag followed by the 52 actuator values
// as IEEE-754 float64, little-endian. Exactly one revision is supported; a
// record carrying another well-formed revision tag is rejected, never
// upgraded. The .mro suffix is a naming convention left to callers.
package mrofile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"

	"github.com/mirror-control/mcc/internal/mirror"
)

const (
	// Version is the supported record revision.
	Version = "MRO.001.001.20080609"

	// Extension is the conventional file suffix.
	Extension = ".mro"

	tagSize     = len(Version)
	payloadSize = mirror.NumActuators * 8

	// RecordSize is the exact length of an encoded record.
	RecordSize = tagSize + payloadSize
)

var versionPattern = regexp.MustCompile(`^MRO\.\d{3}\.\d{3}\.\d{8}$`)

// Marshal validates c and returns its encoded record.
func Marshal(c mirror.Command) ([]byte, error) {
	if err := mirror.Validate(c); err != nil {
		return nil, err
	}
	buf := make([]byte, RecordSize)
	copy(buf, Version)
	for i, v := range c {
		binary.LittleEndian.PutUint64(buf[tagSize+i*8:], math.Float64bits(v))
	}
	return buf, nil
}

// Unmarshal decodes a complete record.
func Unmarshal(data []byte) (mirror.Command, error) {
	var c mirror.Command
	if len(data) < tagSize {
		return c, fmt.Errorf("%w: record of %d bytes has no version tag", mirror.ErrFileFormat, len(data))
	}
	tag := string(data[:tagSize])
	if tag != Version {
		if versionPattern.MatchString(tag) {
			return c, fmt.Errorf("%w: record revision %s, supported %s", mirror.ErrFileFormatVersion, tag, Version)
		}
		return c, fmt.Errorf("%w: unrecognized version tag %q", mirror.ErrFileFormat, tag)
	}
	if len(data) != RecordSize {
		return c, fmt.Errorf("%w: expected %d bytes, got %d", mirror.ErrFileFormat, RecordSize, len(data))
	}
	for i := range c {
		c[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[tagSize+i*8:]))
	}
	if err := mirror.Validate(c); err != nil {
		return mirror.Command{}, err
	}
	return c, nil
}

// Encode writes the record for c to w. Invalid commands are rejected before
// any byte is written.
func Encode(w io.Writer, c mirror.Command) error {
	buf, err := Marshal(c)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return ioError(err)
	}
	return nil
}

// Decode reads one record from r. Reading stops one byte past the record so
// trailing data is detected as a layout error.
func Decode(r io.Reader) (mirror.Command, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, int64(RecordSize)+1)); err != nil {
		return mirror.Command{}, ioError(err)
	}
	return Unmarshal(buf.Bytes())
}

func ioError(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", mirror.ErrFileFormat, err)
	}
	return classify(err)
}
