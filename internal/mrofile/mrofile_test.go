package mrofile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mirror-control/mcc/internal/mirror"
)

func sampleCommand() mirror.Command {
	var c mirror.Command
	for i := range c {
		c[i] = float64(i%9-4) / 10
	}
	return c
}

func TestRoundTrip(t *testing.T) {
	commands := map[string]mirror.Command{
		"zero":   mirror.Zero(),
		"sample": sampleCommand(),
	}
	var boundary mirror.Command
	for i := range boundary {
		boundary[i] = mirror.MaxAbsSum / mirror.NumActuators
	}
	commands["boundary"] = boundary

	for name, c := range commands {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, c); err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if buf.Len() != RecordSize {
				t.Fatalf("Expected %d bytes, got %d", RecordSize, buf.Len())
			}
			got, err := Decode(&buf)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got != c {
				t.Errorf("Round trip mismatch:\n got %v\nwant %v", got, c)
			}
		})
	}
}

func TestRecordLayout(t *testing.T) {
	c := mirror.Zero()
	c[0] = 0.5
	data, err := Marshal(c)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data[:20]) != "MRO.001.001.20080609" {
		t.Errorf("Unexpected version tag %q", data[:20])
	}
	// 0.5 = 0x3FE0000000000000, little-endian.
	want := []byte{0, 0, 0, 0, 0, 0, 0xE0, 0x3F}
	if !bytes.Equal(data[20:28], want) {
		t.Errorf("Unexpected first value bytes % x", data[20:28])
	}
}

func TestDecodeErrors(t *testing.T) {
	valid, err := Marshal(sampleCommand())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	otherRevision := append([]byte(nil), valid...)
	copy(otherRevision, "MRO.001.002.20120101")

	garbageTag := append([]byte(nil), valid...)
	copy(garbageTag, "NOT-A-MIRROR-RECORD!")

	invalid := append([]byte(nil), valid...)
	// 2.0 as the first value.
	copy(invalid[20:28], []byte{0, 0, 0, 0, 0, 0, 0, 0x40})

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, mirror.ErrFileFormat},
		{"truncated tag", valid[:10], mirror.ErrFileFormat},
		{"truncated payload", valid[:RecordSize-3], mirror.ErrFileFormat},
		{"trailing bytes", append(append([]byte(nil), valid...), 0), mirror.ErrFileFormat},
		{"unrecognized tag", garbageTag, mirror.ErrFileFormat},
		{"other revision", otherRevision, mirror.ErrFileFormatVersion},
		{"value out of range", invalid, mirror.ErrInvalidCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDecodeReadsAtMostOneExtraByte(t *testing.T) {
	valid, err := Marshal(sampleCommand())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	stream := bytes.NewReader(append(valid, make([]byte, 64)...))

	if _, err := Decode(stream); !errors.Is(err, mirror.ErrFileFormat) {
		t.Fatalf("Expected ErrFileFormat for trailing data, got %v", err)
	}
	if stream.Len() != 63 {
		t.Errorf("Decode consumed %d trailing bytes, want 1", 64-stream.Len())
	}
}

type countingWriter struct{ n int }

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += len(p)
	return len(p), nil
}

func TestEncodeRejectsInvalidBeforeWriting(t *testing.T) {
	c := mirror.Zero()
	c[5] = 3
	w := &countingWriter{}
	if err := Encode(w, c); !errors.Is(err, mirror.ErrInvalidCommand) {
		t.Fatalf("Expected ErrInvalidCommand, got %v", err)
	}
	if w.n != 0 {
		t.Errorf("Expected no bytes written, got %d", w.n)
	}
}

func TestWriteFileOverwritePolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shape.mro")
	first := sampleCommand()

	if err := WriteFile(path, first, false); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	second := mirror.Zero()
	second[1] = -0.25
	if err := WriteFile(path, second, false); !errors.Is(err, mirror.ErrFileExists) {
		t.Fatalf("Expected ErrFileExists, got %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got != first {
		t.Error("Existing file was modified without overwrite")
	}

	if err := WriteFile(path, second, true); err != nil {
		t.Fatalf("WriteFile with overwrite failed: %v", err)
	}
	got, err = ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got != second {
		t.Error("Overwrite did not replace the record")
	}
}

func TestWriteFileRejectsInvalidCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.mro")
	c := mirror.Zero()
	c[0] = -1.5
	if err := WriteFile(path, c, true); !errors.Is(err, mirror.ErrInvalidCommand) {
		t.Fatalf("Expected ErrInvalidCommand, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Invalid command should not create a file")
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.mro"))
	if !errors.Is(err, mirror.ErrFileIO) || !errors.Is(err, mirror.ErrFileNotFound) {
		t.Fatalf("Expected ErrFileIO/ErrFileNotFound, got %v", err)
	}
	if mirror.StatusOf(err) != 33 {
		t.Errorf("Expected ENOENT status 33, got %d", mirror.StatusOf(err))
	}
}

func TestWriteFileMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "dir", "x.mro")
	if err := WriteFile(path, mirror.Zero(), true); !mirror.IsFileIO(err) {
		t.Fatalf("Expected a file IO error, got %v", err)
	}
}
