package serial

import (
	"encoding/binary"
	"io"
	"math"
	"net"
	"sync"

	"github.com/mirror-control/mcc/internal/mirror"
)

// emulator answers the framed protocol the way the mirror firmware does.
type emulator struct {
	mu        sync.Mutex
	capacity  uint16
	model     string
	locked    bool
	connected bool
	temps     [4]float64
	status    map[byte]mirror.Status
	applied   []mirror.Command
	trigs     []bool
	corrupt   bool
}

func newEmulator() *emulator {
	return &emulator{
		capacity:  64,
		model:     "mirao 52-e",
		connected: true,
		temps:     [4]float64{25, 32, 1.1, 1.0},
		status:    make(map[byte]mirror.Status),
	}
}

// dialer returns a Dialer that serves each connection with e.
func (e *emulator) dialer() Dialer {
	return func(cfg Config) (io.ReadWriteCloser, error) {
		client, device := net.Pipe()
		go e.serve(device)
		return client, nil
	}
}

func (e *emulator) serve(conn net.Conn) {
	defer conn.Close()
	for {
		req, err := readFrame(conn)
		if err != nil {
			return
		}
		resp := frame{seq: req.seq, op: req.op | responseBit, payload: e.handle(req)}
		out := resp.marshal()

		e.mu.Lock()
		if e.corrupt {
			out[len(out)-1] ^= 0xFF
		}
		e.mu.Unlock()

		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func (e *emulator) handle(req frame) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	if st, ok := e.status[req.op]; ok {
		return []byte{byte(st)}
	}

	switch req.op {
	case opConnect:
		out := make([]byte, connectFixedSize, connectFixedSize+len(e.model))
		binary.LittleEndian.PutUint16(out[1:3], e.capacity)
		for i, v := range []float64{45, 60, 4.5, 4.5} {
			binary.LittleEndian.PutUint64(out[3+i*8:], math.Float64bits(v))
		}
		return append(out, e.model...)
	case opApply:
		var c mirror.Command
		copy(c[:], getFloats(req.payload[1:], mirror.NumActuators))
		if e.locked && !c.IsZero() {
			return []byte{byte(mirror.StatusDeviceLocked)}
		}
		e.applied = append(e.applied, c)
		e.trigs = append(e.trigs, req.payload[0]&flagTrig != 0)
		return []byte{byte(mirror.StatusOK)}
	case opTelemetry:
		out := make([]byte, telemetryFixedSize)
		if e.locked {
			out[1] |= flagLocked
		}
		if e.connected {
			out[1] |= flagConnected
		}
		for i, v := range e.temps {
			binary.LittleEndian.PutUint64(out[2+i*8:], math.Float64bits(v))
		}
		return out
	default:
		return []byte{byte(mirror.StatusOK)}
	}
}

func (e *emulator) appliedCommands() ([]mirror.Command, []bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]mirror.Command(nil), e.applied...), append([]bool(nil), e.trigs...)
}
