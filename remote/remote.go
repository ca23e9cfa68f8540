package remote

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cesanta/errors"
	"github.com/golang/glog"
	"github.com/pkg/term"
)

// How long to wait for the probe to answer one request.
const responseTimeout = 2 * time.Second

// Probe is a register-level handle on a remote debug probe. It satisfies
// the register interface adiv5.DebugPort runs on.
type Probe struct {
	rw     io.ReadWriter
	closer io.Closer
	d      Deframer
}

// NewProbe wraps an existing byte stream. Used by Open and directly by
// tests; transports opened elsewhere can be passed in the same way.
func NewProbe(rw io.ReadWriter) *Probe {
	return &Probe{rw: rw}
}

// Open connects to a probe on a serial device and checks it answers the
// version handshake.
func Open(device string, baud int) (*Probe, error) {
	t, err := term.Open(device, term.Speed(baud), term.RawMode)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open %s", device)
	}
	if err := t.SetReadTimeout(responseTimeout); err != nil {
		t.Close()
		return nil, errors.Annotatef(err, "failed to set read timeout on %s", device)
	}
	p := NewProbe(t)
	p.closer = t
	version, err := p.Version()
	if err != nil {
		t.Close()
		return nil, errors.Annotatef(err, "no probe answering on %s", device)
	}
	glog.Infof("remote probe: %s", version)
	return p, nil
}

func (p *Probe) Close() error {
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

// transact sends one request and collects its response payload, status
// byte stripped. A zero-length read means the line timed out.
func (p *Probe) transact(request string) ([]byte, error) {
	p.d.Reset()
	if _, err := io.WriteString(p.rw, request); err != nil {
		return nil, errors.Annotatef(err, "failed to send %q", request)
	}
	var chunk [64]byte
	for {
		n, err := p.rw.Read(chunk[:])
		if n > 0 {
			if frames := p.d.Feed(chunk[:n]); len(frames) > 0 {
				return parseResponse(frames[0])
			}
			continue
		}
		if err != nil && err != io.EOF {
			return nil, errors.Annotatef(err, "probe went away during %q", request)
		}
		return nil, errors.Errorf("timeout waiting for response to %q", request)
	}
}

func parseResponse(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, errors.New("empty response frame")
	}
	switch frame[0] {
	case 'K':
		return frame[1:], nil
	case 'E':
		return nil, errors.Errorf("probe reported error %s", frame[1:])
	default:
		return nil, errors.Errorf("malformed response %q", frame)
	}
}

// ReadReg reads one DP or AP register through the probe. addr is in
// APRegAddr form; the firmware takes care of posted reads and WAIT
// retries on its side of the wire.
func (p *Probe) ReadReg(addr uint16) (uint32, error) {
	payload, err := p.transact(fmt.Sprintf("%cr%04x%c", som, addr, eom))
	if err != nil {
		return 0, errors.Trace(err)
	}
	value, err := strconv.ParseUint(string(payload), 16, 32)
	if err != nil {
		return 0, errors.Annotatef(err, "bad hex in response %q", payload)
	}
	return uint32(value), nil
}

// WriteReg writes one DP or AP register through the probe.
func (p *Probe) WriteReg(addr uint16, value uint32) error {
	_, err := p.transact(fmt.Sprintf("%cw%04x%08x%c", som, addr, value, eom))
	return errors.Trace(err)
}

// Version asks the probe to identify itself.
func (p *Probe) Version() (string, error) {
	payload, err := p.transact(fmt.Sprintf("%cv%c", som, eom))
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(payload), nil
}
