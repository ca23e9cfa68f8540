// Package swdptap drives the ARM Serial Wire Debug wire protocol over
// bitbanged GPIO.
//
// The pin layer sits behind the Driver interface so the protocol engine can
// be exercised against a simulated target; RPIODriver is the production
// implementation on memory-mapped Raspberry Pi GPIO. An SWD value exposes
// the uint16-addressed register file that adiv5.DebugPort expects, with the
// APnDP flag in bit 8 of the address.
package swdptap

import (
	"math/bits"

	"github.com/cesanta/errors"
	"github.com/golang/glog"

	"blackmagic/adiv5"
)

// Driver is the pin-level interface of an SWD link. The clock is implicit:
// every method clocks exactly one SWCLK cycle.
type Driver interface {
	// WriteBit drives SWDIO to the given level for one clock.
	WriteBit(bit bool)
	// ReadBit samples SWDIO for one clock.
	ReadBit() bool
	// Turn reverses SWDIO ownership, clocking the one-cycle turnaround
	// period during which neither side drives the line.
	Turn(output bool)
	// Close releases the underlying pins.
	Close() error
}

// Three-bit target responses to a request, LSB first on the wire.
const (
	ackOK    uint32 = 1
	ackWait  uint32 = 2
	ackFault uint32 = 4
)

// A target answering WAIT is still completing the previous transfer; the
// request is repeated a bounded number of times before giving up.
const waitRetries = 8

// idleCycles is how long SWDIO is held low after a transfer so the DP state
// machine returns to idle before the clock stops.
const idleCycles = 8

var errFault = errors.New("target responded FAULT")

// SWD runs the wire protocol on a Driver. Between transactions the host
// owns the line, which is how a Driver starts out.
type SWD struct {
	drv Driver
}

func New(drv Driver) *SWD {
	return &SWD{drv: drv}
}

func (s *SWD) Close() error {
	return s.drv.Close()
}

// request packs the eight-bit transfer header: start, APnDP, RnW, A[3:2],
// parity, stop, park. addr is in APRegAddr form; only the APnDP flag and
// the two address bits reach the wire.
func request(addr uint16, rnw bool) uint32 {
	req := uint32(0x81) // start and park
	if addr&adiv5.APnDP != 0 {
		req |= 0x02
	}
	if rnw {
		req |= 0x04
	}
	req |= uint32(addr&0xc) << 1
	req |= parity(req>>1&0xf) << 5
	return req
}

func parity(v uint32) uint32 {
	return uint32(bits.OnesCount32(v) & 1)
}

func (s *SWD) seqOut(value uint32, n int) {
	for i := 0; i < n; i++ {
		s.drv.WriteBit(value>>uint(i)&1 == 1)
	}
}

func (s *SWD) seqIn(n int) uint32 {
	var value uint32
	for i := 0; i < n; i++ {
		if s.drv.ReadBit() {
			value |= 1 << uint(i)
		}
	}
	return value
}

func (s *SWD) idle() {
	s.seqOut(0, idleCycles)
}

// rawAccess runs one transfer: request, turnaround, ACK, data phase. WAIT
// responses retry the whole request; FAULT clears the sticky flags through
// ABORT before reporting, so the next transfer starts clean.
func (s *SWD) rawAccess(rnw bool, addr uint16, value uint32) (uint32, error) {
	req := request(addr, rnw)
	for try := 0; try < waitRetries; try++ {
		s.seqOut(req, 8)
		s.drv.Turn(false)
		switch ack := s.seqIn(3); ack {
		case ackOK:
			if rnw {
				data := s.seqIn(32)
				p := s.seqIn(1)
				s.drv.Turn(true)
				s.idle()
				if p != parity(data) {
					return 0, errors.Errorf("parity error reading 0x%03x: got 0x%08x", addr, data)
				}
				return data, nil
			}
			s.drv.Turn(true)
			s.seqOut(value, 32)
			s.seqOut(parity(value), 1)
			s.idle()
			return 0, nil
		case ackWait:
			s.drv.Turn(true)
			s.idle()
		case ackFault:
			s.drv.Turn(true)
			s.idle()
			s.clearFault()
			return 0, errors.Annotatef(errFault, "access to 0x%03x", addr)
		default:
			// Nothing coherent on the line; a line reset is the only
			// way back to a known protocol state.
			s.drv.Turn(true)
			s.LineReset()
			return 0, errors.Errorf("protocol error on access to 0x%03x: ACK %03b", addr, ack)
		}
	}
	return 0, errors.Errorf("timeout waiting on 0x%03x: target kept responding WAIT", addr)
}

// clearFault writes the sticky error clears to ABORT. Best effort: the
// ABORT write itself never FAULTs, and anything else wrong here will
// resurface on the caller's next transfer.
func (s *SWD) clearFault() {
	s.seqOut(request(adiv5.DPAbort, false), 8)
	s.drv.Turn(false)
	ack := s.seqIn(3)
	s.drv.Turn(true)
	if ack == ackOK {
		s.seqOut(adiv5.AbortStickyClears, 32)
		s.seqOut(parity(adiv5.AbortStickyClears), 1)
	}
	s.idle()
}

// ReadReg reads a DP or AP register. AP reads are posted: the AP returns
// the previous transfer's result, so the value is collected with a chased
// RDBUFF read.
func (s *SWD) ReadReg(addr uint16) (uint32, error) {
	if addr&adiv5.APnDP != 0 {
		if _, err := s.rawAccess(true, addr, 0); err != nil {
			return 0, errors.Trace(err)
		}
		addr = adiv5.DPRdBuff
	}
	value, err := s.rawAccess(true, addr, 0)
	return value, errors.Trace(err)
}

func (s *SWD) WriteReg(addr uint16, value uint32) error {
	_, err := s.rawAccess(false, addr, value)
	return errors.Trace(err)
}

// LineReset drives SWDIO high past the architected 50-clock minimum and
// then idles the line. The DP requires a DPIDR read before anything else
// afterwards, which the connect sequence provides.
func (s *SWD) LineReset() {
	for i := 0; i < 56; i++ {
		s.drv.WriteBit(true)
	}
	s.idle()
}

// jtagToSWDMagic is the 16-bit selection sequence that moves a SWJ-DP from
// its reset-default JTAG mode to SWD, sent LSB first between line resets.
const jtagToSWDMagic = 0xe79e

// JTAGToSWD switches a SWJ-DP to SWD operation and leaves the line reset.
// Harmless when the DP is already in SWD mode.
func (s *SWD) JTAGToSWD() {
	glog.V(4).Info("switching SWJ-DP to SWD")
	for i := 0; i < 56; i++ {
		s.drv.WriteBit(true)
	}
	s.seqOut(jtagToSWDMagic, 16)
	s.LineReset()
}
