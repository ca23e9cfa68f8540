package adiv6

import (
	"testing"

	"github.com/cesanta/errors"
	"github.com/google/go-cmp/cmp"

	"blackmagic/adiv5"
	"blackmagic/internal/dptest"
)

// newV6DP scripts a DPv3 with the given bus width and base pointer halves.
// DPIDR1 answers on bank 1, BASEPTR0 on bank 2 and BASEPTR1 on bank 3.
func newV6DP(width uint8, lo, hi uint32) *dptest.DP {
	d := dptest.New()
	d.SetDPReg(0, 0x0, dptest.DPIDRv3)
	d.SetDPReg(1, 0x0, uint32(width))
	d.SetDPReg(2, 0x0, lo)
	d.SetDPReg(3, 0x0, hi)
	return d
}

func TestReadBaseAddress(t *testing.T) {
	d := newV6DP(48, 0xdeadbeef, 0x00000001)
	dp := adiv5.NewDebugPort(d)

	base, err := readBaseAddress(dp)
	if err != nil {
		t.Fatalf("readBaseAddress: %v", err)
	}
	if base != 0x1deadbeef {
		t.Errorf("combined base = 0x%x, want 0x1deadbeef", uint64(base))
	}

	// The low half comes from bank 2 and the high half from bank 3, in
	// that order.
	if diff := cmp.Diff([]uint32{2, 3}, d.SelectWrites()); diff != "" {
		t.Errorf("SELECT sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestDPInitReadsBusWidth(t *testing.T) {
	d := dptest.New()
	// DPIDR1 with ERRMODE set and ASIZE = 40; only the low 7 bits are
	// address width.
	d.SetDPReg(1, 0x0, 0x00000428)
	d.SetDPReg(2, 0x0, 0)
	d.SetDPReg(3, 0x0, 0)
	dp := adiv5.NewDebugPort(d)

	err := DPInit(dp)
	if errors.Cause(err) != ErrNoValidBase {
		t.Errorf("DPInit error = %v, want cause %v", err, ErrNoValidBase)
	}
	if dp.AddressWidth != 40 {
		t.Errorf("AddressWidth = %d, want 40", dp.AddressWidth)
	}
}

func TestDPInitBaseWidthCheck(t *testing.T) {
	tests := []struct {
		name   string
		width  uint8
		lo, hi uint32
		want   error
	}{
		// Bases that fit the bus width reach the probe, which fails on
		// the unscripted (all zero) ID block.
		{"40-bit fit", 40, 0x00001001, 0x00000000, ErrNotComponent},
		{"40-bit overflow", 40, 0x00001001, 0x00000100, ErrBaseAddressRange},
		{"32-bit fit", 32, 0x00200001, 0x00000000, ErrNotComponent},
		{"32-bit with high word", 32, 0x00001001, 0x00000001, ErrBaseAddressRange},
		{"64-bit never overflows", 64, 0xfffff001, 0xffffffff, ErrNotComponent},
		// ASIZE values outside 1..64 are malformed and rejected before
		// the base pointer is even read.
		{"zero width", 0, 0x00001001, 0x00000000, ErrBaseAddressRange},
		{"width past 64", 100, 0x00001001, 0x00000000, ErrBaseAddressRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newV6DP(tt.width, tt.lo, tt.hi)
			dp := adiv5.NewDebugPort(d)
			if err := DPInit(dp); errors.Cause(err) != tt.want {
				t.Errorf("DPInit error = %v, want cause %v", err, tt.want)
			}
		})
	}
}

func TestDPInitNoValidBase(t *testing.T) {
	// Valid bit (bit 0) clear: a normal "nothing here" outcome, and the
	// component probe must never run.
	d := newV6DP(40, 0x00001000, 0)
	dp := adiv5.NewDebugPort(d)

	err := DPInit(dp)
	if errors.Cause(err) != ErrNoValidBase {
		t.Errorf("DPInit error = %v, want cause %v", err, ErrNoValidBase)
	}
	if n := d.APReads(); n != 0 {
		t.Errorf("probe issued %d AP reads without a valid base, want none", n)
	}
}

func TestComponentIDLaneAssembly(t *testing.T) {
	d := dptest.New()
	// Each lane register carries its ID byte in the low lane; the upper
	// bits are bus noise that must not survive assembly.
	d.SetAPReg(0x1000+0xff0, 0xaa34)
	d.SetAPReg(0x1000+0xff4, 0xbb56)
	d.SetAPReg(0x1000+0xff8, 0xcc78)
	d.SetAPReg(0x1000+0xffc, 0xdd9a)
	dp := adiv5.NewDebugPort(d)

	cid, err := readComponentID(dp.AP(0x1000), adiv5.CIDR0Offset)
	if err != nil {
		t.Fatalf("readComponentID: %v", err)
	}
	if uint32(cid) != 0x9a785634 {
		t.Errorf("assembled CID = 0x%08x, want 0x9a785634", uint32(cid))
	}
}

func TestReadComponentIDSelectSequence(t *testing.T) {
	d := dptest.New()
	dp := adiv5.NewDebugPort(d)

	if _, err := readComponentID(dp.AP(0x200003000), adiv5.CIDR0Offset); err != nil {
		t.Fatalf("readComponentID: %v", err)
	}

	// Bank 5 first to reach SELECT1, then SELECT takes the low address
	// word with the window over the ID block at 0xff0.
	if diff := cmp.Diff([]uint32{5, 0x00003ff0}, d.SelectWrites()); diff != "" {
		t.Errorf("SELECT sequence mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint32{2}, d.Select1Hist); diff != "" {
		t.Errorf("SELECT1 sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestAPAccessorSelectEncoding(t *testing.T) {
	d := dptest.New()
	d.SetAPReg(0x280001dfc, 0x54770002)
	dp := adiv5.NewDebugPort(d)
	dp.SetAccessor(Access{})
	ap := dp.AP(0x280001000)

	idr, err := ap.ReadReg(adiv5.APIDR)
	if err != nil {
		t.Fatalf("ReadReg(IDR): %v", err)
	}
	if idr != 0x54770002 {
		t.Errorf("IDR = 0x%08x, want 0x54770002", idr)
	}

	// IDR's offset 0xdfc encodes as 0xd1fc; its bank nibbles fold into
	// SELECT bits [11:4] alongside the AP address's low word.
	if diff := cmp.Diff([]uint32{5, 0x80001df0}, d.SelectWrites()); diff != "" {
		t.Errorf("SELECT sequence mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint32{2}, d.Select1Hist); diff != "" {
		t.Errorf("SELECT1 sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestAPAccessorReselectsEveryCall(t *testing.T) {
	d := dptest.New()
	dp := adiv5.NewDebugPort(d)
	dp.SetAccessor(Access{})
	ap := dp.AP(0x280001000)

	for i := 0; i < 2; i++ {
		if _, err := ap.ReadReg(adiv5.APCSW); err != nil {
			t.Fatalf("ReadReg(CSW) #%d: %v", i, err)
		}
	}

	// No select caching: both calls issue the identical full sequence.
	wantSel := []uint32{5, 0x80001d00, 5, 0x80001d00}
	if diff := cmp.Diff(wantSel, d.SelectWrites()); diff != "" {
		t.Errorf("SELECT sequence mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint32{2, 2}, d.Select1Hist); diff != "" {
		t.Errorf("SELECT1 sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestComponentProbeRejectsBadPreamble(t *testing.T) {
	d := newV6DP(48, 0x00001001, 0)
	d.SetComponent(0x1000, 0x12345678)
	dp := adiv5.NewDebugPort(d)

	if err := DPInit(dp); errors.Cause(err) != ErrNotComponent {
		t.Errorf("DPInit error = %v, want cause %v", err, ErrNotComponent)
	}
}

func TestComponentProbeAcceptsPreamble(t *testing.T) {
	// The preamble check masks out the class nibble, so any class passes
	// it. The class dispatch itself is not implemented, and that failure
	// must be distinguishable from a preamble mismatch.
	for _, cid := range []uint32{0xb105100d, 0xb105900d} {
		d := newV6DP(48, 0x00001001, 0)
		d.SetComponent(0x1000, cid)
		dp := adiv5.NewDebugPort(d)

		if err := DPInit(dp); errors.Cause(err) != ErrUnsupportedClass {
			t.Errorf("DPInit with CID 0x%08x: error = %v, want cause %v", cid, err, ErrUnsupportedClass)
		}
	}
}

func TestDPInitEndToEnd(t *testing.T) {
	// 40-bit bus, base pointer 0x1001: valid bit set, masked base 0x1000.
	// The ID block is unscripted so the probe reads four zero lanes and
	// reports no component.
	d := newV6DP(40, 0x00001001, 0)
	dp := adiv5.NewDebugPort(d)

	err := DPInit(dp)
	if errors.Cause(err) != ErrNotComponent {
		t.Errorf("DPInit error = %v, want cause %v", err, ErrNotComponent)
	}
	if n := d.APReads(); n != 4 {
		t.Errorf("probe read %d AP registers, want the 4 ID lanes", n)
	}
}

func TestAccessorBoundDespiteInitFailure(t *testing.T) {
	d := newV6DP(40, 0x00000000, 0)
	dp := adiv5.NewDebugPort(d)
	if err := DPInit(dp); err == nil {
		t.Fatal("DPInit succeeded with no valid base")
	}

	// Later AP traffic must still be v6-addressed.
	d.Ops = nil
	if _, err := dp.AP(0x4000).ReadReg(adiv5.APCSW); err != nil {
		t.Fatalf("ReadReg(CSW): %v", err)
	}
	sel := d.SelectWrites()
	if len(sel) == 0 || sel[0] != 5 {
		t.Errorf("AP access did not start with the SELECT1 bank, SELECT writes: %#x", sel)
	}
}

func TestTransportFaultPropagates(t *testing.T) {
	wireErr := errors.New("simulated wire fault")
	d := newV6DP(48, 0x00001001, 0)
	d.ReadFault = func(addr uint16, bank uint32) error {
		// Fail the BASEPTR0 read only.
		if addr == 0x0 && bank == 2 {
			return wireErr
		}
		return nil
	}
	dp := adiv5.NewDebugPort(d)

	if err := DPInit(dp); errors.Cause(err) != wireErr {
		t.Errorf("DPInit error = %v, want cause %v", err, wireErr)
	}
}
