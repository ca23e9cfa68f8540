package adiv5

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"blackmagic/internal/dptest"
)

func newMemDP(t *testing.T) (*dptest.DP, *MemAP) {
	t.Helper()
	d := dptest.New()
	d.Mem = map[uint64]uint32{}
	d.CSW = CSWProtDefault | CSWDeviceEn
	dp := NewDebugPort(d)
	m, err := NewMemAP(dp.AP(0))
	if err != nil {
		t.Fatalf("NewMemAP: %v", err)
	}
	return d, m
}

func TestNewMemAPDisabled(t *testing.T) {
	d := dptest.New()
	d.Mem = map[uint64]uint32{}
	d.CSW = CSWProtDefault // DeviceEn clear
	dp := NewDebugPort(d)

	if _, err := NewMemAP(dp.AP(0)); err == nil {
		t.Error("NewMemAP accepted a disabled AP")
	}
}

func TestMemAPWordAccess(t *testing.T) {
	d, m := newMemDP(t)
	d.Mem[0x20000000] = 0x11223344

	got, err := m.ReadWord(0x20000000)
	if err != nil {
		t.Fatalf("ReadWord: %v", err)
	}
	if got != 0x11223344 {
		t.Errorf("ReadWord = 0x%08x, want 0x11223344", got)
	}

	if err := m.WriteWord(0x20000004, 0xcafebabe); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}
	if d.Mem[0x20000004] != 0xcafebabe {
		t.Errorf("mem[0x20000004] = 0x%08x, want 0xcafebabe", d.Mem[0x20000004])
	}

	// A 32-bit bus never sees a TAR high write.
	for _, op := range d.Ops {
		if op.Write && op.Addr == APTARHigh {
			t.Error("TAR high written on a 32-bit DP")
		}
	}
}

func TestMemAPRejectsUnaligned(t *testing.T) {
	_, m := newMemDP(t)

	if _, err := m.ReadWord(0x20000001); err == nil {
		t.Error("ReadWord accepted an unaligned address")
	}
	if err := m.WriteWord(0x20000002, 0); err == nil {
		t.Error("WriteWord accepted an unaligned address")
	}
	if err := m.ReadBlock32(0x20000003, make([]uint32, 1)); err == nil {
		t.Error("ReadBlock32 accepted an unaligned address")
	}
}

func TestMemAPBlockRewritesTAR(t *testing.T) {
	d, m := newMemDP(t)
	// Words straddling the 1KiB auto-increment boundary. The emulated
	// TAR wraps inside the region, so reading the right data proves the
	// boundary rewrite happens.
	d.Mem[0x200003f8] = 1
	d.Mem[0x200003fc] = 2
	d.Mem[0x20000400] = 3
	d.Mem[0x20000404] = 4

	dst := make([]uint32, 4)
	if err := m.ReadBlock32(0x200003f8, dst); err != nil {
		t.Fatalf("ReadBlock32: %v", err)
	}
	if diff := cmp.Diff([]uint32{1, 2, 3, 4}, dst); diff != "" {
		t.Errorf("block data mismatch (-want +got):\n%s", diff)
	}

	var tars []uint32
	for _, op := range d.Ops {
		if op.Write && op.Addr == APTAR {
			tars = append(tars, op.Value)
		}
	}
	want := []uint32{0x200003f8, 0x20000400}
	if diff := cmp.Diff(want, tars); diff != "" {
		t.Errorf("TAR write sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestMemAPWriteBlock(t *testing.T) {
	d, m := newMemDP(t)

	src := []uint32{0x10, 0x20, 0x30, 0x40}
	if err := m.WriteBlock32(0x200003f8, src); err != nil {
		t.Fatalf("WriteBlock32: %v", err)
	}
	for i, want := range src {
		addr := uint64(0x200003f8) + uint64(i)*4
		if got := d.Mem[addr]; got != want {
			t.Errorf("mem[0x%x] = 0x%x, want 0x%x", addr, got, want)
		}
	}
}

func TestMemAPWideTAR(t *testing.T) {
	d, m := newMemDP(t)
	m.DP.AddressWidth = 40
	d.Mem[0x1200000100] = 0x5a5a5a5a

	got, err := m.ReadWord(0x1200000100)
	if err != nil {
		t.Fatalf("ReadWord: %v", err)
	}
	if got != 0x5a5a5a5a {
		t.Errorf("ReadWord = 0x%08x, want 0x5a5a5a5a", got)
	}

	found := false
	for _, op := range d.Ops {
		if op.Write && op.Addr == APTARHigh && op.Value == 0x12 {
			found = true
		}
	}
	if !found {
		t.Error("TAR high word 0x12 never written on a 40-bit DP")
	}
}

func TestMemAPBase(t *testing.T) {
	d, m := newMemDP(t)
	d.SetAPReg(0xf8, 0xe00ff003)

	base, ok, err := m.Base()
	if err != nil {
		t.Fatalf("Base: %v", err)
	}
	if !ok || base != 0xe00ff000 {
		t.Errorf("Base = 0x%x ok=%v, want 0xe00ff000 true", uint64(base), ok)
	}

	for _, raw := range []uint32{0xffffffff, 0xe00ff002} {
		d.SetAPReg(0xf8, raw)
		if _, ok, _ := m.Base(); ok {
			t.Errorf("BASE 0x%08x reported as valid", raw)
		}
	}
}
