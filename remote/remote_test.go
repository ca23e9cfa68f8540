package remote

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDeframerHuntsForSync(t *testing.T) {
	var d Deframer

	// Boot chatter and a split frame: nothing completes yet.
	if got := d.Feed([]byte("uart noise &K12")); got != nil {
		t.Fatalf("partial frame produced %q", got)
	}
	// The first frame completes, more garbage, a second frame starts.
	got := d.Feed([]byte("345678#junk&E0"))
	want := [][]byte{[]byte("K12345678")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	got = d.Feed([]byte("2#"))
	want = [][]byte{[]byte("E02")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestDeframerRestartsOnMarker(t *testing.T) {
	var d Deframer

	// A truncated frame followed by a complete one; only the complete
	// frame survives.
	got := d.Feed([]byte("&K12&K9a785634#"))
	want := [][]byte{[]byte("K9a785634")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestDeframerDropsRunaheadFrame(t *testing.T) {
	var d Deframer

	d.Feed([]byte{resp})
	d.Feed([]byte(strings.Repeat("x", maxFrameLen+10)))
	// The oversized pseudo-frame was dropped; a real frame still parses.
	got := d.Feed([]byte("#&K00#"))
	want := [][]byte{[]byte("K00")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

// fakeLine scripts the probe's side of the serial conversation. Each reply
// chunk is served by one Read call; an exhausted script reads as a timeout.
type fakeLine struct {
	requests []string
	replies  [][]byte
}

func (f *fakeLine) Write(p []byte) (int, error) {
	f.requests = append(f.requests, string(p))
	return len(p), nil
}

func (f *fakeLine) Read(p []byte) (int, error) {
	if len(f.replies) == 0 {
		return 0, nil
	}
	n := copy(p, f.replies[0])
	if n == len(f.replies[0]) {
		f.replies = f.replies[1:]
	} else {
		f.replies[0] = f.replies[0][n:]
	}
	return n, nil
}

func TestProbeReadReg(t *testing.T) {
	line := &fakeLine{replies: [][]byte{[]byte("&K2ba01477#")}}
	p := NewProbe(line)

	got, err := p.ReadReg(0x0)
	if err != nil {
		t.Fatalf("ReadReg: %v", err)
	}
	if got != 0x2ba01477 {
		t.Errorf("value = 0x%08x, want 0x2ba01477", got)
	}
	if diff := cmp.Diff([]string{"!r0000#"}, line.requests); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestProbeReadRegSplitReply(t *testing.T) {
	line := &fakeLine{replies: [][]byte{[]byte("echo!r / &K2477"), []byte("0011#")}}
	p := NewProbe(line)

	got, err := p.ReadReg(0xd1fc)
	if err != nil {
		t.Fatalf("ReadReg: %v", err)
	}
	if got != 0x24770011 {
		t.Errorf("value = 0x%08x, want 0x24770011", got)
	}
	if diff := cmp.Diff([]string{"!rd1fc#"}, line.requests); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestProbeWriteReg(t *testing.T) {
	line := &fakeLine{replies: [][]byte{[]byte("&K#")}}
	p := NewProbe(line)

	if err := p.WriteReg(0x8, 0xdeadbeef); err != nil {
		t.Fatalf("WriteReg: %v", err)
	}
	if diff := cmp.Diff([]string{"!w0008deadbeef#"}, line.requests); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestProbeErrorReply(t *testing.T) {
	line := &fakeLine{replies: [][]byte{[]byte("&E10#")}}
	p := NewProbe(line)

	_, err := p.ReadReg(0x0)
	if err == nil || !strings.Contains(err.Error(), "10") {
		t.Errorf("error reply returned %v, want probe error 10", err)
	}
}

func TestProbeTimeout(t *testing.T) {
	p := NewProbe(&fakeLine{})

	_, err := p.ReadReg(0x0)
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("silent line returned %v, want timeout", err)
	}
}

func TestProbeVersion(t *testing.T) {
	line := &fakeLine{replies: [][]byte{[]byte("&KBlack Magic Probe v1.10.0#")}}
	p := NewProbe(line)

	v, err := p.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != "Black Magic Probe v1.10.0" {
		t.Errorf("version = %q", v)
	}
	if diff := cmp.Diff([]string{"!v#"}, line.requests); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}
