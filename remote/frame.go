// Package remote talks to a debug probe running the remote wire protocol
// over a serial line. Requests are "!...#" packets; the probe answers with
// "&...#" frames. The probe firmware runs the SWD sequencing itself, so one
// register access is one round trip.
package remote

// Frame marker bytes.
const (
	som  = '!' // start of request
	resp = '&' // start of response
	eom  = '#' // end of either
)

// A response longer than this is line noise, not a frame.
const maxFrameLen = 1024

// Deframer reassembles response frames from a raw serial stream. Serial
// reads arrive in arbitrary chunks, and the line may carry boot chatter or
// local echo between frames, so the scanner hunts for the response marker
// and discards everything else.
type Deframer struct {
	synced bool
	buf    []byte
}

// Feed consumes one chunk and returns the responses it completed, marker
// and terminator stripped.
func (d *Deframer) Feed(chunk []byte) [][]byte {
	var frames [][]byte
	for _, b := range chunk {
		if !d.synced {
			if b == resp {
				d.synced = true
				d.buf = nil
			}
			continue
		}
		switch b {
		case eom:
			frames = append(frames, d.buf)
			d.synced = false
			d.buf = nil
		case resp:
			// A fresh marker mid-frame means the previous frame was
			// truncated; start over from here.
			d.buf = nil
		default:
			if len(d.buf) >= maxFrameLen {
				d.synced = false
				d.buf = nil
				continue
			}
			d.buf = append(d.buf, b)
		}
	}
	return frames
}

// Reset drops any partial frame.
func (d *Deframer) Reset() {
	d.synced = false
	d.buf = nil
}
