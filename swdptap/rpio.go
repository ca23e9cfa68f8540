package swdptap

import (
	"time"

	"github.com/cesanta/errors"
	"github.com/stianeikeland/go-rpio"
)

// RPIODriver bitbangs SWCLK and SWDIO through memory-mapped Raspberry Pi
// GPIO. Pin numbers are BCM numbers, as go-rpio counts them.
type RPIODriver struct {
	clk, dio rpio.Pin

	// halfPeriod of zero clocks as fast as the GPIO block allows.
	halfPeriod time.Duration
}

// OpenRPIO maps the GPIO block and claims the two pins, leaving the host
// driving an idle line. frequency is the SWCLK rate in Hz; zero means
// unthrottled.
func OpenRPIO(swclk, swdio uint8, frequency int) (*RPIODriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, errors.Annotatef(err, "failed to map GPIO")
	}
	d := &RPIODriver{clk: rpio.Pin(swclk), dio: rpio.Pin(swdio)}
	if frequency > 0 {
		d.halfPeriod = time.Second / time.Duration(2*frequency)
	}
	d.clk.Output()
	d.clk.Low()
	d.dio.Output()
	d.dio.High()
	return d, nil
}

func (d *RPIODriver) clock() {
	if d.halfPeriod > 0 {
		time.Sleep(d.halfPeriod)
	}
	d.clk.High()
	if d.halfPeriod > 0 {
		time.Sleep(d.halfPeriod)
	}
	d.clk.Low()
}

func (d *RPIODriver) WriteBit(bit bool) {
	if bit {
		d.dio.High()
	} else {
		d.dio.Low()
	}
	d.clock()
}

func (d *RPIODriver) ReadBit() bool {
	bit := d.dio.Read() == rpio.High
	d.clock()
	return bit
}

// Turn changes SWDIO direction. The release happens before the turnaround
// clock and the reclaim after it, so the two sides never drive against
// each other.
func (d *RPIODriver) Turn(output bool) {
	if output {
		d.clock()
		d.dio.Output()
	} else {
		d.dio.Input()
		d.clock()
	}
}

func (d *RPIODriver) Close() error {
	d.dio.Input()
	return rpio.Close()
}
