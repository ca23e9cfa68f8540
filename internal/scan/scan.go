// Package scan drives one full discovery pass over a debug port: open the
// transport, connect the DP, then walk whatever the DP's ADI version makes
// discoverable.
package scan

import (
	"fmt"
	"io"
	"os"

	"github.com/cesanta/errors"
	"github.com/golang/glog"

	"blackmagic/adiv5"
	"blackmagic/adiv6"
	"blackmagic/internal/profile"
	"blackmagic/remote"
	"blackmagic/swdptap"
)

// Config selects the transport and where the report goes.
type Config struct {
	// Profile is consulted when IO is nil. A nil Profile means the
	// built-in default.
	Profile *profile.Profile
	// IO overrides the transport with an already-open register link.
	IO adiv5.RegIO
	// Output receives the report; nil means stdout.
	Output io.Writer
}

// Run performs the scan. A target with nothing to discover is a normal
// outcome, not an error; only usage and transport problems report back.
func Run(cfg Config) error {
	w := cfg.Output
	if w == nil {
		w = os.Stdout
	}
	link := cfg.IO
	if link == nil {
		p := cfg.Profile
		if p == nil {
			p = profile.Default()
		}
		opened, closer, err := OpenTransport(p)
		if err != nil {
			return errors.Trace(err)
		}
		defer closer.Close()
		link = opened
	}

	dp := adiv5.NewDebugPort(link)
	if err := dp.Connect(); err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintf(w, "DP DPIDR 0x%08x: designer %s, DPv%d, rev %d\n",
		uint32(dp.IDR), dp.IDR.Designer(), dp.IDR.Version(), dp.IDR.Revision())

	if dp.IDR.Version() >= 3 {
		return errors.Trace(scanV6(w, dp))
	}
	return errors.Trace(scanV5(w, dp))
}

// OpenTransport opens the register link a profile describes. The SWD path
// also runs the mode switch, so the returned link is ready for a connect.
func OpenTransport(p *profile.Profile) (adiv5.RegIO, io.Closer, error) {
	switch p.Transport {
	case profile.TransportRemote:
		probe, err := remote.Open(p.Remote.Device, p.Remote.Baud)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		return probe, probe, nil
	case profile.TransportSWD:
		drv, err := swdptap.OpenRPIO(uint8(p.SWD.SWCLK), uint8(p.SWD.SWDIO), p.SWD.Frequency)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		s := swdptap.New(drv)
		s.JTAGToSWD()
		return s, s, nil
	}
	return nil, nil, errors.Errorf("unknown transport %q", p.Transport)
}

// scanV6 leans on the DP's own base pointer. Everything the prober learns
// before stopping is in the error chain, so the chain is the report.
func scanV6(w io.Writer, dp *adiv5.DebugPort) error {
	err := adiv6.DPInit(dp)
	switch errors.Cause(err) {
	case nil:
		fmt.Fprintf(w, "%d-bit resource bus, scan complete\n", dp.AddressWidth)
	case adiv6.ErrNoValidBase:
		fmt.Fprintln(w, "no ADIv6 components: DP reports no valid base address")
	case adiv6.ErrBaseAddressRange, adiv6.ErrNotComponent, adiv6.ErrUnsupportedClass:
		fmt.Fprintf(w, "%v\n", err)
	default:
		return errors.Trace(err)
	}
	return nil
}

// scanV5 enumerates APSEL slots and peeks through each MEM-AP at the
// component its debug base points to.
func scanV5(w io.Writer, dp *adiv5.DebugPort) error {
	aps, err := dp.EnumerateAPs()
	if err != nil {
		return errors.Trace(err)
	}
	if len(aps) == 0 {
		fmt.Fprintln(w, "no access ports found")
		return nil
	}
	for _, ap := range aps {
		fmt.Fprintf(w, "AP %d: %s\n", uint64(ap.Address)>>24, ap.IDR)
		if ap.IDR.Class() != adiv5.APClassMemAP {
			continue
		}
		m, err := adiv5.NewMemAP(ap)
		if err != nil {
			glog.Warningf("skipping %s: %v", ap, err)
			continue
		}
		base, ok, err := m.Base()
		if err != nil {
			return errors.Trace(err)
		}
		if !ok {
			fmt.Fprintln(w, "  no debug base")
			continue
		}
		if err := describeComponent(w, m, base); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func describeComponent(w io.Writer, m *adiv5.MemAP, base adiv5.TargetAddr64) error {
	cid, err := m.ComponentID(base)
	if err != nil {
		return errors.Trace(err)
	}
	if !cid.Valid() {
		fmt.Fprintf(w, "  base 0x%x: %s\n", uint64(base), cid)
		return nil
	}
	pid, err := m.PeripheralID(base)
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintf(w, "  base 0x%x: %s, %s\n", uint64(base), cid, pid)
	return nil
}
