package profile

import (
	"io"
	"os"
	"strconv"

	"github.com/cesanta/errors"
)

// Section and key names of a probe profile.
const (
	probeSection = "probe"
	transportKey = "transport"

	remoteSection = "remote"
	deviceKey     = "device"
	baudKey       = "baud"

	swdSection   = "swd"
	swclkKey     = "swclk"
	swdioKey     = "swdio"
	frequencyKey = "frequency"
)

// Transport selects how the host reaches the target's debug port.
type Transport string

const (
	// TransportRemote talks the remote wire protocol to probe firmware
	// over a serial device.
	TransportRemote Transport = "remote"
	// TransportSWD bitbangs SWD directly on local GPIO pins.
	TransportSWD Transport = "swd"
)

// Remote configures the serial link to a wire-protocol probe.
type Remote struct {
	Device string
	Baud   int
}

// SWD configures direct GPIO bitbanging. Pins are BCM numbers; -1 means
// not configured.
type SWD struct {
	SWCLK     int
	SWDIO     int
	Frequency int
}

// Profile is a parsed probe profile.
type Profile struct {
	Transport Transport
	Remote    Remote
	SWD       SWD
}

const DefaultBaud = 115200

// The 40-pin header exposes BCM GPIO 0 through 27.
const maxBCMPin = 27

// Default is the profile used when no file is given: a remote probe on
// its usual CDC-ACM device.
func Default() *Profile {
	return &Profile{
		Transport: TransportRemote,
		Remote:    Remote{Device: "/dev/ttyACM0", Baud: DefaultBaud},
		SWD:       SWD{SWCLK: -1, SWDIO: -1},
	}
}

// Load reads and validates a profile file.
func Load(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open profile")
	}
	defer f.Close()
	p, err := Parse(f)
	if err != nil {
		return nil, errors.Annotatef(err, "profile %s", path)
	}
	return p, nil
}

// Parse reads and validates a profile. Missing keys keep their defaults;
// the configured transport must end up fully specified.
func Parse(r io.Reader) (*Profile, error) {
	ini, err := ParseIni(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	p := Default()

	if sec, ok := ini.Sections[probeSection]; ok {
		if tr, ok := sec[transportKey]; ok {
			switch Transport(tr) {
			case TransportRemote, TransportSWD:
				p.Transport = Transport(tr)
			default:
				return nil, errors.Errorf("unknown transport %q", tr)
			}
		}
	}

	if sec, ok := ini.Sections[remoteSection]; ok {
		if dev, ok := sec[deviceKey]; ok {
			p.Remote.Device = dev
		}
		if p.Remote.Baud, err = intKey(sec, baudKey, p.Remote.Baud); err != nil {
			return nil, errors.Trace(err)
		}
	}

	if sec, ok := ini.Sections[swdSection]; ok {
		if p.SWD.SWCLK, err = pinKey(sec, swclkKey); err != nil {
			return nil, errors.Trace(err)
		}
		if p.SWD.SWDIO, err = pinKey(sec, swdioKey); err != nil {
			return nil, errors.Trace(err)
		}
		if p.SWD.Frequency, err = intKey(sec, frequencyKey, 0); err != nil {
			return nil, errors.Trace(err)
		}
	}

	switch p.Transport {
	case TransportRemote:
		if p.Remote.Baud <= 0 {
			return nil, errors.Errorf("baud must be positive, got %d", p.Remote.Baud)
		}
	case TransportSWD:
		if p.SWD.SWCLK < 0 || p.SWD.SWDIO < 0 {
			return nil, errors.Errorf("swd transport needs both %s and %s pins", swclkKey, swdioKey)
		}
		if p.SWD.SWCLK == p.SWD.SWDIO {
			return nil, errors.Errorf("%s and %s cannot share pin %d", swclkKey, swdioKey, p.SWD.SWCLK)
		}
	}
	return p, nil
}

func intKey(sec map[string]string, key string, dflt int) (int, error) {
	s, ok := sec[key]
	if !ok {
		return dflt, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Annotatef(err, "bad %s %q", key, s)
	}
	return v, nil
}

func pinKey(sec map[string]string, key string) (int, error) {
	pin, err := intKey(sec, key, -1)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if pin > maxBCMPin {
		return 0, errors.Errorf("%s pin %d outside the BCM GPIO range", key, pin)
	}
	return pin, nil
}
