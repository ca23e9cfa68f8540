package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/cesanta/errors"
	"github.com/golang/glog"

	"blackmagic/adiv5"
	"blackmagic/adiv6"
	"blackmagic/internal/profile"
	"blackmagic/internal/scan"
)

func main() {
	profilePath := flag.String("profile", "", "Path to a probe profile file")
	apsel := flag.Int("ap", 0, "APSEL of the MEM-AP to read through (ADIv5 targets)")
	apBase := flag.String("apbase", "", "Base address of the MEM-AP to read through (ADIv6 targets, hex)")
	addrStr := flag.String("addr", "", "Word-aligned start address (hex)")
	count := flag.Int("count", 1, "Number of 32-bit words to read")

	flag.Parse()
	defer glog.Flush()

	if *addrStr == "" {
		fmt.Println("bmmem: Error: Missing start address on -addr option")
		os.Exit(1)
	}
	addr, err := strconv.ParseUint(*addrStr, 0, 64)
	if err != nil {
		fmt.Printf("bmmem: Error: Bad -addr value %q\n", *addrStr)
		os.Exit(1)
	}
	if *count < 1 {
		fmt.Println("bmmem: Error: -count must be at least 1")
		os.Exit(1)
	}

	if err := run(*profilePath, *apsel, *apBase, addr, *count); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(profilePath string, apsel int, apBase string, addr uint64, count int) error {
	p := profile.Default()
	if profilePath != "" {
		loaded, err := profile.Load(profilePath)
		if err != nil {
			return errors.Trace(err)
		}
		p = loaded
	}
	link, closer, err := scan.OpenTransport(p)
	if err != nil {
		return errors.Trace(err)
	}
	defer closer.Close()

	dp := adiv5.NewDebugPort(link)
	if err := dp.Connect(); err != nil {
		return errors.Trace(err)
	}

	ap, err := pickAP(dp, apsel, apBase)
	if err != nil {
		return errors.Trace(err)
	}
	m, err := adiv5.NewMemAP(ap)
	if err != nil {
		return errors.Trace(err)
	}

	buf := make([]uint32, count)
	if err := m.ReadBlock32(adiv5.TargetAddr64(addr), buf); err != nil {
		return errors.Trace(err)
	}
	for i := 0; i < len(buf); i += 4 {
		fmt.Printf("0x%08x:", addr+uint64(i)*4)
		for j := i; j < i+4 && j < len(buf); j++ {
			fmt.Printf(" 0x%08x", buf[j])
		}
		fmt.Println()
	}
	return nil
}

// pickAP resolves the AP to read through. ADIv5 DPs enumerate by APSEL;
// ADIv6 DPs address APs by base, so one must be named explicitly. The v6
// init is still run for its side effects: the accessor and the bus width.
func pickAP(dp *adiv5.DebugPort, apsel int, apBase string) (*adiv5.AccessPort, error) {
	if dp.IDR.Version() >= 3 {
		if apBase == "" {
			return nil, errors.New("ADIv6 target: name the MEM-AP with -apbase")
		}
		base, err := strconv.ParseUint(apBase, 0, 64)
		if err != nil {
			return nil, errors.Annotatef(err, "bad -apbase value %q", apBase)
		}
		if err := adiv6.DPInit(dp); err != nil {
			// Discovery stopping early is fine here; reads only need
			// the accessor and bus width, which init always sets up.
			glog.V(4).Infof("continuing past init: %v", err)
		}
		return dp.AP(adiv5.TargetAddr64(base)), nil
	}

	aps, err := dp.EnumerateAPs()
	if err != nil {
		return nil, errors.Trace(err)
	}
	want := adiv5.TargetAddr64(apsel) << 24
	for _, ap := range aps {
		if ap.Address == want {
			return ap, nil
		}
	}
	return nil, errors.Errorf("no AP at APSEL %d", apsel)
}
