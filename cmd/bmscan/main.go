package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"blackmagic/internal/profile"
	"blackmagic/internal/scan"
)

func main() {
	profilePath := flag.String("profile", "", "Path to a probe profile file")
	remoteDev := flag.String("remote", "", "Serial device of a remote probe (overrides the profile)")
	baud := flag.Int("baud", 0, "Baud rate for -remote")
	swd := flag.Bool("swd", false, "Bitbang SWD on local GPIO (overrides the profile)")
	swclk := flag.Int("swclk", -1, "BCM pin driving SWCLK, with -swd")
	swdio := flag.Int("swdio", -1, "BCM pin driving SWDIO, with -swd")
	frequency := flag.Int("frequency", 0, "SWCLK rate in Hz with -swd, 0 for unthrottled")

	flag.Parse()
	defer glog.Flush()

	if *remoteDev != "" && *swd {
		fmt.Println("bmscan: Error: -remote and -swd are mutually exclusive")
		os.Exit(1)
	}

	p := profile.Default()
	if *profilePath != "" {
		loaded, err := profile.Load(*profilePath)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		p = loaded
	}
	if *remoteDev != "" {
		p.Transport = profile.TransportRemote
		p.Remote.Device = *remoteDev
	}
	if *baud > 0 {
		p.Remote.Baud = *baud
	}
	if *swd {
		p.Transport = profile.TransportSWD
	}
	if *swclk >= 0 {
		p.SWD.SWCLK = *swclk
	}
	if *swdio >= 0 {
		p.SWD.SWDIO = *swdio
	}
	if *frequency > 0 {
		p.SWD.Frequency = *frequency
	}
	if p.Transport == profile.TransportSWD && (p.SWD.SWCLK < 0 || p.SWD.SWDIO < 0) {
		fmt.Println("bmscan: Error: -swd needs -swclk and -swdio pins")
		os.Exit(1)
	}

	cfg := scan.Config{
		Profile: p,
		Output:  os.Stdout,
	}
	if err := scan.Run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
