package main

// wifi-tcp runs TCP over 802.11n between a station and its access point and
// reports the throughput of every 100ms window, then the average.  It exits with
// status 1 when the average is below 50 Mbit/s

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/iti/cmdline"
	"github.com/sneaker-rohit/wifisim"
)

// cmdlineParameters configures for recognition of command line variables
func cmdlineParameters() *cmdline.CmdParser {
	cp := cmdline.NewCmdParser()
	cp.AddFlag(cmdline.StringFlag, "payloadSize", false)    // payload size in bytes
	cp.AddFlag(cmdline.StringFlag, "dataRate", false)       // application data rate
	cp.AddFlag(cmdline.StringFlag, "tcpVariant", false)     // TcpTahoe, TcpReno, TcpNewReno, TcpWestwood, TcpWestwoodPlus
	cp.AddFlag(cmdline.StringFlag, "phyRate", false)        // physical layer bitrate
	cp.AddFlag(cmdline.StringFlag, "simulationTime", false) // simulation time in seconds
	cp.AddFlag(cmdline.StringFlag, "pcap", false)           // enable/disable pcap tracing
	cp.AddFlag(cmdline.StringFlag, "config", false)         // scenario file, yaml or json
	cp.AddFlag(cmdline.StringFlag, "trace", false)          // device trace output file
	cp.AddFlag(cmdline.StringFlag, "topo", false)           // topology description output file
	cp.AddFlag(cmdline.StringFlag, "v", false)              // log level
	return cp
}

// flagValue returns the text given for the named flag, empty when it was not given
type flagValue func(name string) string

// applyFlags overrides the options with the flags given on the command line
func applyFlags(getVar flagValue, cfg *wifisim.WifiTcpConfig) error {
	errs := []error{}
	if v := getVar("payloadSize"); len(v) > 0 {
		n, err := strconv.Atoi(v)
		errs = append(errs, err)
		cfg.PayloadSize = n
	}
	if v := getVar("dataRate"); len(v) > 0 {
		cfg.DataRate = v
	}
	if v := getVar("tcpVariant"); len(v) > 0 {
		cfg.TcpVariant = v
	}
	if v := getVar("phyRate"); len(v) > 0 {
		cfg.PhyRate = v
	}
	if v := getVar("simulationTime"); len(v) > 0 {
		t, err := strconv.ParseFloat(v, 64)
		errs = append(errs, err)
		cfg.SimulationTime = t
	}
	if v := getVar("pcap"); len(v) > 0 {
		b, err := strconv.ParseBool(v)
		errs = append(errs, err)
		cfg.Pcap = b
	}
	return wifisim.ReportErrs(errs)
}

// configure builds the options of the run: defaults, then the scenario file, then the flags
func configure(getVar flagValue) (wifisim.WifiTcpConfig, wifisim.RunOptions, error) {
	cfg := wifisim.DefaultWifiTcpConfig()
	opts := wifisim.RunOptions{}

	if lvl := getVar("v"); len(lvl) > 0 {
		if err := wifisim.SetLogLevel(lvl); err != nil {
			return cfg, opts, err
		}
	}
	if cfgFile := getVar("config"); len(cfgFile) > 0 {
		if valid, err := wifisim.CheckReadableFiles([]string{cfgFile}); !valid {
			return cfg, opts, err
		}
		sc, err := wifisim.ReadScenarioCfg(cfgFile, wifisim.UseYAML(cfgFile), nil)
		if err != nil {
			return cfg, opts, err
		}
		if sc.WifiTcp != nil {
			cfg = *sc.WifiTcp
		}
		opts = sc.Options()
	}
	if err := applyFlags(getVar, &cfg); err != nil {
		return cfg, opts, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, opts, err
	}

	opts.TraceFile = getVar("trace")
	opts.TopoFile = getVar("topo")
	if valid, err := wifisim.CheckOutputFiles([]string{opts.TraceFile, opts.TopoFile}); !valid {
		return cfg, opts, err
	}
	return cfg, opts, nil
}

// report writes the average throughput of a run and returns the exit status:
// 1 when the run failed or its average is below the threshold
func report(w io.Writer, res *wifisim.WifiTcpResult, err error) int {
	if err != nil {
		wifisim.MainLog.Error(err)
		return 1
	}
	if err := res.Check(); err != nil {
		wifisim.MainLog.Error("Obtained throughput is not in the expected boundaries!")
		return 1
	}
	fmt.Fprintf(w, "\nAverage throughput: %.6g Mbit/s\n", res.AverageMbps)
	return 0
}

func main() {
	cp := cmdlineParameters()
	cp.Parse()
	getVar := func(name string) string { return cp.GetVar(name).(string) }

	cfg, opts, err := configure(getVar)
	if err != nil {
		wifisim.MainLog.Error(err)
		os.Exit(1)
	}
	res, err := wifisim.RunWifiTcp(cfg, opts)
	os.Exit(report(os.Stdout, res, err))
}
