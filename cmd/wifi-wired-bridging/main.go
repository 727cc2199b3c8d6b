package main

// wifi-wired-bridging runs wifi cells whose access points are bridged onto a
// CSMA backbone, with a station of the first cell sending a constant 500kb/s
// stream to a station of the second

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
	cp.AddFlag(cmdline.StringFlag, "nWifis", false)        // number of wifi networks
	cp.AddFlag(cmdline.StringFlag, "nStas", false)         // number of stations per wifi network
	cp.AddFlag(cmdline.StringFlag, "SendIp", false)        // send Ipv4 or raw packets
	cp.AddFlag(cmdline.StringFlag, "writeMobility", false) // write mobility trace
	cp.AddFlag(cmdline.StringFlag, "config", false)        // scenario file, yaml or json
	cp.AddFlag(cmdline.StringFlag, "trace", false)         // device trace output file
	cp.AddFlag(cmdline.StringFlag, "topo", false)          // topology description output file
	cp.AddFlag(cmdline.StringFlag, "v", false)             // log level
	return cp
}

// flagValue returns the text given for the named flag, empty when it was not given
type flagValue func(name string) string

// applyFlags overrides the options with the flags given on the command line
func applyFlags(getVar flagValue, cfg *wifisim.BridgingConfig) error {
	errs := []error{}
	if v := getVar("nWifis"); len(v) > 0 {
		n, err := strconv.Atoi(v)
		errs = append(errs, err)
		cfg.NWifis = n
	}
	if v := getVar("nStas"); len(v) > 0 {
		n, err := strconv.Atoi(v)
		errs = append(errs, err)
		cfg.NStas = n
	}
	if v := getVar("SendIp"); len(v) > 0 {
		b, err := strconv.ParseBool(v)
		errs = append(errs, err)
		cfg.SendIp = b
	}
	if v := getVar("writeMobility"); len(v) > 0 {
		b, err := strconv.ParseBool(v)
		errs = append(errs, err)
		cfg.WriteMobility = b
	}
	return wifisim.ReportErrs(errs)
}

// configure builds the options of the run: defaults, then the scenario file, then the flags
func configure(getVar flagValue) (wifisim.BridgingConfig, wifisim.RunOptions, error) {
	cfg := wifisim.DefaultBridgingConfig()
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
		if sc.Bridging != nil {
			cfg = *sc.Bridging
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
	files := []string{opts.TraceFile, opts.TopoFile}
	if cfg.WriteMobility {
		files = append(files, cfg.MobilityFile)
	}
	if valid, err := wifisim.CheckOutputFiles(files); !valid {
		return cfg, opts, err
	}
	return cfg, opts, nil
}

// report writes what the run sent and received and returns the exit status, 1 when the run failed
func report(w io.Writer, res *wifisim.BridgingResult, err error) int {
	if err != nil {
		wifisim.MainLog.Error(err)
		return 1
	}
	fmt.Fprintf(w, "%s -> %s: sent %d bytes in %d packets, received %d bytes in %d packets\n",
		res.Source, res.Destination, res.TxBytes, res.TxPackets, res.RxBytes, res.RxPackets)
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
	res, err := wifisim.RunBridging(cfg, opts)
	os.Exit(report(os.Stdout, res, err))
}
