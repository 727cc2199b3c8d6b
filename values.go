package wifisim

// values.go parses the textual attribute values scenario options are given in:
// data rates, times, and random variable specifications

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/iti/rngstream"
)

// DataRate is a bit rate in bits per second
type DataRate float64

// rateUnits maps a unit suffix to its multiplier in bits per second.
// Byte-based units multiply by 8
var rateUnits = map[string]float64{
	"bps": 1, "b/s": 1,
	"kbps": 1e3, "kb/s": 1e3, "Kbps": 1e3, "Kb/s": 1e3,
	"mbps": 1e6, "mb/s": 1e6, "Mbps": 1e6, "Mb/s": 1e6,
	"gbps": 1e9, "gb/s": 1e9, "Gbps": 1e9, "Gb/s": 1e9,
	"Bps": 8, "B/s": 8,
	"kBps": 8e3, "kB/s": 8e3, "KBps": 8e3, "KB/s": 8e3,
	"MBps": 8e6, "MB/s": 8e6,
	"GBps": 8e9, "GB/s": 8e9,
	"Kibps": 1024, "Kib/s": 1024,
	"Mibps": 1024 * 1024, "Mib/s": 1024 * 1024,
	"Gibps": 1024 * 1024 * 1024, "Gib/s": 1024 * 1024 * 1024,
	"KiBps": 8 * 1024, "KiB/s": 8 * 1024,
	"MiBps": 8 * 1024 * 1024, "MiB/s": 8 * 1024 * 1024,
	"GiBps": 8 * 1024 * 1024 * 1024, "GiB/s": 8 * 1024 * 1024 * 1024,
}

// ParseDataRate accepts forms like "100Mbps", "500kb/s", "1.5Gb/s" or a bare number of bits/s
func ParseDataRate(s string) (DataRate, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return 0, fmt.Errorf("empty data rate")
	}
	idx := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.' && r != 'e' && r != 'E' && r != '+' && r != '-'
	})
	numStr, unit := s, "bps"
	if idx >= 0 {
		numStr, unit = s[:idx], s[idx:]
	}
	value, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("data rate %q: %w", s, err)
	}
	mult, present := rateUnits[unit]
	if !present {
		return 0, fmt.Errorf("data rate %q: unknown unit %q", s, unit)
	}
	if value < 0 {
		return 0, fmt.Errorf("data rate %q is negative", s)
	}
	return DataRate(value * mult), nil
}

// BitsPerSecond returns the rate as a float
func (dr DataRate) BitsPerSecond() float64 {
	return float64(dr)
}

// TxTime is the time needed to put nbytes on a link running at this rate
func (dr DataRate) TxTime(nbytes int) float64 {
	if dr <= 0 {
		return math.Inf(1)
	}
	return float64(8*nbytes) / float64(dr)
}

func (dr DataRate) String() string {
	return strconv.FormatFloat(float64(dr), 'f', -1, 64) + "bps"
}

// timeUnits maps suffixes of a time string to seconds
var timeUnits = []struct {
	suffix string
	scale  float64
}{
	{"min", 60}, {"ms", 1e-3}, {"us", 1e-6}, {"ns", 1e-9}, {"ps", 1e-12}, {"fs", 1e-15},
	{"s", 1}, {"h", 3600}, {"d", 86400},
}

// ParseTime converts "2s", "100ms", "1.5us" (or a bare number of seconds) to seconds
func ParseTime(s string) (float64, error) {
	s = strings.TrimSpace(s)
	for _, tu := range timeUnits {
		if strings.HasSuffix(s, tu.suffix) {
			v, err := strconv.ParseFloat(strings.TrimSuffix(s, tu.suffix), 64)
			if err != nil {
				return 0, fmt.Errorf("time %q: %w", s, err)
			}
			return v * tu.scale, nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("time %q: %w", s, err)
	}
	return v, nil
}

// RandomVariable produces samples from some distribution
type RandomVariable interface {
	Sample(rng *rngstream.RngStream) float64
	String() string
}

// ConstantRV always returns Value
type ConstantRV struct {
	Value float64
}

func (c ConstantRV) Sample(rng *rngstream.RngStream) float64 { return c.Value }
func (c ConstantRV) String() string {
	return fmt.Sprintf("ConstantRandomVariable[Constant=%g]", c.Value)
}

// UniformRV is uniform on [Min, Max)
type UniformRV struct {
	Min, Max float64
}

func (u UniformRV) Sample(rng *rngstream.RngStream) float64 {
	return u.Min + (u.Max-u.Min)*rng.RandU01()
}

func (u UniformRV) String() string {
	return fmt.Sprintf("UniformRandomVariable[Min=%g|Max=%g]", u.Min, u.Max)
}

// ExponentialRV has the given Mean; samples above a positive Bound are redrawn
type ExponentialRV struct {
	Mean  float64
	Bound float64
}

func (e ExponentialRV) Sample(rng *rngstream.RngStream) float64 {
	for {
		v := expRV(rng.RandU01(), 1.0/e.Mean)
		if e.Bound <= 0 || v <= e.Bound {
			return v
		}
	}
}

func (e ExponentialRV) String() string {
	return fmt.Sprintf("ExponentialRandomVariable[Mean=%g|Bound=%g]", e.Mean, e.Bound)
}

// expRV returns a sample of a exponentially distributed random number
func expRV(u01, rate float64) float64 {
	return -math.Log(1.0-u01) / rate
}

// ParseRandomVariable reads specifications such as
// "ns3::ConstantRandomVariable[Constant=1]" or "UniformRandomVariable[Min=0|Max=2]".
// A bare number is taken as a constant
func ParseRandomVariable(spec string) (RandomVariable, error) {
	spec = strings.TrimSpace(spec)
	if v, err := strconv.ParseFloat(spec, 64); err == nil {
		return ConstantRV{Value: v}, nil
	}

	name := strings.TrimPrefix(spec, "ns3::")
	attrs := map[string]float64{}
	if open := strings.Index(name, "["); open >= 0 {
		if !strings.HasSuffix(name, "]") {
			return nil, fmt.Errorf("random variable %q: missing ']'", spec)
		}
		body := name[open+1 : len(name)-1]
		name = name[:open]
		for _, kv := range strings.Split(body, "|") {
			if len(kv) == 0 {
				continue
			}
			pieces := strings.SplitN(kv, "=", 2)
			if len(pieces) != 2 {
				return nil, fmt.Errorf("random variable %q: bad attribute %q", spec, kv)
			}
			v, err := strconv.ParseFloat(pieces[1], 64)
			if err != nil {
				return nil, fmt.Errorf("random variable %q: %w", spec, err)
			}
			attrs[pieces[0]] = v
		}
	}

	attrOr := func(key string, dflt float64) float64 {
		if v, present := attrs[key]; present {
			return v
		}
		return dflt
	}

	switch name {
	case "ConstantRandomVariable":
		return ConstantRV{Value: attrOr("Constant", 0)}, nil
	case "UniformRandomVariable":
		u := UniformRV{Min: attrOr("Min", 0), Max: attrOr("Max", 1)}
		if u.Max < u.Min {
			return nil, fmt.Errorf("random variable %q: Max below Min", spec)
		}
		return u, nil
	case "ExponentialRandomVariable":
		e := ExponentialRV{Mean: attrOr("Mean", 1), Bound: attrOr("Bound", 0)}
		if e.Mean <= 0 {
			return nil, fmt.Errorf("random variable %q: Mean must be positive", spec)
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown random variable type %q", name)
}
