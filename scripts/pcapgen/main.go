// pcapgen writes synthetic VLAN traffic shaped like a credit-based shaper or
// a time-aware shaper would leave it, for offline runs of tsn-analyzer.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"TSNSpectra/internal/config"
	"TSNSpectra/internal/engine/protocol"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// window is a gate window of one class: class@start+duration.
type window struct {
	class uint8
	start time.Duration
	dur   time.Duration
}

type packet struct {
	ts    time.Duration
	class uint8
}

func main() {
	out := flag.String("o", "tsn.pcap", "Output pcap file path")
	mode := flag.String("mode", "cbs", "Traffic shape: 'cbs' or 'tas'")
	duration := flag.Duration("duration", time.Second, "Length of the generated trace")
	payload := flag.Int("size", 1000, "UDP payload size in bytes")
	link := flag.Float64("link", 1e9, "Link speed in bits per second")
	class := flag.Int("class", 3, "Traffic class of the shaped stream (cbs)")
	burst := flag.Int("burst", 8, "Frames per burst (cbs)")
	rate := flag.Float64("rate", 40e6, "Average rate of the shaped stream in bits per second (cbs)")
	cycle := flag.Duration("cycle", 10*time.Millisecond, "Cycle length (tas)")
	windows := flag.String("windows", "3@0+3ms,1@3ms+7ms", "Gate windows as class@start+duration, comma separated (tas)")
	perWindow := flag.Int("per-window", 5, "Frames sent inside every window of every cycle (tas)")
	seed := flag.Uint64("seed", 1, "Random seed for frame placement (tas)")
	flag.Parse()

	tx := config.Default().Transmit
	tx.SrcMAC = "02:00:00:00:00:01"
	tx.DstMAC = "02:00:00:00:00:02"
	tx.VLANID = 100
	spec, err := protocol.SpecFromConfig(tx)
	if err != nil {
		log.Fatalf("Failed to build frame template: %v", err)
	}
	spec.PayloadSize = *payload

	var packets []packet
	switch *mode {
	case "cbs":
		frameLen, err := frameLength(spec)
		if err != nil {
			log.Fatalf("Failed to build frame: %v", err)
		}
		packets = cbsTrace(uint8(*class), *burst, frameLen, *rate, *link, *duration)
	case "tas":
		ws, err := parseWindows(*windows)
		if err != nil {
			log.Fatalf("Invalid windows: %v", err)
		}
		packets = tasTrace(ws, *cycle, *perWindow, *duration, *seed)
	default:
		log.Fatalf("Unknown mode: %s. Use 'cbs' or 'tas'", *mode)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	log.Printf("Generating %d packets into %s...", len(packets), *out)
	if err := writeTrace(f, spec, packets, time.Now()); err != nil {
		log.Fatalf("Failed to write trace: %v", err)
	}
	log.Printf("Successfully generated %d packets into %s.", len(packets), *out)
}

func frameLength(spec protocol.FrameSpec) (int, error) {
	data, err := protocol.BuildFrame(spec)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// cbsTrace emits bursts of back-to-back frames at line rate, spaced so that
// the stream averages rate bits per second.
func cbsTrace(class uint8, burst, frameLen int, rate, link float64, total time.Duration) []packet {
	frameBits := float64(frameLen * 8)
	spacing := time.Duration(frameBits / link * 1e9)
	period := time.Duration(float64(burst) * frameBits / rate * 1e9)

	var out []packet
	for start := time.Duration(0); start < total; start += period {
		for i := 0; i < burst; i++ {
			out = append(out, packet{ts: start + time.Duration(i)*spacing, class: class})
		}
	}
	return out
}

// tasTrace places perWindow frames at random offsets inside every window of
// every cycle.
func tasTrace(ws []window, cycle time.Duration, perWindow int, total time.Duration, seed uint64) []packet {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	var out []packet
	for base := time.Duration(0); base < total; base += cycle {
		for _, w := range ws {
			for i := 0; i < perWindow; i++ {
				off := time.Duration(rng.Int64N(int64(w.dur)))
				out = append(out, packet{ts: base + w.start + off, class: w.class})
			}
		}
	}
	slices.SortFunc(out, func(a, b packet) int { return int(a.ts - b.ts) })
	return out
}

func parseWindows(s string) ([]window, error) {
	var ws []window
	for _, part := range strings.Split(s, ",") {
		classStr, rest, ok := strings.Cut(strings.TrimSpace(part), "@")
		if !ok {
			return nil, fmt.Errorf("window %q: missing '@'", part)
		}
		startStr, durStr, ok := strings.Cut(rest, "+")
		if !ok {
			return nil, fmt.Errorf("window %q: missing '+'", part)
		}
		c, err := strconv.Atoi(classStr)
		if err != nil || c < 0 || c > 7 {
			return nil, fmt.Errorf("window %q: class must be 0..7", part)
		}
		start, err := parseOffset(startStr)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", part, err)
		}
		dur, err := time.ParseDuration(durStr)
		if err != nil || dur <= 0 {
			return nil, fmt.Errorf("window %q: invalid duration", part)
		}
		ws = append(ws, window{class: uint8(c), start: start, dur: dur})
	}
	return ws, nil
}

func parseOffset(s string) (time.Duration, error) {
	if s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// writeTrace builds one frame per class and writes packets with nanosecond
// timestamps relative to base.
func writeTrace(w io.Writer, spec protocol.FrameSpec, packets []packet, base time.Time) error {
	pw := pcapgo.NewWriterNanos(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}

	frames := make(map[uint8][]byte)
	for _, p := range packets {
		data, ok := frames[p.class]
		if !ok {
			spec.Priority = p.class
			var err error
			if data, err = protocol.BuildFrame(spec); err != nil {
				return err
			}
			frames[p.class] = data
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(p.ts),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := pw.WritePacket(ci, data); err != nil {
			return fmt.Errorf("failed to write packet: %w", err)
		}
	}
	return nil
}
