package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"TSNSpectra/internal/engine/protocol"

	"github.com/google/gopacket/pcap"
)

func main() {
	limit := flag.Int("n", 20, "Number of VLAN frames to print")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/pcapana -n 20 <path_to_pcap_file>")
		os.Exit(1)
	}

	handle, err := pcap.OpenOffline(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	defer handle.Close()

	var prev [8]uint64
	printed, skipped := 0, 0
	for printed < *limit {
		data, ci, err := handle.ReadPacketData()
		if err != nil {
			break
		}
		obs, err := protocol.ParseFrame(data, ci)
		if err != nil {
			skipped++
			continue
		}
		// Gap to the previous frame of the same class.
		var gap uint64
		if prev[obs.Class] != 0 {
			gap = obs.TimestampNs - prev[obs.Class]
		}
		prev[obs.Class] = obs.TimestampNs
		fmt.Printf("[%d] class=%d len=%d gap=%dns\n", obs.TimestampNs, obs.Class, obs.Length, gap)
		printed++
	}
	fmt.Printf("%d frames printed, %d untagged frames skipped\n", printed, skipped)
}
