// Command frame-replay runs a capture through the frame decoder and prints
// what it finds. It reads either a raw capture log produced by the driver's
// -record flag or a pcap file of USB bulk traffic.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/headtrack/internal/rawlog"
	"github.com/banshee-data/headtrack/internal/trackir"
)

var (
	inputPath = flag.String("input", "", "Capture file to analyze (required)")
	pcapMode  = flag.Bool("pcap", false, "Treat the input as a pcap file instead of a raw capture log")
	verbose   = flag.Bool("v", false, "Print every decoded frame")
)

func main() {
	flag.Parse()
	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	var buffers [][]byte
	var err error
	if *pcapMode {
		buffers, err = readPcap(*inputPath)
	} else {
		buffers, err = readRawLog(*inputPath)
	}
	if err != nil {
		log.Fatalf("failed to read %s: %v", *inputPath, err)
	}

	report(buffers)
}

func readRawLog(path string) ([][]byte, error) {
	records, err := rawlog.ReadAll(path)
	if err != nil {
		return nil, err
	}
	buffers := make([][]byte, len(records))
	for i, rec := range records {
		buffers[i] = rec.Raw
	}
	return buffers, nil
}

// readPcap treats every packet payload as one device buffer. Captures made
// with usbmon carry a 64-byte URB header before the bulk payload; we do not
// strip it here, so unaligned packets simply count as undecodable.
func readPcap(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("not a pcap file: %w", err)
	}

	var buffers [][]byte
	for {
		data, _, err := r.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		buf := make([]byte, len(data))
		copy(buf, data)
		buffers = append(buffers, buf)
	}
	return buffers, nil
}

func report(buffers [][]byte) {
	dec := trackir.NewDecoder()

	typeCounts := make(map[string]int)
	var pixels, tooShort int

	for i, buf := range buffers {
		f, err := dec.Decode(buf)
		if err != nil {
			tooShort++
			continue
		}

		name := trackir.TypeName(f)
		typeCounts[name]++

		if df, ok := f.(*trackir.DataFrame); ok {
			pixels += len(df.Pixels)
			if *verbose {
				fmt.Printf("%6d  data   len=%-3d blobs=%d\n", i, f.Length(), len(df.Pixels))
			}
		} else if *verbose {
			fmt.Printf("%6d  %-6s len=%-3d payload=%x\n", i, name, f.Length(), f.Payload())
		}
	}

	fmt.Printf("buffers:   %d\n", len(buffers))
	fmt.Printf("too short: %d\n", tooShort)

	names := make([]string, 0, len(typeCounts))
	for name := range typeCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s%s %d\n", name+":", strings.Repeat(" ", 10-len(name)), typeCounts[name])
	}
	fmt.Printf("pixels:    %d\n", pixels)
}
