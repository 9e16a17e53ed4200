package main

import (
	"encoding/gob"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"NetFlowMeter/internal/model"
)

// Inspects a gob-encoded packet archive produced by the probe's archive
// worker.
func main() {
	verbose := flag.Bool("v", false, "Print one line per packet instead of just the summary.")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/gobana/main.go [-v] <gob_file>")
		os.Exit(1)
	}
	gobFile := flag.Arg(0)

	file, err := os.Open(gobFile)
	if err != nil {
		log.Fatalf("Unable to open file: %v", err)
	}
	defer file.Close()

	decoder := gob.NewDecoder(file)

	var (
		count      int
		totalBytes uint64
		first      time.Time
		last       time.Time
	)

	for {
		var pkt model.RawPacket
		if err := decoder.Decode(&pkt); err == io.EOF {
			break
		} else if err != nil {
			log.Fatalf("Failed to decode gob data after %d packets: %v", count, err)
		}

		if count == 0 {
			first = pkt.Timestamp
		}
		last = pkt.Timestamp
		count++
		totalBytes += uint64(pkt.Length)

		if *verbose {
			fmt.Printf("%s iface=%d len=%d\n",
				pkt.Timestamp.Format("2006-01-02 15:04:05.000000"), pkt.Port, pkt.Length)
		}
	}

	if count == 0 {
		log.Println("Archive is empty.")
		return
	}

	fmt.Printf("Packets:    %d\n", count)
	fmt.Printf("TotalBytes: %d\n", totalBytes)
	fmt.Printf("FirstSeen:  %s\n", first.Format(time.RFC3339Nano))
	fmt.Printf("LastSeen:   %s\n", last.Format(time.RFC3339Nano))
	fmt.Printf("Span:       %s\n", last.Sub(first))
}
