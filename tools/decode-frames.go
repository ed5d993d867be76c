//go:build ignore

// Decode-frames decodes captured heater frames from hex dumps.
//
// Feed it one hex frame per line (whitespace and 0x prefixes are fine;
// lines starting with # are skipped), the way btmon or nRF Connect
// exports look after a light cleanup:
//
//	go run tools/decode-frames.go capture.txt
//	go run tools/decode-frames.go --protocol legacy < capture.txt
//
// Each line prints the classified message or the decode error, which is
// the quickest way to check a capture against the frame layouts.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/brodvik/cabinheat/internal/protocol"
)

func main() {
	protoName := flag.String("protocol", "aa55", "protocol variant (aa55, legacy)")
	flag.Parse()

	version, err := protocol.ParseVersion(*protoName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	codec, err := protocol.NewCodec(version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var in io.Reader = os.Stdin
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	scanner := bufio.NewScanner(in)
	lineNum := 0
	decoded, failed := 0, 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		raw, err := parseHexLine(line)
		if err != nil {
			fmt.Printf("%4d: unparseable: %v\n", lineNum, err)
			failed++
			continue
		}

		msg, err := codec.Decode(raw)
		if err != nil {
			fmt.Printf("%4d: %s\n      %v\n", lineNum, hex.EncodeToString(raw), err)
			failed++
			continue
		}

		fmt.Printf("%4d: %s\n      %s\n", lineNum, hex.EncodeToString(raw), msg)
		decoded++
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n%d decoded, %d failed\n", decoded, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// parseHexLine tolerates the usual capture formats: spaces, colons,
// commas and 0x prefixes between bytes.
func parseHexLine(line string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", "\t", "", ":", "", ",", "", "0x", "", "0X", "").Replace(line)
	return hex.DecodeString(cleaned)
}
