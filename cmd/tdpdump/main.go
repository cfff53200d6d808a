// Copyright 2025 The pbtdp Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command tdpdump renders the wire-format structure of a serialized
// message side by side with a trace of which field each span dispatched
// to, for debugging a Program's compiled bytecode against real input.
//
// This is the analogue of compile_decoder.c's UPB_DUMP_BYTECODE: a
// development aid for looking at what the bytecode actually did with a
// given byte string, not a general-purpose protobuf text printer.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/protocolbuffers/protoscope"
	"golang.org/x/term"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/pbtdp/decode"
)

func main() {
	descriptorPath := flag.String("descriptor", "", "path to a FileDescriptorSet built with protoc --descriptor_set_out")
	messageName := flag.String("message", "", "full name of the message type to parse, e.g. foo.bar.Baz")
	flag.Parse()

	if *descriptorPath == "" || *messageName == "" || flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tdpdump -descriptor FILE -message NAME WIRE_BYTES_FILE")
		os.Exit(2)
	}

	if err := run(*descriptorPath, *messageName, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "tdpdump:", err)
		os.Exit(1)
	}
}

func run(descriptorPath, messageName, wireBytesPath string) error {
	fds, err := os.ReadFile(descriptorPath)
	if err != nil {
		return fmt.Errorf("reading descriptor set: %w", err)
	}
	raw, err := os.ReadFile(wireBytesPath)
	if err != nil {
		return fmt.Errorf("reading wire bytes: %w", err)
	}

	prog, err := decode.CompileFromBytes(fds, protoreflect.FullName(messageName))
	if err != nil {
		return fmt.Errorf("compiling %s: %w", messageName, err)
	}

	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	structure := protoscope.Write(raw, protoscope.WriterOptions{})

	trace := newTraceSink(os.Stdout)
	d := prog.NewDecoder(trace)
	if err := d.Put(raw); err != nil {
		fmt.Fprintln(os.Stderr, "tdpdump: parse failed partway through:", err)
	} else if err := d.End(); err != nil {
		fmt.Fprintln(os.Stderr, "tdpdump: parse failed at end:", err)
	}

	printSideBySide(os.Stdout, width, structure, trace.lines)
	return nil
}

func printSideBySide(w *os.File, width int, left string, right []string) {
	half := width/2 - 1
	if half < 16 {
		half = 16
	}
	leftLines := splitLines(left)
	for i := 0; i < max(len(leftLines), len(right)); i++ {
		var l, r string
		if i < len(leftLines) {
			l = leftLines[i]
		}
		if i < len(right) {
			r = right[i]
		}
		fmt.Fprintf(w, "%-*s | %s\n", half, truncate(l, half), r)
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
