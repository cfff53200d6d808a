// Copyright 2020-2025 Buf Technologies, Inc.
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

// gen is a script for generating blocks of repeated Protoscope fields.
package main

import (
	"flag"
	"fmt"
	"math/bits"
	"math/rand/v2"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

var (
	lo  = flag.Uint64("lo", 0, "lower bound (inclusive)")
	hi  = flag.Uint64("hi", 0, "upper bound (exclusive)")
	n   = flag.Int("n", 0, "the number of elements to generate")
	row = flag.Int("row", 16, "the number of elements to a row")

	format = flag.String("f", "", "the format to print each value in")

	ascii = flag.Bool("ascii", false, "generate ASCII strings instead")
	uni   = flag.Bool("unicode", false, "generate Unicode strings instead")
	bytes = flag.Bool("bytes", false, "generate byte strings instead")
	zipf  = flag.Bool("zipf", false, "use a Zipf distribution rather than a uniform one")
)

// genConfig holds the knobs generate accepts, mirroring the package's flag
// variables so main and a test can both drive it without going through
// flag.Parse.
type genConfig struct {
	Lo, Hi     uint64
	N, Row     int
	Format     string
	Ascii, Uni, Bytes, Zipf bool
}

func makeString[T byte | rune](cfg genConfig, char func() T) string {
	var n int
	if cfg.Zipf {
		n = int(rand.Uint64N(cfg.Hi-cfg.Lo) + cfg.Lo)
	} else {
		hi := uint64(1) << cfg.Hi
		lo := uint64(1) << cfg.Lo
		n = bits.Len64(rand.Uint64N(hi-lo) + lo)
	}

	buf := new(strings.Builder)
	for range n {
		buf.WriteString(string(char()))
	}
	return buf.String()
}

// generate renders cfg.N values, laid out cfg.Row to a line and padded into
// aligned columns, as Protoscope-ready text.
func generate(cfg genConfig) string {
	var cells [][]string
	var widths [][]int
	for i := range cfg.N {
		if i%cfg.Row == 0 {
			cells = append(cells, nil)
			widths = append(widths, nil)
		}

		var value any
		switch {
		case cfg.Ascii:
			value = makeString(cfg, func() rune {
				for {
					r := rand.Int32N(0x7f)
					if unicode.IsGraphic(r) {
						return r
					}
				}
			})
		case cfg.Uni:
			value = makeString(cfg, func() rune {
				for {
					r := rand.Int32N(unicode.MaxRune + 1)
					// Uniformly distribute encoded lengths.
					switch rand.IntN(4) {
					case 0:
						r &= 0x7f
					case 1:
						r &= 0x7ff
					case 2:
						r &= 0xffff
					}
					if unicode.IsGraphic(r) && !unicode.IsMark(r) && !unicode.IsSpace(r) {
						return r
					}
				}
			})
		case cfg.Bytes:
			value = makeString(cfg, func() byte { return byte(rand.IntN(0xff)) })
		default:
			v := rand.Uint64N(cfg.Hi-cfg.Lo) + cfg.Lo
			if cfg.Zipf {
				// We don't bother with rand.Zipf. Instead, we pick a random bit
				// length between 0 and the bit length of hi and truncate v to that.
				k := bits.Len64(cfg.Hi)
				k = rand.IntN(k) + 1
				v &= (uint64(1) << k) - 1
			}
			value = v
		}

		cell := fmt.Sprintf(cfg.Format, value)
		cells[len(cells)-1] = append(cells[len(cells)-1], cell)
		widths[len(widths)-1] = append(widths[len(widths)-1], uniseg.StringWidth(cell))
	}

	// Discover the widest cell in each column.
	var maxima []int
	for _, row := range widths {
		for col, width := range row {
			if len(maxima) <= col {
				maxima = append(maxima, 0)
			}

			maxima[col] = max(maxima[col], width)
		}
	}

	// Snap each maximum to an even number.
	for i, n := range maxima {
		maxima[i] = (n + 2) &^ 1
	}

	if len(maxima) > 0 {
		maxima[len(maxima)-1] = 0 // No need to pad the final cell.
	}

	// Render each row with the appropriate padding between them.
	out := new(strings.Builder)
	for i, row := range cells {
		for j, cell := range row {
			out.WriteString(cell)

			if pad := maxima[j] - widths[i][j]; pad > 0 {
				out.WriteString(strings.Repeat(" ", pad))
			}
		}
		out.WriteByte('\n')
	}
	return out.String()
}

func main() {
	flag.Parse()
	fmt.Print(generate(genConfig{
		Lo: *lo, Hi: *hi, N: *n, Row: *row,
		Format: *format,
		Ascii:  *ascii, Uni: *uni, Bytes: *bytes, Zipf: *zipf,
	}))
}
