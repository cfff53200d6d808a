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

//go:build debug

// Package debug includes debugging helpers for tracing VM execution.
//
// Everything here is compiled in only under the debug build tag, so that
// production builds pay no cost for trace formatting.
package debug

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/timandy/routine"
)

// Enabled is true when built with the debug tag.
const Enabled = true

var debugPattern *regexp.Regexp

func init() {
	flag.Func("pbtdp.filter", "regexp to filter debug logs by", func(s string) (err error) {
		debugPattern, err = regexp.Compile(s)
		return err
	})
}

// Log prints a trace line to stderr, tagged with the calling package/file
// and the current goroutine id (via routine.Goid, so concurrent decodes in
// tests are still readable interleaved).
//
// context, if non-empty, is a printf-style prefix ([0] is the format, the
// rest are its args) rendered before operation.
func Log(context []any, operation string, format string, args ...any) {
	skip := 2
	pc, file, line, _ := runtime.Caller(skip)
	fn := runtime.FuncForPC(pc)
	name := fn.Name()

	pkg := name
	if i := strings.LastIndex(pkg, "/"); i >= 0 {
		pkg = pkg[i+1:]
	}
	if i := strings.Index(pkg, "."); i >= 0 {
		pkg = pkg[:i]
	}
	file = filepath.Base(file)

	var buf strings.Builder
	fmt.Fprintf(&buf, "%s/%s:%d [g%04d", pkg, file, line, routine.Goid())
	if len(context) >= 1 {
		fmt.Fprintf(&buf, ", "+context[0].(string), context[1:]...)
	}
	fmt.Fprintf(&buf, "] %s: ", operation)
	fmt.Fprintf(&buf, format, args...)

	if debugPattern != nil && !debugPattern.MatchString(buf.String()) {
		return
	}

	buf.WriteByte('\n')
	os.Stderr.WriteString(buf.String())
}

// Assert panics if cond is false. Only compiled in under the debug tag;
// release builds trust their invariants.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Errorf("pbtdp: internal assertion failed: "+format, args...))
	}
}
