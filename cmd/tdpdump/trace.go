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

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pbtdp/decode"
)

// traceSink is a decode.Sink that records one line per visited field
// instead of building any value, for side-by-side display against the raw
// wire dump.
type traceSink struct {
	w     io.Writer
	depth int
	lines []string
}

func newTraceSink(w io.Writer) *traceSink {
	return &traceSink{w: w}
}

func (t *traceSink) log(format string, args ...any) {
	line := strings.Repeat("  ", t.depth) + fmt.Sprintf(format, args...)
	t.lines = append(t.lines, line)
}

func (t *traceSink) StartMessage() bool {
	t.log("message {")
	t.depth++
	return true
}

func (t *traceSink) EndMessage(status error) bool {
	t.depth--
	if status != nil {
		t.log("} (failed: %v)", status)
	} else {
		t.log("}")
	}
	return true
}

func fieldTag(h decode.HandlerData) string {
	if h == nil || h.Def == nil {
		return "?"
	}
	return fmt.Sprintf("%d:%s", h.Def.Number, h.Def.Name)
}

func (t *traceSink) ValueBool(h decode.HandlerData, v bool) bool {
	t.log("%s = %v", fieldTag(h), v)
	return true
}

func (t *traceSink) ValueInt32(h decode.HandlerData, v int32) bool {
	if h != nil && h.Def != nil && h.Def.Enum != nil {
		if name, ok := h.Def.Enum.Values[v]; ok {
			t.log("%s = %s(%d)", fieldTag(h), name, v)
			return true
		}
	}
	t.log("%s = %d", fieldTag(h), v)
	return true
}

func (t *traceSink) ValueInt64(h decode.HandlerData, v int64) bool {
	t.log("%s = %d", fieldTag(h), v)
	return true
}

func (t *traceSink) ValueUint32(h decode.HandlerData, v uint32) bool {
	t.log("%s = %d", fieldTag(h), v)
	return true
}

func (t *traceSink) ValueUint64(h decode.HandlerData, v uint64) bool {
	t.log("%s = %d", fieldTag(h), v)
	return true
}

func (t *traceSink) ValueFloat(h decode.HandlerData, v float32) bool {
	t.log("%s = %v", fieldTag(h), v)
	return true
}

func (t *traceSink) ValueDouble(h decode.HandlerData, v float64) bool {
	t.log("%s = %v", fieldTag(h), v)
	return true
}

func (t *traceSink) StartString(h decode.HandlerData, sizeHint int) bool {
	t.log("%s = string[%d] {", fieldTag(h), sizeHint)
	t.depth++
	return true
}

func (t *traceSink) OnString(h decode.HandlerData, b []byte) int {
	t.log("%q", string(b))
	return len(b)
}

func (t *traceSink) EndString(h decode.HandlerData) bool {
	t.depth--
	t.log("}")
	return true
}

func (t *traceSink) StartSeq(h decode.HandlerData) bool {
	t.log("%s = [", fieldTag(h))
	t.depth++
	return true
}

func (t *traceSink) EndSeq(h decode.HandlerData) bool {
	t.depth--
	t.log("]")
	return true
}

func (t *traceSink) StartSubMessage(h decode.HandlerData) decode.Sink {
	t.log("%s = ", fieldTag(h))
	return t
}

func (t *traceSink) EndSubMessage(h decode.HandlerData) bool {
	return true
}

func (t *traceSink) OnUnknown(b []byte) int {
	t.log("<unknown field, %d bytes>", len(b))
	return len(b)
}
