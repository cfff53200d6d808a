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

package vm

import "fmt"

// Code identifies a class of decode failure.
//
// These mirror the fatal error conditions upb's decoder.c raises via
// seterr(); see original_source/upb/pb/decoder.c.
type Code int

const (
	// ErrorUnterminatedVarint is raised when a varint's continuation bit is
	// still set after 10 bytes.
	ErrorUnterminatedVarint Code = iota + 1
	// ErrorRecursionDepth is raised when the frame stack is exhausted.
	// Matches kPbDecoderStackOverflow in decoder.c.
	ErrorRecursionDepth
	// ErrorSubmessageTooLong is raised when a pushed frame's end offset
	// extends past its parent's. Matches kPbDecoderSubmessageTooLong.
	ErrorSubmessageTooLong
	// ErrorBadWireType is raised when a tag names a wire type outside 0-5.
	ErrorBadWireType
	// ErrorZeroField is raised when a decoded tag has field number 0.
	ErrorZeroField
	// ErrorFieldTooLarge is raised when a length-delimited field declares a
	// size above wire.MaxFieldNumber. A tag whose field number exceeds
	// wire.MaxFieldNumber is reported as ErrorZeroField instead, since
	// wire.UnpackTag maps it to field 0.
	ErrorFieldTooLarge
	// ErrorUnmatchedEndGroup is raised when an END_GROUP tag doesn't match
	// the innermost open group.
	ErrorUnmatchedEndGroup
	// ErrorSkipPastParent is raised when an unknown length-delimited field
	// being skipped declares a length past the enclosing delimited region.
	ErrorSkipPastParent
	// ErrorHandlerRejected is raised when a handler whose selector is not
	// "always ok" returns false.
	ErrorHandlerRejected
	// ErrorTruncatedAtEnd is raised by End when the decoder still holds
	// buffered residual bytes, a pending skip, or an open delimited region.
	ErrorTruncatedAtEnd
	// ErrorNullBuffer is not raised by this decoder: Put with a nil or
	// empty slice is always a no-op.
	ErrorNullBuffer
	// ErrorBadUTF8 is raised when a string field fails UTF-8 verification.
	ErrorBadUTF8
)

// maxErrMsg caps a rendered error message, matching upb's truncated
// upb_status message (127 chars).
const maxErrMsg = 127

var codeText = map[Code]string{
	ErrorUnterminatedVarint: "unterminated varint",
	ErrorRecursionDepth:     "nesting too deep",
	ErrorSubmessageTooLong:  "submessage end extends past enclosing submessage",
	ErrorBadWireType:        "invalid wire type",
	ErrorZeroField:          "saw invalid field number (0)",
	ErrorFieldTooLarge:      "field number too large",
	ErrorUnmatchedEndGroup:  "unmatched END_GROUP tag",
	ErrorSkipPastParent:     "skipped value extended beyond enclosing submessage",
	ErrorHandlerRejected:    "handler rejected value",
	ErrorTruncatedAtEnd:     "unexpected EOF",
	ErrorNullBuffer:         "passed nil buffer over non-skippable region",
	ErrorBadUTF8:            "invalid UTF-8 in string field",
}

// ParseError is a fatal decode failure, carrying the absolute stream offset
// at which it occurred.
type ParseError struct {
	Code   Code
	Offset uint64
	Detail string
}

func (e *ParseError) Error() string {
	msg := codeText[e.Code]
	if e.Detail != "" {
		msg = msg + ": " + e.Detail
	}
	if len(msg) > maxErrMsg {
		msg = msg[:maxErrMsg]
	}
	return fmt.Sprintf("%s (at offset %d)", msg, e.Offset)
}
