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

package decode

import "github.com/pbtdp/decode/internal/tdp/vm"

// Option configures a Decoder created by Program.NewDecoder.
//
// This is a func, not an interface, so option values stay cheap to
// construct on every parse's hot path.
type Option func(*vm.Config)

// WithMaxDepth caps how deeply nested messages, groups, and packed-repeated
// runs may be before a parse fails with ErrorRecursionDepth. The default,
// used when this option is absent, is vm.MaxNesting.
//
// Setting a large value enables a resource-exhaustion vector for untrusted
// input; callers parsing untrusted bytes should leave the default or set a
// value appropriate to their own schema's expected nesting.
func WithMaxDepth(depth int) Option {
	return func(c *vm.Config) { c.MaxDepth = depth }
}

// WithAllowInvalidUTF8 disables UTF-8 verification of string-kind (not
// bytes-kind) field values. Off by default: malformed UTF-8 in a string
// field fails the parse with ErrorBadUTF8.
func WithAllowInvalidUTF8(allow bool) Option {
	return func(c *vm.Config) { c.AllowInvalidUTF8 = allow }
}
