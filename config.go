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

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk form of a Decoder's limits and policy knobs,
// for deployments that want these tunable without a recompile (an
// operational analogue of compile_decoder.c's mgroup lazy-compile options).
type FileConfig struct {
	MaxDepth         int  `yaml:"max_depth"`
	AllowInvalidUTF8 bool `yaml:"allow_invalid_utf8"`
}

// LoadConfig reads a YAML file into a FileConfig. A missing or zero
// max_depth leaves the Decoder's built-in default (vm.MaxNesting) in
// effect once Options is called.
func LoadConfig(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return fc, nil
}

// Options converts a FileConfig into the Option values Program.NewDecoder
// expects, so a loaded file composes with programmatic overrides:
//
//	opts := append(fc.Options(), decode.WithAllowInvalidUTF8(true))
//	d := prog.NewDecoder(sink, opts...)
func (fc FileConfig) Options() []Option {
	var opts []Option
	if fc.MaxDepth > 0 {
		opts = append(opts, WithMaxDepth(fc.MaxDepth))
	}
	opts = append(opts, WithAllowInvalidUTF8(fc.AllowInvalidUTF8))
	return opts
}
