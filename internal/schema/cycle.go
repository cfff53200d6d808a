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

package schema

import "github.com/pbtdp/decode/internal/scc"

// tagCycles marks every MessageDef that participates in a reference cycle,
// directly or through a chain of submessage fields.
//
// This is purely advisory: the compiler and VM already handle cyclic
// schemas correctly via CALL/RET bytecode (a self-referential message just
// calls its own compiled method), per Design Note §9 ("cyclic schema graphs
// should use arena-indexed defs with an SCC-tagged cyclic flag, not
// refcount-merging machinery"). The flag exists so tooling (and tests) can
// assert that a recursive message was recognized as such.
func tagCycles(s *Schema) {
	g := scc.Graph[DefIndex]{
		Nodes: make([]DefIndex, len(s.Messages)),
		Edges: func(n DefIndex) []DefIndex {
			m := s.Def(n)
			var out []DefIndex
			for i := range m.Fields {
				if m.Fields[i].Sub != NoDef {
					out = append(out, m.Fields[i].Sub)
				}
			}
			return out
		},
	}
	for i := range s.Messages {
		g.Nodes[i] = DefIndex(i)
	}

	for _, comp := range scc.Sort(g) {
		cyclic := len(comp.Nodes) > 1
		if !cyclic && len(comp.Nodes) == 1 {
			// A self-edge (message directly contains itself) forms a
			// singleton SCC too; check for it explicitly.
			n := comp.Nodes[0]
			for _, e := range g.Edges(n) {
				if e == n {
					cyclic = true
					break
				}
			}
		}
		if cyclic {
			for _, n := range comp.Nodes {
				s.Def(n).Cyclic = true
			}
		}
	}
}
