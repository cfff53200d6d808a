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

package dispatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbtdp/decode/internal/dispatch"
	"github.com/pbtdp/decode/internal/wire"
)

func TestLookupMissReportsNotFound(t *testing.T) {
	tbl := dispatch.New()
	_, ok := tbl.Lookup(5)
	assert.False(t, ok)
	_, ok = tbl.Lookup(5000)
	assert.False(t, ok)
}

func TestDenseAndHashTiersRoundTrip(t *testing.T) {
	tbl := dispatch.New()

	dense := dispatch.Entry{Offset: 10, WT1: uint8(wire.Varint), WT2: wire.NoWireType}
	tbl.Set(3, dense) // well under denseThreshold

	sparse := dispatch.Entry{Offset: 20, WT1: uint8(wire.Delimited), WT2: wire.NoWireType}
	tbl.Set(1000, sparse)

	got, ok := tbl.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, dense, got)

	got, ok = tbl.Lookup(1000)
	require.True(t, ok)
	assert.Equal(t, sparse, got)
}

func TestZeroEntryIsDistinguishableFromUnset(t *testing.T) {
	tbl := dispatch.New()
	// The zero Entry has WT1/WT2 == 0 (VARINT), not NoWireType, so Empty()
	// alone can't tell "never set" from "set to field-0-ish varint"; the
	// table's own written-tracking must be what Lookup consults.
	tbl.Set(7, dispatch.Entry{})
	got, ok := tbl.Lookup(7)
	require.True(t, ok)
	assert.False(t, got.Empty())

	_, ok = tbl.Lookup(8)
	assert.False(t, ok, "an adjacent never-set dense slot must still report not-found")
}

func TestShiftAddsDeltaToEveryOffset(t *testing.T) {
	tbl := dispatch.New()
	tbl.Set(dispatch.EndMsgKey, dispatch.Entry{Offset: 1})
	tbl.Set(2, dispatch.Entry{Offset: 2})
	tbl.Set(2000, dispatch.Entry{Offset: 3})

	tbl.Shift(100)

	e, _ := tbl.Lookup(dispatch.EndMsgKey)
	assert.Equal(t, uint32(101), e.Offset)
	e, _ = tbl.Lookup(2)
	assert.Equal(t, uint32(102), e.Offset)
	e, _ = tbl.Lookup(2000)
	assert.Equal(t, uint32(103), e.Offset)
}

func TestSecondaryKeyDoesNotCollideWithFieldNumbers(t *testing.T) {
	tbl := dispatch.New()
	tbl.Set(5, dispatch.Entry{Offset: 1})
	tbl.Set(dispatch.SecondaryKey(5), dispatch.Entry{Offset: 2})

	primary, ok := tbl.Lookup(5)
	require.True(t, ok)
	secondary, ok := tbl.Lookup(dispatch.SecondaryKey(5))
	require.True(t, ok)

	assert.NotEqual(t, primary.Offset, secondary.Offset)
	assert.Equal(t, uint32(1), primary.Offset)
	assert.Equal(t, uint32(2), secondary.Offset)
}
