// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadChunkSizes(t *testing.T) {
	cases := []struct {
		name  string
		addr  uint32
		size  uint32
		sizes []uint32
	}{
		{"aligned word", 0x08000000, 4, []uint32{4}},
		{"aligned short", 0x08000000, 3, []uint32{4}},
		{"aligned two blocks", 0x08000000, 2048, []uint32{1024, 1024}},
		{"exact block boundary plus word", 0x08000000, 1025, []uint32{1024, 4}},
		{"unaligned start", 0x08000001, 8, []uint32{4, 8}},
		{"unaligned covered by prefix", 0x08000003, 1, []uint32{4}},
		{"unaligned spanning blocks", 0x08000002, 1030, []uint32{4, 1024, 4}},
	}

	for _, c := range cases {
		assert.Equalf(t, c.sizes, readChunkSizes(c.addr, c.size), "case %s", c.name)
	}
}

func TestReadChunkSizesCoverRequest(t *testing.T) {
	// Every transfer plan must deliver at least the requested bytes,
	// each block within the firmware's limits and word sized.
	for _, addr := range []uint32{0x08000000, 0x08000001, 0x08000002, 0x08000003} {
		for _, size := range []uint32{1, 2, 3, 4, 5, 1023, 1024, 1025, 4096, 6144} {
			var total uint32

			for _, blk := range readChunkSizes(addr, size) {
				assert.Zero(t, blk%4)
				assert.LessOrEqual(t, blk, uint32(readBlockSize))
				total += blk
			}

			assert.GreaterOrEqualf(t, total, size, "addr %#x size %d", addr, size)
		}
	}
}
