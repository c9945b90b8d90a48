// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupChipVLDiscovery(t *testing.T) {
	index := lookupChip(0x10016420)
	require.NotZero(t, index)

	chip := chipDescriptors[index]
	assert.Equal(t, "STM32F100", chip.Name)
	assert.Equal(t, FamilyF1, chip.Family)
	assert.Equal(t, uint32(0x08000000), chip.FlashBase)
	assert.Equal(t, uint32(128*1024), chip.FlashSize)
	assert.Equal(t, uint32(1024), chip.FlashPageSize)
	assert.Equal(t, uint32(0x20000000), chip.SramBase)
}

func TestLookupChipFallsBackToGeneric(t *testing.T) {
	assert.Equal(t, 0, lookupChip(0xDEADBEEF))
	assert.Equal(t, "STM32", chipDescriptors[0].Name)
}

func TestChipFamilies(t *testing.T) {
	cases := []struct {
		idCode uint32
		family ChipFamily
	}{
		{0x10016420, FamilyF1}, // F100
		{0x20036410, FamilyF1}, // F103C8T6
		{0x10186416, FamilyL1}, // L152
		{0x20006411, FamilyF4}, // F407
		{0x10006420, FamilyF4}, // F4xx
	}

	for _, c := range cases {
		chip := chipDescriptors[lookupChip(c.idCode)]
		assert.Equalf(t, c.family, chip.Family, "idcode %08x", c.idCode)
	}
}

func TestDescriptorTableInvariants(t *testing.T) {
	for _, chip := range chipDescriptors {
		assert.NotEmptyf(t, chip.Name, "idcode %08x", chip.IdCode)
		assert.Equalf(t, uint32(0x08000000), chip.FlashBase, "%s", chip.Name)
		assert.NotZerof(t, chip.FlashSize, "%s", chip.Name)
		assert.NotZerof(t, chip.FlashPageSize, "%s", chip.Name)
		assert.Equalf(t, uint32(0x20000000), chip.SramBase, "%s", chip.Name)
	}
}

func TestLookupArmCore(t *testing.T) {
	name, known := lookupArmCore(0x1BA01477)
	assert.True(t, known)
	assert.Equal(t, "Cortex-M3 r1", name)

	name, known = lookupArmCore(0x0BB11477)
	assert.True(t, known)
	assert.Equal(t, "Cortex-M0", name)

	_, known = lookupArmCore(0x12345678)
	assert.False(t, known)
}
