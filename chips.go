// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

// ChipFamily selects the erase strategy and loader variant for a
// target. The flash controllers of the three families share the basic
// unlock/arm/trigger choreography but differ in registers, keys and
// busy bits.
type ChipFamily int

const (
	FamilyF1 ChipFamily = iota
	FamilyF4
	FamilyL1
)

func (f ChipFamily) String() string {
	switch f {
	case FamilyF4:
		return "F4"
	case FamilyL1:
		return "L1"
	default:
		return "F1"
	}
}

// ChipDescriptor is one row of the static device table. The table is a
// closed enumeration; adding new chips is a source edit.
type ChipDescriptor struct {
	Name   string
	Family ChipFamily

	CoreId uint32
	IdCode uint32 // DBGMCU_IDCODE

	FlashBase     uint32
	FlashSize     uint32
	FlashPageSize uint32

	SysFlashBase     uint32
	SysFlashSize     uint32
	SysFlashPageSize uint32

	SramBase uint32
	SramSize uint32
}

// chipDescriptors maps DBGMCU_IDCODE values to device parameters.
// Devices have 4k-20k SRAM and 16k-1M flash. The generic fall-back
// entry comes first and is used whenever identification fails.
var chipDescriptors = []ChipDescriptor{
	{
		Name: "STM32", Family: FamilyF1,
		CoreId: 0x1BA01477, IdCode: 0x10000400,
		FlashBase: 0x08000000, FlashSize: 128 * 1024, FlashPageSize: 1024,
		SysFlashBase: 0x1FFFEC00, SysFlashSize: 2 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 8 * 1024,
	},
	{
		Name: "STM32F051-R8T6", Family: FamilyF1, // STM32F051 on F0Discovery
		CoreId: 0x0BB11477, IdCode: 0x20006440,
		FlashBase: 0x08000000, FlashSize: 64 * 1024, FlashPageSize: 1024,
		SysFlashBase: 0x1FFFEC00, SysFlashSize: 8 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 8 * 1024,
	},
	{
		Name: "STM32F100", Family: FamilyF1, // STM32F100 on VLDiscovery
		CoreId: 0x1BA01477, IdCode: 0x10016420,
		FlashBase: 0x08000000, FlashSize: 128 * 1024, FlashPageSize: 1024,
		SysFlashBase: 0x1FFFF000, SysFlashSize: 2 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 8 * 1024,
	},
	{
		Name: "STM32F103R4T6", Family: FamilyF1, // low-density
		CoreId: 0x1BA01477, IdCode: 0x00005E7D,
		FlashBase: 0x08000000, FlashSize: 32 * 1024, FlashPageSize: 1024,
		SysFlashBase: 0x1FFFF000, SysFlashSize: 2 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 4 * 1024,
	},
	{
		Name: "STM32F103C8T6", Family: FamilyF1, // medium-density 103Cxxx
		CoreId: 0x1BA01477, IdCode: 0x20036410,
		FlashBase: 0x08000000, FlashSize: 64 * 1024, FlashPageSize: 1024,
		SysFlashBase: 0x1FFFF000, SysFlashSize: 2 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 20 * 1024,
	},
	{
		Name: "STM32F105RB", Family: FamilyF1, // XL-density
		CoreId: 0x3BA00477, IdCode: 0x10016430,
		FlashBase: 0x08000000, FlashSize: 32 * 1024, FlashPageSize: 1024,
		SysFlashBase: 0x1FFFF000, SysFlashSize: 2 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 4 * 1024,
	},
	{
		Name: "STM32F10x", Family: FamilyF1, // low-density
		CoreId: 0x1BA01477, IdCode: 0x10016412,
		FlashBase: 0x08000000, FlashSize: 32 * 1024, FlashPageSize: 1024,
		SysFlashBase: 0x1FFFF000, SysFlashSize: 2 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 4 * 1024,
	},
	{
		Name: "STM32F10x", Family: FamilyF1, // medium-density
		CoreId: 0x1BA01477, IdCode: 0x10016410,
		FlashBase: 0x08000000, FlashSize: 128 * 1024, FlashPageSize: 1024,
		SysFlashBase: 0x1FFFF000, SysFlashSize: 2 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 8 * 1024,
	},
	{
		Name: "STM32F10x", Family: FamilyF1, // high-density
		CoreId: 0x1BA01477, IdCode: 0x10016414,
		FlashBase: 0x08000000, FlashSize: 512 * 1024, FlashPageSize: 1024,
		SysFlashBase: 0x1FFFF000, SysFlashSize: 2 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 8 * 1024,
	},
	{
		Name: "STM32F10x", Family: FamilyF1, // XL-density
		CoreId: 0x1BA01477, IdCode: 0x10016430,
		FlashBase: 0x08000000, FlashSize: 1024 * 1024, FlashPageSize: 2048,
		SysFlashBase: 0x1FFFE000, SysFlashSize: 6 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 8 * 1024,
	},
	{
		Name: "STM32F107", Family: FamilyF1, // connectivity, 107RBT6
		CoreId: 0x1BA01477, IdCode: 0x10016418,
		FlashBase: 0x08000000, FlashSize: 256 * 1024, FlashPageSize: 2048,
		SysFlashBase: 0x1FFFB000, SysFlashSize: 18 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 8 * 1024,
	},
	{
		Name: "STM32L152", Family: FamilyL1, // L152RBT6 as on 32L-Discovery
		CoreId: 0x1BA01477, IdCode: 0x10186416,
		FlashBase: 0x08000000, FlashSize: 128 * 1024, FlashPageSize: 2048,
		SysFlashBase: 0x1FFFB000, SysFlashSize: 16 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 8 * 1024,
	},
	{
		Name: "STM32F303VCT6", Family: FamilyF1, // type 422 F3 (Cortex M4)
		CoreId: 0x3BA00477, IdCode: 0x10016422,
		FlashBase: 0x08000000, FlashSize: 256 * 1024, FlashPageSize: 2048,
		SysFlashBase: 0x1FFFB000, SysFlashSize: 18 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 8 * 1024,
	},
	{
		Name: "STM32F407", Family: FamilyF4,
		CoreId: 0x2BA01477, IdCode: 0x20006411,
		FlashBase: 0x08000000, FlashSize: 256 * 1024, FlashPageSize: 2048,
		SysFlashBase: 0x1FFFB000, SysFlashSize: 18 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 8 * 1024,
	},
	{
		Name: "STM32F4xx", Family: FamilyF4,
		CoreId: 0x2BA01477, IdCode: 0x10006420,
		FlashBase: 0x08000000, FlashSize: 256 * 1024, FlashPageSize: 2048,
		SysFlashBase: 0x1FFFB000, SysFlashSize: 18 * 1024, SysFlashPageSize: 1024,
		SramBase: 0x20000000, SramSize: 8 * 1024,
	},
}

// armCore maps SWD core IDs to readable names.
type armCore struct {
	Name   string
	CoreId uint32
}

var armCores = []armCore{
	{"Cortex-M0", 0x0BB11477},
	{"Cortex-M3 r1", 0x1BA01477},
	{"Cortex-M3 r2p0", 0x4BA00477},
	{"Cortex-M4 r0", 0x2BA01477},
}

func lookupArmCore(coreId uint32) (string, bool) {
	for _, core := range armCores {
		if core.CoreId == coreId {
			return core.Name, true
		}
	}

	return "Unknown core", false
}

// lookupChip finds the descriptor index for a DBGMCU_IDCODE, 0 when no
// row matches.
func lookupChip(idCode uint32) int {
	for i, chip := range chipDescriptors {
		if chip.IdCode == idCode {
			return i
		}
	}

	return 0
}

// IdentifyChip reads the SWD core ID and the MCU ID code and caches
// the matching chip descriptor on the session. An unknown ID code is
// only a warning; the generic fall-back descriptor is used then.
func (h *StLink) IdentifyChip() error {
	coreId, err := h.GetCoreId()

	if err != nil {
		return err
	}

	idCode, err := h.ReadWord(dbgMcuIdCodeAddr)

	if err != nil {
		return err
	}

	if idCode == 0 {
		// Cortex-M0 parts keep the ID code in system space.
		idCode, err = h.ReadWord(dbgMcuIdCodeM0Addr)

		if err != nil {
			return err
		}
	}

	h.cpuIdCode = idCode

	coreName, _ := lookupArmCore(coreId)

	logger.Debugf("SWD core ID %08x (%s), MCU ID %08x", coreId, coreName, idCode)

	if coreId&0x0F00FFFF != 0x0B001477 {
		logger.Warnf("SWD core ID %08x did not match the expected value of 0x-B--1477", coreId)
	}

	h.chipIndex = lookupChip(idCode)

	if h.chipIndex == 0 {
		logger.Warnf("MCU ID %08x not in the device table, using generic %s parameters",
			idCode, chipDescriptors[0].Name)
	}

	return nil
}
