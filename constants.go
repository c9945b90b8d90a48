// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import "github.com/google/gousb"

// USB identity of the dongle. Only the v2 bulk-endpoint protocol is
// implemented; v1 devices hide behind USB mass storage and are rejected.
const (
	stVendorId  gousb.ID = 0x0483
	stLinkV1Pid gousb.ID = 0x3744
	stLinkV2Pid gousb.ID = 0x3748
)

// Configuration #1 is the sole configuration; endpoint 0x83 exists but
// is never used.
const (
	usbConfiguration = 1
	usbPipeIn        = 0x81 // bulk IN, responses
	usbPipeOut       = 0x02 // bulk OUT, commands and payload
	usbPipeUnused    = 0x83
	usbTimeoutMs     = 800
)

// The largest data transfer the dongle handles is about 6KB, limited by
// the RAM on its own STM32F103. Memory reads use 1KB blocks and flash
// writes 2KB chunks, staying well clear of the firmware's limits.
const (
	cmdBufferSize  = 16
	dataBufferSize = 6*1024 + 4

	readBlockSize   = 1024
	flashWriteChunk = 2048
	verifyChunkSize = 128 * 1024
)

// Top level command bytes. 0xF1/0xF3/0xF5 operate on the dongle itself,
// 0xF2 talks to the target. 0xF4/0xF6 are the STM8 and Cortex-M4 command
// sets, present only for completeness.
const (
	cmdGetVersion       = 0xF1
	cmdDebug            = 0xF2
	cmdDfu              = 0xF3
	cmdSwim             = 0xF4
	cmdGetCurrentMode   = 0xF5
	cmdV3               = 0xF6
	cmdGetTargetVoltage = 0xF7

	dfuExit = 0x07
)

// Sub-opcodes following cmdDebug.
const (
	debugEnterMode  = 0x20
	debugExit       = 0x21
	debugReadCoreId = 0x22

	debugEnterSwd  = 0xA3
	debugEnterJTag = 0x00

	debugGetStatus     = 0x01
	debugForceDebug    = 0x02
	debugResetSys      = 0x03
	debugReadAllRegs   = 0x04
	debugReadOneReg    = 0x05
	debugWriteReg      = 0x06
	debugReadMem32     = 0x07
	debugWriteMem32    = 0x08
	debugRunCore       = 0x09
	debugStepCore      = 0x0A
	debugSetFp         = 0x0B
	debugWriteMem8     = 0x0D
	debugClearFp       = 0x0E
	debugWriteDebugReg = 0x0F

	debugApiV2Enter           = 0x30
	debugApiV2ReadIdCodes     = 0x31
	debugApiV2GetLastRWStatus = 0x3B
	debugApiV2DriveNrst       = 0x3C
)

// Dongle operating modes as reported by cmdGetCurrentMode.
const (
	deviceModeDFU        = 0x00
	deviceModeMass       = 0x01
	deviceModeDebug      = 0x02
	deviceModeSwim       = 0x03
	deviceModeBootloader = 0x04
)

// Two-byte status responses, low byte significant.
const (
	debugStatusOk    = 0x80
	debugStatusFault = 0x81

	swdAccessPortWait = 0x10
	swdDebugPortWait  = 0x14
)

// CoreState mirrors the target core status as last observed.
type CoreState int

const (
	CoreStateUnknown CoreState = iota
	CoreStateRunning
	CoreStateHalted
)

func (s CoreState) String() string {
	switch s {
	case CoreStateRunning:
		return "running"
	case CoreStateHalted:
		return "halted"
	default:
		return "unknown"
	}
}

const (
	maximumWaitRetries = 8

	// Kicking the dongle out of DFU mode forces a USB re-enumeration;
	// give it up to ten reopen attempts a second apart.
	modeKickRetries = 10

	// Writing a 2KB chunk takes 40-70ms; a status poll takes one USB
	// frame, so 200 polls is a wide margin before declaring the loader
	// hung.
	loaderPollLimit = 200

	// Flash page erase typically completes within two status reads.
	erasePollLimit = 1000

	maxWriteMem8 = 64
)

// DBGMCU_IDCODE locations. Cortex-M0 parts do not decode the debug
// address and return zero there; the ID lives at the system address
// instead.
const (
	dbgMcuIdCodeAddr   = 0xE0042000
	dbgMcuIdCodeM0Addr = 0x40015800

	cpuIdBaseRegister = 0xE000ED00
)

// MassEraseAddress is the reserved page address meaning "erase all user
// flash" rather than the page containing it.
const MassEraseAddress = 0xA11

// FPEC flash controller interface, PM0063/PM0075.
const (
	flashRegsBase = 0x40022000

	flashKEYR = flashRegsBase + 0x04
	flashSR   = flashRegsBase + 0x0C
	flashCR   = flashRegsBase + 0x10
	flashAR   = flashRegsBase + 0x14
	flashOBR  = flashRegsBase + 0x1C

	// Second FPEC bank on XL-density parts, at +0x40.
	flashRegsBank2 = flashRegsBase + 0x40

	flashKey1 = 0x45670123
	flashKey2 = 0xCDEF89AB

	flashSrBsy      = 0x0001
	flashSrPgErr    = 0x0004
	flashSrWrPrtErr = 0x0010
	flashSrEop      = 0x0020

	flashCrPg   = 0x0001
	flashCrPer  = 0x0002
	flashCrMer  = 0x0004
	flashCrStrt = 0x0040
	flashCrLock = 0x0080
)

// STM32F4 flash controller, PM0081.
const (
	f4FlashRegsBase = 0x40023C00

	f4FlashKEYR = f4FlashRegsBase + 0x04
	f4FlashSR   = f4FlashRegsBase + 0x0C
	f4FlashCR   = f4FlashRegsBase + 0x10

	f4FlashSrBsy  = 0x00010000
	f4FlashCrStrt = 0x00010000
)

// STM32L15x flash controller with its two-stage unlock.
const (
	l1FlashRegsBase = 0x40023C00

	l1FlashPEKEYR  = l1FlashRegsBase + 0x0C
	l1FlashPRGKEYR = l1FlashRegsBase + 0x10
	l1FlashSR      = l1FlashRegsBase + 0x18
	l1FlashOBR     = l1FlashRegsBase + 0x1C

	l1FlashPeKey1  = 0x89ABCDEF
	l1FlashPeKey2  = 0x02030405
	l1FlashPrgKey1 = 0x8C9DAEBF
	l1FlashPrgKey2 = 0x13141516
)

// Dongle feature flag indices, derived from the JTAG firmware revision.
const (
	flagHasTargetVolt = iota
	flagHasGetLastRwStatus2
	flagHasSwdSetFreq
	flagHasMem16Bit
)
