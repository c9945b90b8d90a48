// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"fmt"
	"strings"
)

// TargetRegisters is the ARM core register file in its transfer order:
// r0..r15 (r15 is the PC), xPSR, the two stack pointers and the two
// debug scratch words, one 84 byte blob on the wire.
type TargetRegisters struct {
	R         [16]uint32
	XPSR      uint32
	MainSP    uint32
	ProcessSP uint32
	RW        uint32
	RW2       uint32
}

const armRegisterCount = 21

// GetRegisters reads the complete register file. The core must be
// halted.
func (h *StLink) GetRegisters() (*TargetRegisters, error) {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugReadAllRegs)

	err := h.usbTransferNoErrCheck(ctx, armRegisterCount*4)

	if err != nil {
		return nil, err
	}

	return parseRegisters(ctx.DataBytes()), nil
}

func parseRegisters(raw []byte) *TargetRegisters {
	regs := &TargetRegisters{}

	for i := range regs.R {
		regs.R[i] = leToUint32(raw[i*4:])
	}

	regs.XPSR = leToUint32(raw[16*4:])
	regs.MainSP = leToUint32(raw[17*4:])
	regs.ProcessSP = leToUint32(raw[18*4:])
	regs.RW = leToUint32(raw[19*4:])
	regs.RW2 = leToUint32(raw[20*4:])

	return regs
}

// GetRegister reads a single core register by its transfer index.
func (h *StLink) GetRegister(index uint8) (uint32, error) {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugReadOneReg)
	ctx.cmdBuffer.WriteByte(index)

	err := h.usbTransferNoErrCheck(ctx, 4)

	if err != nil {
		return 0, err
	}

	return ctx.dataBuffer.ReadUint32LE(), nil
}

// SetRegister writes a single core register. The value sits little
// endian in command bytes 3..6; the response is a two byte status.
func (h *StLink) SetRegister(index uint8, value uint32) error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugWriteReg)
	ctx.cmdBuffer.WriteByte(index)
	ctx.cmdBuffer.WriteUint32LE(value)

	return h.usbCmdAllowRetry(ctx, 2)
}

func (regs *TargetRegisters) String() string {
	var b strings.Builder

	for i := 0; i < 16; i++ {
		sep := " "
		if i%4 == 3 {
			sep = "\n"
		}
		fmt.Fprintf(&b, "r%02d=0x%08x%s", i, regs.R[i], sep)
	}

	fmt.Fprintf(&b,
		"xPSR       = 0x%08x\n"+
			"main_sp    = 0x%08x  process_sp = 0x%08x\n"+
			"rw         = 0x%08x  rw2        = 0x%08x",
		regs.XPSR, regs.MainSP, regs.ProcessSP, regs.RW, regs.RW2)

	return b.String()
}
