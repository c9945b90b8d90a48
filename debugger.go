// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

// statusCmd issues one of the two byte status-returning debug commands
// and returns the decoded status word.
func (h *StLink) statusCmd(subOp byte) (uint16, error) {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(subOp)

	err := h.usbTransferNoErrCheck(ctx, 2)

	if err != nil {
		return 0, err
	}

	return cmdStatus(ctx), nil
}

// GetStatus refreshes and returns the target core state.
func (h *StLink) GetStatus() (CoreState, error) {
	status, err := h.statusCmd(debugGetStatus)

	if err != nil {
		h.coreState = CoreStateUnknown
		return CoreStateUnknown, err
	}

	switch status & 0xFF {
	case debugStatusOk: // core running
		h.coreState = CoreStateRunning
	case debugStatusFault: // core halted
		h.coreState = CoreStateHalted
	default:
		h.coreState = CoreStateUnknown
	}

	return h.coreState, nil
}

// CoreState returns the last observed core state without issuing a
// command.
func (h *StLink) CoreState() CoreState {
	return h.coreState
}

// ForceDebug halts the core and puts it under debugger control.
func (h *StLink) ForceDebug() error {
	_, err := h.statusCmd(debugForceDebug)
	if err == nil {
		h.coreState = CoreStateHalted
	}
	return err
}

// Reset issues a system reset of the target.
func (h *StLink) Reset() error {
	_, err := h.statusCmd(debugResetSys)
	return err
}

// Run resumes the target core.
func (h *StLink) Run() error {
	_, err := h.statusCmd(debugRunCore)
	if err == nil {
		h.coreState = CoreStateRunning
	}
	return err
}

// Step executes a single instruction on the halted core.
func (h *StLink) Step() error {
	_, err := h.statusCmd(debugStepCore)
	return err
}

// GetCoreId reads the SWD core identification register. The protocol
// expects this as the first debug command after entering SWD.
func (h *StLink) GetCoreId() (uint32, error) {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugReadCoreId)

	err := h.usbTransferNoErrCheck(ctx, 4)

	if err != nil {
		return 0, err
	}

	return ctx.dataBuffer.ReadUint32LE(), nil
}
