// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"time"

	"github.com/juju/errors"
)

// DeviceMode is the dongle operating mode as reported by the get-mode
// command.
type DeviceMode int

const (
	DeviceModeUnknown    DeviceMode = -1
	DeviceModeDFU        DeviceMode = deviceModeDFU
	DeviceModeMass       DeviceMode = deviceModeMass
	DeviceModeDebug      DeviceMode = deviceModeDebug
	DeviceModeSwim       DeviceMode = deviceModeSwim
	DeviceModeBootloader DeviceMode = deviceModeBootloader
)

func (m DeviceMode) String() string {
	switch m {
	case DeviceModeDFU:
		return "dfu"
	case DeviceModeMass:
		return "mass storage"
	case DeviceModeDebug:
		return "debug"
	case DeviceModeSwim:
		return "swim"
	case DeviceModeBootloader:
		return "bootloader"
	default:
		return "unknown"
	}
}

// GetCurrentMode queries the dongle mode, a 16 bit response of which
// the low byte is significant.
func (h *StLink) GetCurrentMode() (DeviceMode, error) {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdGetCurrentMode)

	err := h.usbTransferNoErrCheck(ctx, 2)

	if err != nil {
		return DeviceModeUnknown, err
	}

	mode := DeviceMode(ctx.DataBytes()[0])

	switch mode {
	case DeviceModeDFU, DeviceModeMass, DeviceModeDebug, DeviceModeSwim, DeviceModeBootloader:
		return mode, nil
	default:
		return DeviceModeUnknown, nil
	}
}

// EnterSwdMode switches the target interface to SWD. The enter-mode
// command returns no status.
func (h *StLink) EnterSwdMode() error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugEnterMode)
	ctx.cmdBuffer.WriteByte(debugEnterSwd)

	return h.usbTransferNoErrCheck(ctx, 0)
}

// ExitDebugMode leaves SWD/JTAG debug mode.
func (h *StLink) ExitDebugMode() error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugExit)

	return h.usbTransferNoErrCheck(ctx, 0)
}

// exitDfuMode kicks the dongle out of its firmware-update mode. On
// success the device resets and re-enumerates on the bus.
func (h *StLink) exitDfuMode() error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDfu)
	ctx.cmdBuffer.WriteByte(dfuExit)

	return h.usbTransferNoErrCheck(ctx, 0)
}

/*
 * Kick the ST-Link until it is in a workable mode.
 * The only known unexpected mode is DFU mode, which requires a reset
 * and re-plug process to exit. The exit forces a USB disconnect lasting
 * several seconds, so the transport is reopened with back-off until the
 * dongle answers status queries again.
 */
func (h *StLink) KickMode() error {
	mode, err := h.GetCurrentMode()

	if err != nil {
		return errors.Annotate(err, "mode query failed")
	}

	logger.Tracef("device usb mode before kicking: %s (0x%02x)", mode, int(mode))

	if mode == DeviceModeDebug || mode == DeviceModeMass {
		return nil
	}

	logger.Info("attempting to switch the ST-Link to a known mode...")

	if err := h.exitDfuMode(); err != nil {
		logger.Debug("dfu exit reported: ", err)
	}

	h.usbDetach()

	logger.Infof("waiting to reopen the ST-Link device at '%s' ...", h.devLabel)

	for i := 0; i < modeKickRetries; i++ {
		time.Sleep(1 * time.Second)

		if err := h.usbAttach(); err != nil {
			logger.Debugf("reopen %d failed: %v", i+1, err)
			continue
		}

		// Give the dongle a few rounds to start working.
		if err := h.EnterSwdMode(); err != nil {
			logger.Debugf("enter SWD after reopen failed: %v", err)
			h.usbDetach()
			continue
		}

		state, err := h.GetStatus()

		if err == nil && (state == CoreStateRunning || state == CoreStateHalted) {
			logger.Debugf("ARM status after kick is %s", state)
			return nil
		}

		h.usbDetach()
	}

	return newDriverError(ErrTransport, "could not kick ST-Link out of mode %s after %d attempts",
		mode, modeKickRetries)
}

// EnterDebug kicks the dongle into a usable mode, enters SWD and
// verifies the resulting mode. A dongle that refuses to report debug
// mode is only worth a warning; the commands usually work anyway.
func (h *StLink) EnterDebug() error {
	if err := h.KickMode(); err != nil {
		return errors.Trace(err)
	}

	if err := h.EnterSwdMode(); err != nil {
		return errors.Annotate(err, "could not enter SWD mode")
	}

	mode, err := h.GetCurrentMode()

	if err != nil {
		return errors.Trace(err)
	}

	if mode != DeviceModeDebug {
		logger.Warn("failed to switch the ST-Link into debug mode")
	}

	return nil
}
