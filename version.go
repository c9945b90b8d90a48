// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/google/gousb"
)

// usbGetVersion reads and unpacks the 6 byte version descriptor.
func (h *StLink) usbGetVersion() error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdGetVersion)

	err := h.usbTransferNoErrCheck(ctx, 6)

	if err != nil {
		return err
	}

	h.version = parseVersion(ctx.DataBytes())

	serialNo, _ := h.libUsbDevice.SerialNumber()
	logger.Debugf("parsed st-link version [%s] for [%s]", h.version.String(), serialNo)

	return nil
}

func parseVersion(raw []byte) StLinkVersion {
	version := StLinkVersion{}

	// The version halfword is the one big-endian field on the wire.
	packed := convertToUint16(raw, bigEndian)

	version.stlink = int((packed >> 12) & 0x0F)
	version.jtag = int((packed >> 6) & 0x3F)
	version.swim = int(packed & 0x3F)

	version.vid = gousb.ID(convertToUint16(raw[2:], littleEndian))
	version.pid = gousb.ID(convertToUint16(raw[4:], littleEndian))

	version.flags = versionFlags(version.stlink, version.jtag)

	return version
}

// versionFlags derives the dongle feature set from the JTAG firmware
// revision, v2 only.
func versionFlags(stlink int, jtag int) bitmap.Bitmap {
	flags := bitmap.New(8)

	if stlink != 2 {
		return flags
	}

	/* API for trace and for target voltage from J13 */
	if jtag >= 13 {
		flags.Set(flagHasTargetVolt, true)
	}

	/* preferred API to get last R/W status from J15 */
	if jtag >= 15 {
		flags.Set(flagHasGetLastRwStatus2, true)
	}

	/* API to set SWD frequency from J22 */
	if jtag >= 22 {
		flags.Set(flagHasSwdSetFreq, true)
	}

	/* API to read/write memory at 16 bit from J26 */
	if jtag >= 26 {
		flags.Set(flagHasMem16Bit, true)
	}

	return flags
}

func (v StLinkVersion) String() string {
	str := fmt.Sprintf("V%dJ%d", v.stlink, v.jtag)

	if v.swim > 0 {
		str += fmt.Sprintf("S%d", v.swim)
	}

	return str
}

// Describe returns the multi-line identity report of the dongle.
func (v StLinkVersion) Describe() string {
	var vendor string

	if v.vid == stVendorId && (v.pid == stLinkV1Pid || v.pid == stLinkV2Pid) {
		vendor = "STMicro"
	} else {
		vendor = "NOT STMicro!"
	}

	jtagSupport := "supports"
	if v.jtag == 0 {
		jtagSupport = "does not support"
	}

	swimSupport := "supports"
	if v.swim == 0 {
		swimSupport = "does not support"
	}

	return fmt.Sprintf(
		"ST-Link Vendor/Product ID 0x%04x 0x%04x (%s)\n"+
			" Versions  STLink: 0x%x  JTAG: 0x%x  SWIM: 0x%x\n"+
			"    The firmware %s a JTAG/SWD interface.\n"+
			"    The firmware %s a SWIM interface.",
		uint16(v.vid), uint16(v.pid), vendor,
		v.stlink, v.jtag, v.swim,
		jtagSupport, swimSupport)
}

// GetTargetVoltage samples the target Vdd as seen by the dongle.
func (h *StLink) GetTargetVoltage() (float32, error) {
	if !h.version.flags.Get(flagHasTargetVolt) {
		return -1.0, newDriverError(ErrProtocol, "device does not support voltage measurement")
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdGetTargetVoltage)

	err := h.usbTransferNoErrCheck(ctx, 8)

	if err != nil {
		return -1.0, err
	}

	adcRef := leToUint32(ctx.DataBytes())
	adcVdd := leToUint32(ctx.DataBytes()[4:])

	var targetVoltage float32 = 0.0

	if adcRef > 0 {
		targetVoltage = 2 * (float32(adcVdd) * (1.2 / float32(adcRef)))
	}

	return targetVoltage, nil
}
