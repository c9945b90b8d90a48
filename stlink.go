// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"github.com/boljen/go-bitmap"
	"github.com/google/gousb"
	"github.com/juju/errors"
)

// StLinkVersion is the unpacked 6 byte version descriptor reported by
// the dongle: a big-endian halfword of firmware revisions followed by
// the vendor and product ids in little-endian.
type StLinkVersion struct {
	stlink int
	jtag   int
	swim   int

	vid gousb.ID
	pid gousb.ID

	flags bitmap.Bitmap
}

// StLink is one attached dongle plus everything we know about the
// target behind it. It exclusively owns the USB handle and the two
// scratch buffers; commands on it are strictly sequential, there are no
// concurrent mutators.
type StLink struct {
	libUsbDevice *gousb.Device
	usbConfig    *gousb.Config
	usbInterface *gousb.Interface
	rxEndpoint   *gousb.InEndpoint
	txEndpoint   *gousb.OutEndpoint

	devLabel string

	version   StLinkVersion
	coreState CoreState

	chipIndex   int
	cpuIdCode   uint32
	flashSizeKb uint32

	cmdBuffer  []byte
	dataBuffer []byte
}

// Open scans the USB bus for an ST-Link v2, attaches to it and verifies
// its identity. The device is reset, configuration #1 selected and
// interface 0 claimed; the caller must Close the returned handle on all
// paths.
func Open() (*StLink, error) {
	handle := &StLink{
		devLabel:   "USB ST-Link",
		coreState:  CoreStateUnknown,
		chipIndex:  0,
		cmdBuffer:  make([]byte, cmdBufferSize),
		dataBuffer: make([]byte, dataBufferSize),
	}

	if err := handle.usbAttach(); err != nil {
		return nil, err
	}

	if err := handle.usbGetVersion(); err != nil {
		handle.Close()
		return nil, err
	}

	if err := handle.version.check(); err != nil {
		handle.Close()
		return nil, err
	}

	return handle, nil
}

// usbAttach opens the bulk pipes. It is also used by the mode kicker to
// reattach after the dongle re-enumerated on a DFU exit.
func (h *StLink) usbAttach() error {
	devices, err := usbFindDevices(stVendorId, stLinkV2Pid)

	if err != nil {
		return newDriverError(ErrTransport, "usb scan failed: %v", err)
	}

	if len(devices) == 0 {
		return newDriverError(ErrDeviceMismatch, "no ST-Link v2 [%04x:%04x] found",
			uint16(stVendorId), uint16(stLinkV2Pid))
	}

	if len(devices) > 1 {
		logger.Warnf("%d ST-Links connected, using the first", len(devices))
		for _, dev := range devices[1:] {
			dev.Close()
		}
	}

	h.libUsbDevice = devices[0]

	if err := h.libUsbDevice.Reset(); err != nil {
		logger.Debug("device reset failed, continuing: ", err)
	}

	h.usbConfig, err = h.libUsbDevice.Config(usbConfiguration)
	if err != nil {
		h.Close()
		return errors.Annotate(err, "could not select configuration #1")
	}

	h.usbInterface, err = h.usbConfig.Interface(0, 0)
	if err != nil {
		h.Close()
		return errors.Annotate(err, "could not claim interface 0")
	}

	h.rxEndpoint, err = h.usbInterface.InEndpoint(usbPipeIn & 0x7F)
	if err != nil {
		h.Close()
		return errors.Annotatef(err, "could not open IN endpoint %#02x", usbPipeIn)
	}

	h.txEndpoint, err = h.usbInterface.OutEndpoint(usbPipeOut)
	if err != nil {
		h.Close()
		return errors.Annotatef(err, "could not open OUT endpoint %#02x", usbPipeOut)
	}

	return nil
}

// usbDetach releases the pipes but keeps the handle state, so that
// usbAttach can bring the same session back after a re-enumeration.
func (h *StLink) usbDetach() {
	if h.usbInterface != nil {
		h.usbInterface.Close()
		h.usbInterface = nil
	}
	if h.usbConfig != nil {
		h.usbConfig.Close()
		h.usbConfig = nil
	}
	if h.libUsbDevice != nil {
		h.libUsbDevice.Close()
		h.libUsbDevice = nil
	}
	h.rxEndpoint = nil
	h.txEndpoint = nil
}

// Close releases all USB resources. Safe to call on a partially
// constructed handle.
func (h *StLink) Close() {
	if h.libUsbDevice != nil {
		logger.Debugf("close ST-Link device [%04x:%04x]",
			uint16(h.version.vid), uint16(h.version.pid))
	}

	h.usbDetach()
}

// Label returns the human readable device path label.
func (h *StLink) Label() string {
	return h.devLabel
}

// Version returns the parsed dongle version descriptor.
func (h *StLink) Version() StLinkVersion {
	return h.version
}

// ChipIndex returns the index of the identified chip descriptor, 0 for
// the generic fallback.
func (h *StLink) ChipIndex() int {
	return h.chipIndex
}

// Chip returns the descriptor of the identified target.
func (h *StLink) Chip() *ChipDescriptor {
	return &chipDescriptors[h.chipIndex]
}

// CpuIdCode returns the cached DBGMCU_IDCODE value read during chip
// identification.
func (h *StLink) CpuIdCode() uint32 {
	return h.cpuIdCode
}

// check enforces the identity invariant: STMicro vendor id and a v1 or
// v2 product id, with the v2 wire protocol required beyond that.
func (v *StLinkVersion) check() error {
	if v.vid == 0 && v.pid == 0 {
		return newDriverError(ErrDeviceMismatch,
			"device reports an ID of 0/0; the ST-Link is either not plugged in or still initializing")
	}

	if v.vid != stVendorId || (v.pid != stLinkV1Pid && v.pid != stLinkV2Pid) {
		return newDriverError(ErrDeviceMismatch,
			"device is not an ST-Link: VID/PID %04x/%04x instead of %04x/%04x",
			uint16(v.vid), uint16(v.pid), uint16(stVendorId), uint16(stLinkV2Pid))
	}

	if v.pid == stLinkV1Pid {
		return newDriverError(ErrDeviceMismatch,
			"ST-Link v1 uses the SCSI mass-storage transport, which is not supported")
	}

	return nil
}
