// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/gousb"
)

var usbCtx *gousb.Context = nil

// InitializeUSB sets up the libusb context. Call once before opening a
// dongle; CloseUSB releases it.
func InitializeUSB() error {
	if usbCtx == nil {
		usbCtx = gousb.NewContext()
		usbCtx.Debug(2)

		log.Debug("initialized libusb context")
		return nil
	}

	log.Warn("USB already initialized")
	return nil
}

func CloseUSB() {
	if usbCtx != nil {
		usbCtx.Close()
		usbCtx = nil
	} else {
		log.Warn("could not close uninitialized usb context")
	}
}

func usbFindDevices(vid gousb.ID, pid gousb.ID) ([]*gousb.Device, error) {
	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == vid && desc.Product == pid {
			log.Infof("found USB device [%04x:%04x] on bus %03d:%03d",
				uint16(desc.Vendor), uint16(desc.Product), desc.Bus, desc.Address)
			return true
		}

		return false
	})

	if err != nil {
		log.Error("got error during usb device scan ", err)
		return nil, err
	}

	log.Debugf("found %d devices matching [%04x:%04x]", len(devices), uint16(vid), uint16(pid))
	return devices, nil
}

// A command should complete in well under one second; most take a few
// milliseconds, complex ones about 250ms.
func usbWrite(endpoint *gousb.OutEndpoint, buffer []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), usbTimeoutMs*time.Millisecond)
	defer cancel()

	bytesWritten, err := endpoint.WriteContext(ctx, buffer)

	if err != nil {
		return -1, err
	}

	log.Tracef("wrote %d bytes to endpoint %v", bytesWritten, endpoint)
	return bytesWritten, nil
}

func usbRead(endpoint *gousb.InEndpoint, buffer []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), usbTimeoutMs*time.Millisecond)
	defer cancel()

	bytesRead, err := endpoint.ReadContext(ctx, buffer)

	if err != nil {
		return -1, err
	}

	log.Tracef("read %d bytes from endpoint %v", bytesRead, endpoint)
	return bytesRead, nil
}
