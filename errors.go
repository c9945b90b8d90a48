// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"fmt"
)

// ErrorKind classifies a driver failure. Transport errors are retried at
// the mode kicking layer only and wait errors by usbCmdAllowRetry;
// everything else is terminal for the command that raised it.
type ErrorKind int

const (
	ErrTransport ErrorKind = iota + 1
	ErrProtocol
	ErrProtocolWait
	ErrDeviceMismatch
	ErrChipUnknown
	ErrFlashEraseTimeout
	ErrFlashWrite
	ErrLoaderHang
	ErrVerifyMismatch
)

type DriverError struct {
	Kind ErrorKind
	text string
}

func (e *DriverError) Error() string {
	return e.text
}

func newDriverError(kind ErrorKind, format string, args ...interface{}) error {
	return &DriverError{kind, fmt.Sprintf(format, args...)}
}

// ErrorIsKind reports whether err is a DriverError of the given kind,
// looking through juju annotation wrappers.
func ErrorIsKind(err error, kind ErrorKind) bool {
	for err != nil {
		if drvErr, ok := err.(*DriverError); ok {
			return drvErr.Kind == kind
		}

		cause, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = cause.Unwrap()
	}

	return false
}

// usbErrorCheck converts an STLINK status byte held in the first byte
// of a response to a driver error. Only the v2 SWD status set is
// decoded; wait states map to ErrProtocolWait so that usbCmdAllowRetry
// can back off and reissue.
func (h *StLink) usbErrorCheck(ctx *transferCtx) error {
	status := ctx.dataBuffer.Bytes()[0]

	switch status {
	case debugStatusOk:
		return nil

	case debugStatusFault:
		return newDriverError(ErrProtocol, "command status FALSE (0x%02x)", status)

	case swdAccessPortWait, swdDebugPortWait:
		return newDriverError(ErrProtocolWait, "SWD wait status (0x%02x)", status)

	default:
		return newDriverError(ErrProtocol, "unexpected STLINK status code 0x%02x", status)
	}
}
