// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"time"
)

type transferDirection uint8

const (
	transferIncoming transferDirection = 0 // device to host on pipe 0x81
	transferOutgoing transferDirection = 1 // host to device on pipe 0x02
)

// transferCtx frames one command exchange. The command buffer holds at
// most 16 bytes; the dongle ignores trailing bytes of the command
// frame, so short command writes are logged rather than failed.
type transferCtx struct {
	direction  transferDirection
	cmdBuffer  *Buffer
	dataBuffer *Buffer
}

func (ctx *transferCtx) DataBytes() []byte {
	return ctx.dataBuffer.Bytes()
}

func (h *StLink) initTransfer(direction transferDirection) *transferCtx {
	ctx := &transferCtx{
		direction:  direction,
		cmdBuffer:  NewBuffer(cmdBufferSize),
		dataBuffer: NewBuffer(dataBufferSize),
	}

	return ctx
}

// usbTransferNoErrCheck runs the command phase and, depending on the
// direction, the data phase of size bytes. For incoming transfers the
// response lands in ctx.dataBuffer; for outgoing ones ctx.dataBuffer
// supplies the payload.
func (h *StLink) usbTransferNoErrCheck(ctx *transferCtx, size uint32) error {
	cmdBytes := ctx.cmdBuffer.Bytes()

	if len(cmdBytes) > cmdBufferSize {
		return newDriverError(ErrProtocol, "command frame of %d bytes exceeds %d",
			len(cmdBytes), cmdBufferSize)
	}

	bytesWritten, err := usbWrite(h.txEndpoint, cmdBytes)

	if err != nil {
		return newDriverError(ErrTransport, "command phase failed: %v", err)
	}

	if bytesWritten != len(cmdBytes) {
		logger.Debugf("mismatched USB transfer for command, tried %d vs %d sent",
			len(cmdBytes), bytesWritten)
	}

	if ctx.direction == transferOutgoing && size > 0 {
		payload := ctx.dataBuffer.Bytes()[:size]

		bytesWritten, err = usbWrite(h.txEndpoint, payload)

		if err != nil {
			return newDriverError(ErrTransport, "data phase write failed: %v", err)
		}

		if bytesWritten != int(size) {
			return newDriverError(ErrTransport, "short data write, %d of %d bytes",
				bytesWritten, size)
		}
	} else if ctx.direction == transferIncoming && size > 0 {
		buffer := h.dataBuffer[:size]

		bytesRead, err := usbRead(h.rxEndpoint, buffer)

		if err != nil {
			return newDriverError(ErrTransport, "data phase read failed: %v", err)
		}

		if bytesRead != int(size) {
			return newDriverError(ErrTransport, "short data read, %d of %d bytes",
				bytesRead, size)
		}

		ctx.dataBuffer.Reset()
		ctx.dataBuffer.Write(buffer)
	}

	return nil
}

func (h *StLink) usbTransferErrCheck(ctx *transferCtx, size uint32) error {
	err := h.usbTransferNoErrCheck(ctx, size)

	if err != nil {
		return err
	}

	return h.usbErrorCheck(ctx)
}

// usbCmdAllowRetry issues an STLINK command via USB transfer, with
// retries on any wait status responses. Works for commands where the
// status is returned in the first byte of the response packet.
func (h *StLink) usbCmdAllowRetry(ctx *transferCtx, size uint32) error {
	var retries int = 0

	for {
		err := h.usbTransferNoErrCheck(ctx, size)
		if err != nil {
			return err
		}

		err = h.usbErrorCheck(ctx)

		if err != nil && ErrorIsKind(err, ErrProtocolWait) && retries < maximumWaitRetries {
			delay := time.Duration(1<<retries) * time.Millisecond

			retries++
			logger.Debugf("cmdAllowRetry wait status, retry %d, delaying %v", retries, delay)
			time.Sleep(delay)

			continue
		}

		return err
	}
}

// cmdStatus interprets a two byte status response; only the low byte
// carries information.
func cmdStatus(ctx *transferCtx) uint16 {
	return ctx.dataBuffer.ReadUint16LE()
}
