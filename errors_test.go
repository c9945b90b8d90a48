// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsKind(t *testing.T) {
	err := newDriverError(ErrFlashWrite, "trying to write a location that was not erased (%02x)", 0x04)

	assert.True(t, ErrorIsKind(err, ErrFlashWrite))
	assert.False(t, ErrorIsKind(err, ErrTransport))
	assert.False(t, ErrorIsKind(nil, ErrFlashWrite))

	assert.Equal(t, "trying to write a location that was not erased (04)", err.Error())
}

func TestUsbErrorCheckStatusCodes(t *testing.T) {
	h := &StLink{}

	cases := []struct {
		status byte
		kind   ErrorKind // 0 means no error
	}{
		{debugStatusOk, 0},
		{debugStatusFault, ErrProtocol},
		{swdAccessPortWait, ErrProtocolWait},
		{swdDebugPortWait, ErrProtocolWait},
		{0x12, ErrProtocol},
	}

	for _, c := range cases {
		ctx := h.initTransfer(transferIncoming)
		ctx.dataBuffer.Write([]byte{c.status, 0x00})

		err := h.usbErrorCheck(ctx)

		if c.kind == 0 {
			assert.NoErrorf(t, err, "status %#02x", c.status)
		} else {
			assert.Truef(t, ErrorIsKind(err, c.kind), "status %#02x: %v", c.status, err)
		}
	}
}
