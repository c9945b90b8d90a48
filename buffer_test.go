// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferWritesLittleEndian(t *testing.T) {
	buf := NewBuffer(16)

	buf.WriteUint32LE(0x08000400)
	buf.WriteUint16LE(0x0483)

	assert.Equal(t, []byte{0x00, 0x04, 0x00, 0x08, 0x83, 0x04}, buf.Bytes())
}

func TestBufferReads(t *testing.T) {
	buf := NewBuffer(8)
	buf.Write([]byte{0x27, 0x47, 0x83, 0x04})

	assert.Equal(t, uint16(0x2747), buf.ReadUint16BE())
	assert.Equal(t, uint16(0x4727), buf.ReadUint16LE())
	assert.Equal(t, uint32(0x04834727), buf.ReadUint32LE())
}

func TestConvertEndianness(t *testing.T) {
	raw := []byte{0x20, 0x64, 0x01, 0x10}

	assert.Equal(t, uint16(0x6420), convertToUint16(raw, littleEndian))
	assert.Equal(t, uint16(0x2064), convertToUint16(raw, bigEndian))
	assert.Equal(t, uint32(0x10016420), convertToUint32(raw, littleEndian))
	assert.Equal(t, uint32(0x20640110), convertToUint32(raw, bigEndian))
}

func TestUint32RoundTrip(t *testing.T) {
	var scratch [4]byte

	for _, value := range []uint32{0, 1, 0x45670123, 0xCDEF89AB, 0xFFFFFFFF} {
		uint32ToLittleEndian(scratch[:], value)
		assert.Equal(t, value, leToUint32(scratch[:]))
	}
}
