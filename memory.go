// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

// usbReadMem32 reads length bytes of target memory starting at addr.
// Reads must be aligned 32 bit words; alignment is forced by masking
// the address down and rounding the length up, which the callers rely
// on. The firmware variant that requests one extra byte to dodge a
// residue bug misbehaves under some hypervisors and is not used.
func (h *StLink) usbReadMem32(addr uint32, length uint16) ([]byte, error) {
	addr &= ^uint32(3)
	length = (length + 3) & ^uint16(3)

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugReadMem32)
	ctx.cmdBuffer.WriteUint32LE(addr)
	ctx.cmdBuffer.WriteUint16LE(length)

	err := h.usbTransferNoErrCheck(ctx, uint32(length))

	if err != nil {
		return nil, err
	}

	return ctx.DataBytes(), nil
}

// usbWriteMem32 writes the payload to target memory at addr. The
// length must be a multiple of 4 and the address word aligned.
func (h *StLink) usbWriteMem32(addr uint32, payload []byte) error {
	if len(payload)%4 != 0 || addr%4 != 0 {
		return newDriverError(ErrProtocol,
			"unaligned 32 bit write of %d bytes to 0x%08x", len(payload), addr)
	}

	ctx := h.initTransfer(transferOutgoing)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugWriteMem32)
	ctx.cmdBuffer.WriteUint32LE(addr)
	ctx.cmdBuffer.WriteUint16LE(uint16(len(payload)))

	ctx.dataBuffer.Write(payload)

	return h.usbTransferNoErrCheck(ctx, uint32(len(payload)))
}

// usbWriteMem8 writes up to 64 bytes with byte granularity.
func (h *StLink) usbWriteMem8(addr uint32, payload []byte) error {
	if len(payload) > maxWriteMem8 {
		return newDriverError(ErrProtocol,
			"8 bit write of %d bytes exceeds the %d byte limit", len(payload), maxWriteMem8)
	}

	ctx := h.initTransfer(transferOutgoing)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugWriteMem8)
	ctx.cmdBuffer.WriteUint32LE(addr)
	ctx.cmdBuffer.WriteUint16LE(uint16(len(payload)))

	ctx.dataBuffer.Write(payload)

	return h.usbTransferNoErrCheck(ctx, uint32(len(payload)))
}

// WriteMem writes an arbitrary payload: whole words go through the 32
// bit command, anything else through the byte-granular command with
// its 64 byte ceiling.
func (h *StLink) WriteMem(addr uint32, payload []byte) error {
	if len(payload)%4 == 0 && addr%4 == 0 {
		return h.usbWriteMem32(addr, payload)
	}

	return h.usbWriteMem8(addr, payload)
}

// ReadWord reads a single 32 bit word.
func (h *StLink) ReadWord(addr uint32) (uint32, error) {
	data, err := h.usbReadMem32(addr, 4)

	if err != nil {
		return 0, err
	}

	return leToUint32(data), nil
}

// WriteWord writes a single 32 bit word.
func (h *StLink) WriteWord(addr uint32, value uint32) error {
	var word [4]byte

	uint32ToLittleEndian(word[:], value)

	return h.usbWriteMem32(addr, word[:])
}

// ReadMem reads size bytes starting at an arbitrary address. An
// unaligned start is served by one aligned word read whose trailing
// bytes become the output prefix; the remainder is transferred in 1KB
// blocks with the final block rounded up to whole words and truncated
// on copy-out.
func (h *StLink) ReadMem(addr uint32, size uint32) ([]byte, error) {
	out := make([]byte, size)

	var offset uint32 = 0

	if addr&3 != 0 {
		data, err := h.usbReadMem32(addr, 4)

		if err != nil {
			return nil, err
		}

		prefix := 4 - (addr & 3)
		if prefix > size {
			prefix = size
		}

		copy(out[:prefix], data[addr&3:])
		offset = prefix
	}

	for offset < size {
		remaining := size - offset

		var xferSize uint32
		if remaining > readBlockSize {
			xferSize = readBlockSize
		} else {
			xferSize = (remaining + 3) & ^uint32(3)
		}

		data, err := h.usbReadMem32(addr+offset, uint16(xferSize))

		if err != nil {
			return nil, err
		}

		copied := xferSize
		if copied > remaining {
			copied = remaining
		}

		copy(out[offset:offset+copied], data)
		offset += copied
	}

	return out, nil
}

// readChunkSizes returns the transfer lengths ReadMem will use for a
// request, exposed for the block accounting tests.
func readChunkSizes(addr uint32, size uint32) []uint32 {
	var sizes []uint32

	var offset uint32 = 0

	if addr&3 != 0 {
		prefix := 4 - (addr & 3)
		if prefix > size {
			prefix = size
		}
		sizes = append(sizes, 4)
		offset = prefix
	}

	for offset < size {
		remaining := size - offset
		if remaining > readBlockSize {
			sizes = append(sizes, readBlockSize)
			offset += readBlockSize
		} else {
			sizes = append(sizes, (remaining+3)&^uint32(3))
			offset += remaining
		}
	}

	return sizes
}
