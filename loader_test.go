// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderBlobShape(t *testing.T) {
	for _, code := range [][]byte{f1LoaderCode, f4LoaderCode} {
		// Whole halfwords, ending in the parameter tail.
		require.Zero(t, len(code)%2)
		require.Greater(t, len(code), loaderParamsSize)

		// The last instruction before the parameters is bkpt #0, so
		// the core halts exactly when the copy loop completes.
		bkpt := code[len(code)-loaderParamsSize-2 : len(code)-loaderParamsSize]
		assert.Equal(t, []byte{0x00, 0xBE}, bkpt)
	}

	// The variants differ only in the error mask tested after each
	// halfword write.
	require.Equal(t, len(f1LoaderCode), len(f4LoaderCode))

	diff := 0
	for i := range f1LoaderCode {
		if f1LoaderCode[i] != f4LoaderCode[i] {
			diff++
		}
	}
	assert.Equal(t, 2, diff)
}

func TestBuildLoaderImageLayout(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 2048)

	image := buildLoaderImage(f1LoaderCode, flashRegsBase, 0x20000000, 0x08000000, payload)

	require.Equal(t, len(f1LoaderCode)+len(payload), len(image))

	// Stub text is copied verbatim up to the parameter tail.
	stubLen := len(f1LoaderCode)
	assert.Equal(t, f1LoaderCode[:stubLen-loaderParamsSize], image[:stubLen-loaderParamsSize])

	params := image[stubLen-loaderParamsSize : stubLen]
	assert.Equal(t, uint32(flashRegsBase), leToUint32(params[0:]))
	assert.Equal(t, uint32(0x20000000+stubLen), leToUint32(params[4:]))
	assert.Equal(t, uint32(0x08000000), leToUint32(params[8:]))
	assert.Equal(t, uint32(1024), leToUint32(params[12:]))

	assert.Equal(t, payload, image[stubLen:])
}

func TestBuildLoaderImageOddPayload(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}

	image := buildLoaderImage(f1LoaderCode, flashRegsBase, 0x20000000, 0x08001000, payload)

	// One extra halfword is programmed; its second byte pads as 0xFF
	// so it reads back as unprogrammed flash.
	stubLen := len(f1LoaderCode)
	params := image[stubLen-loaderParamsSize : stubLen]
	assert.Equal(t, uint32(2), leToUint32(params[12:]))

	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0xFF}, image[stubLen:stubLen+4])

	// The image itself is padded to whole words for the transfer.
	assert.Zero(t, len(image)%4)
}

func TestBuildLoaderImageWordPadding(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAA}, 6)

	image := buildLoaderImage(f1LoaderCode, flashRegsBase, 0x20000000, 0x08000800, payload)

	assert.Zero(t, len(image)%4)

	params := image[len(f1LoaderCode)-loaderParamsSize : len(f1LoaderCode)]
	assert.Equal(t, uint32(3), leToUint32(params[12:]))
}

func TestSelectLoader(t *testing.T) {
	f1 := &ChipDescriptor{Family: FamilyF1, FlashSize: 128 * 1024}
	code, base := selectLoader(f1, 0x08000000)
	assert.Same(t, &f1LoaderCode[0], &code[0])
	assert.Equal(t, uint32(flashRegsBase), base)

	f4 := &ChipDescriptor{Family: FamilyF4, FlashSize: 256 * 1024}
	code, base = selectLoader(f4, 0x08000000)
	assert.Same(t, &f4LoaderCode[0], &code[0])
	assert.Equal(t, uint32(f4FlashRegsBase), base)

	l1 := &ChipDescriptor{Family: FamilyL1, FlashSize: 128 * 1024}
	code, base = selectLoader(l1, 0x08000000)
	assert.Same(t, &f1LoaderCode[0], &code[0])
	assert.Equal(t, uint32(flashRegsBase), base)

	// XL-density F1 parts reach the second bank controller at +0x40.
	xl := &ChipDescriptor{Family: FamilyF1, FlashSize: 1024 * 1024}
	_, base = selectLoader(xl, 0x08080000)
	assert.Equal(t, uint32(flashRegsBank2), base)

	_, base = selectLoader(xl, 0x0807F800)
	assert.Equal(t, uint32(flashRegsBase), base)
}
