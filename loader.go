// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

// The dongle cannot generate the 16 bit memory cycles needed to write
// STM32 flash, so a small Thumb program is staged into target SRAM and
// run instead. Program, parameters and payload go down in a single
// transfer; the program finishes by clearing the flash program-enable
// bit and hitting bkpt #0, halting the core.
//
// The status is reflected in the registers afterwards: a successful
// completion leaves r2 at zero, r3 holds the final FLASH_SR and r5 a
// rough busy-loop iteration count.
//
// The byte blobs below are immutable protocol assets; the trailing four
// words are placeholders that get patched before every download.

var f1LoaderCode = []byte{
	0x0B, 0x48, /* ldr   r0, .SRC_ADDR */
	0x0C, 0x49, /* ldr   r1, .TARGET_ADDR */
	0x0C, 0x4A, /* ldr   r2, .COUNT */
	0x09, 0x4C, /* ldr   r4, .FLASH_REGS_BASE */
	0x01, 0x25, /* movs  r5, #FLASH_CR_PG, then busy_count */
	0x25, 0x61, /* str   r5, [r4, #FLASH_CR_OFFSET] */
	/* copy_hword: */
	0x30, 0xF8, 0x02, 0x3B, /* ldrh  r3, [r0], #0x02 */
	0x21, 0xF8, 0x02, 0x3B, /* strh  r3, [r1], #0x02 */
	/* busy: */
	0x01, 0x35, /* adds  r5, #0x01 */
	0xE3, 0x68, /* ldr   r3, [r4, #FLASH_SR_OFFSET] */
	0x13, 0xF0, 0x01, 0x0F, /* tst   r3, #FLASH_SR_BSY */
	0xFA, 0xD1, /* bne   busy */
	0x13, 0xF0, 0x14, 0x0F, /* tst   r3, #WRPRTERR|PGERR */
	0x02, 0xD1, /* bne   exit */
	0x01, 0x3A, /* subs  r2, #0x01 */
	0xF1, 0xD1, /* bne   copy_hword */
	0x22, 0x61, /* str   r2, [r4, #FLASH_CR_OFFSET] ; r2 is 0, clears PG */
	/* exit: */
	0x00, 0xBE, /* bkpt  #0x00 */
	/* parameter tail, patched before download */
	0x00, 0x20, 0x02, 0x40, /* .FLASH_REGS_BASE: .word 0x40022000 */
	0x40, 0x00, 0x00, 0x20, /* .SRC_ADDR:        .word 0x20000040 */
	0xD0, 0x0B, 0x00, 0x08, /* .TARGET_ADDR:     .word 0x08000bd0 */
	0x06, 0x00, 0x00, 0x00, /* .COUNT:           .word 0x00000006 */
}

// The F4 flash peripheral reports errors in bits 7:4 of its status
// register, everything else matches the F1 loop.
var f4LoaderCode = []byte{
	0x0B, 0x48, /* ldr   r0, .SRC_ADDR */
	0x0C, 0x49, /* ldr   r1, .TARGET_ADDR */
	0x0C, 0x4A, /* ldr   r2, .COUNT */
	0x09, 0x4C, /* ldr   r4, .FLASH_REGS_BASE */
	0x01, 0x25, /* movs  r5, #FLASH_CR_PG, then busy_count */
	0x25, 0x61, /* str   r5, [r4, #FLASH_CR_OFFSET] */
	/* copy_hword: */
	0x30, 0xF8, 0x02, 0x3B, /* ldrh  r3, [r0], #0x02 */
	0x21, 0xF8, 0x02, 0x3B, /* strh  r3, [r1], #0x02 */
	/* busy: */
	0x01, 0x35, /* adds  r5, #0x01 */
	0xE3, 0x68, /* ldr   r3, [r4, #FLASH_SR_OFFSET] */
	0x13, 0xF0, 0x01, 0x0F, /* tst   r3, #FLASH_SR_BSY */
	0xFA, 0xD1, /* bne   busy */
	0x13, 0xF0, 0xF0, 0x0F, /* tst   r3, #PG*ERR */
	0x02, 0xD1, /* bne   exit */
	0x01, 0x3A, /* subs  r2, #0x01 */
	0xF1, 0xD1, /* bne   copy_hword */
	0x22, 0x61, /* str   r2, [r4, #FLASH_CR_OFFSET] ; r2 is 0, clears PG */
	/* exit: */
	0x00, 0xBE, /* bkpt  #0x00 */
	/* parameter tail, patched before download */
	0x00, 0x20, 0x02, 0x40, /* .FLASH_REGS_BASE: .word 0x40022000 */
	0x40, 0x00, 0x00, 0x20, /* .SRC_ADDR:        .word 0x20000040 */
	0xD0, 0x0B, 0x00, 0x08, /* .TARGET_ADDR:     .word 0x08000bd0 */
	0x06, 0x00, 0x00, 0x00, /* .COUNT:           .word 0x00000006 */
}

const loaderParamsSize = 4 * 4

// selectLoader picks the stub and the flash controller base for one
// chunk. XL-density F1 parts reach the second flash bank through a
// controller copy at +0x40.
func selectLoader(chip *ChipDescriptor, flashAddr uint32) ([]byte, uint32) {
	if chip.Family == FamilyF4 {
		return f4LoaderCode, f4FlashRegsBase
	}

	if chip.FlashSize > 256*1024 && flashAddr >= 0x08080000 {
		return f1LoaderCode, flashRegsBank2
	}

	return f1LoaderCode, flashRegsBase
}

// buildLoaderImage assembles stub, patched parameter tail and payload
// into the single buffer transferred to SRAM. An odd payload is padded
// with 0xFF so one extra halfword is programmed, which reads back as
// unprogrammed flash; the whole image is padded to word size for the
// 32 bit transfer. The halfword count covers the payload including the
// odd-byte pad only.
func buildLoaderImage(code []byte, flashCtrlBase uint32, sramBase uint32,
	flashAddr uint32, payload []byte) []byte {

	writeSize := len(payload)
	if writeSize%2 != 0 {
		writeSize++
	}

	imageSize := len(code) + writeSize
	for imageSize%4 != 0 {
		imageSize++
	}

	image := make([]byte, imageSize)
	copy(image, code)

	params := image[len(code)-loaderParamsSize : len(code)]
	uint32ToLittleEndian(params[0:], flashCtrlBase)
	uint32ToLittleEndian(params[4:], sramBase+uint32(len(code)))
	uint32ToLittleEndian(params[8:], flashAddr)
	uint32ToLittleEndian(params[12:], uint32(writeSize/2))

	copy(image[len(code):], payload)

	for i := len(code) + len(payload); i < imageSize; i++ {
		image[i] = 0xFF
	}

	return image
}

// runFlashLoader stages one chunk and runs the stub: one 32 bit bulk
// write to SRAM base, PC set to the stub entry, run. The caller polls
// for the halt.
func (h *StLink) runFlashLoader(chip *ChipDescriptor, flashAddr uint32, payload []byte) error {
	code, flashCtrlBase := selectLoader(chip, flashAddr)

	image := buildLoaderImage(code, flashCtrlBase, chip.SramBase, flashAddr, payload)

	if err := h.usbWriteMem32(chip.SramBase, image); err != nil {
		return err
	}

	if err := h.SetRegister(15, chip.SramBase); err != nil {
		return err
	}

	return h.Run()
}
