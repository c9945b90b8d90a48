// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"bytes"
	"io"

	"github.com/juju/errors"
)

// unlockFlash runs the two-key sequence on the F1 flash controller and
// clears any stale error bits.
func (h *StLink) unlockFlash() error {
	if err := h.WriteWord(flashKEYR, flashKey1); err != nil {
		return err
	}
	if err := h.WriteWord(flashKEYR, flashKey2); err != nil {
		return err
	}

	return h.WriteWord(flashSR, flashSrEop|flashSrWrPrtErr|flashSrPgErr)
}

func (h *StLink) lockFlash() error {
	return h.WriteWord(flashCR, flashCrLock)
}

// pollFlashIdle reads the given status register until the busy mask
// clears, up to erasePollLimit iterations, and returns the final
// status. Page erase typically completes within two reads.
func (h *StLink) pollFlashIdle(srAddr uint32, busyMask uint32) (uint32, int, error) {
	var status uint32
	var err error

	for i := 0; i < erasePollLimit; i++ {
		status, err = h.ReadWord(srAddr)

		if err != nil {
			return 0, i, err
		}

		if status&busyMask == 0 {
			return status, i + 1, nil
		}
	}

	return status, erasePollLimit, newDriverError(ErrFlashEraseTimeout,
		"flash busy bit 0x%08x never cleared within %d polls", busyMask, erasePollLimit)
}

// EraseFlashPage erases the flash page containing pageAddr, dispatched
// on the chip family. Passing MassEraseAddress erases all user flash.
// The flash controller is expected idle at entry and is idle again on
// return.
func (h *StLink) EraseFlashPage(pageAddr uint32) error {
	switch h.Chip().Family {
	case FamilyF4:
		return h.eraseF4(pageAddr)
	case FamilyL1:
		return h.eraseL1(pageAddr)
	default:
		return h.eraseF1(pageAddr)
	}
}

// MassErase erases all user flash, retrying once on an observed
// failure. The first attempt on a freshly reset part is occasionally
// flaky.
func (h *StLink) MassErase() error {
	if err := h.EraseFlashPage(MassEraseAddress); err != nil {
		logger.Warn("mass erase failed, retrying once: ", err)
		return h.EraseFlashPage(MassEraseAddress)
	}

	return nil
}

func (h *StLink) eraseF1(pageAddr uint32) error {
	if err := h.unlockFlash(); err != nil {
		return err
	}

	if pageAddr == MassEraseAddress {
		/* Start the erase-all operation, PM0075 sec 3.5. */
		if err := h.WriteWord(flashCR, flashCrMer); err != nil {
			return err
		}
		if err := h.WriteWord(flashCR, flashCrStrt|flashCrMer); err != nil {
			return err
		}
	} else {
		/* Select the page to erase, PM0075 sec 3.6. A single combined
		 * write will not work. */
		if err := h.WriteWord(flashAR, pageAddr); err != nil {
			return err
		}
		if err := h.WriteWord(flashCR, flashCrPer); err != nil {
			return err
		}
		if err := h.WriteWord(flashCR, flashCrStrt|flashCrPer); err != nil {
			return err
		}
	}

	status, polls, err := h.pollFlashIdle(flashSR, flashSrBsy)

	if err != nil {
		return err
	}

	if status&flashSrEop == 0 {
		return newDriverError(ErrFlashEraseTimeout,
			"erase of page 0x%08x failed, status %08x after %d checks", pageAddr, status, polls)
	}

	logger.Debugf("erased flash page %08x, %d status checks to complete %08x",
		pageAddr, polls, status)

	return nil
}

func (h *StLink) eraseF4(pageAddr uint32) error {
	if err := h.WriteWord(f4FlashKEYR, flashKey1); err != nil {
		return err
	}
	if err := h.WriteWord(f4FlashKEYR, flashKey2); err != nil {
		return err
	}
	if err := h.WriteWord(f4FlashSR, 0xF3); err != nil {
		return err
	}

	if pageAddr == MassEraseAddress {
		if err := h.WriteWord(f4FlashCR, flashCrMer); err != nil {
			return err
		}
		if err := h.WriteWord(f4FlashCR, f4FlashCrStrt|flashCrMer); err != nil {
			return err
		}
	} else {
		sector := pageAddr & 0x0F
		if err := h.WriteWord(f4FlashCR, 0x00202|(sector<<3)); err != nil {
			return err
		}
		if err := h.WriteWord(f4FlashCR, 0x10202|(sector<<3)); err != nil {
			return err
		}
	}

	status, polls, err := h.pollFlashIdle(f4FlashSR, f4FlashSrBsy)

	if err != nil {
		return err
	}

	logger.Debugf("erased flash page %08x, %d status checks to complete %08x",
		pageAddr, polls, status)

	return nil
}

func (h *StLink) eraseL1(pageAddr uint32) error {
	/* Two-stage unlock: PEKEY clears the controller lock, PRGKEY the
	 * program lock. */
	if err := h.WriteWord(l1FlashPEKEYR, l1FlashPeKey1); err != nil {
		return err
	}
	if err := h.WriteWord(l1FlashPEKEYR, l1FlashPeKey2); err != nil {
		return err
	}
	if err := h.WriteWord(l1FlashPRGKEYR, l1FlashPrgKey1); err != nil {
		return err
	}
	if err := h.WriteWord(l1FlashPRGKEYR, l1FlashPrgKey2); err != nil {
		return err
	}

	if pageAddr == MassEraseAddress {
		/* Mass erase is emulated by turning read protection on and back
		 * off through the option byte register. */
		if err := h.WriteWord(l1FlashOBR, 0x01); err != nil {
			return err
		}
		if err := h.WriteWord(l1FlashOBR, 0xAA); err != nil {
			return err
		}
	} else {
		sector := pageAddr & 0x0F
		if err := h.WriteWord(f4FlashCR, 0x00202|(sector<<3)); err != nil {
			return err
		}
		if err := h.WriteWord(f4FlashCR, 0x10202|(sector<<3)); err != nil {
			return err
		}
	}

	status, polls, err := h.pollFlashIdle(l1FlashSR, flashSrBsy)

	if err != nil {
		return err
	}

	logger.Debugf("erased flash page %08x, %d status checks to complete %08x",
		pageAddr, polls, status)

	return nil
}

// WriteFlash programs data into flash starting at flashAddr in 2KB
// chunks, one loader run per chunk. The covered pages must have been
// erased beforehand. The flash is re-locked on every exit path.
func (h *StLink) WriteFlash(flashAddr uint32, data []byte) error {
	chip := h.Chip()

	logger.Debugf("flash write %08x..%08x", flashAddr, flashAddr+uint32(len(data)))

	if err := h.unlockFlash(); err != nil {
		h.lockFlash()
		return errors.Annotate(err, "flash unlock failed")
	}

	var offset uint32 = 0

	for offset < uint32(len(data)) {
		chunkSize := uint32(len(data)) - offset
		if chunkSize > flashWriteChunk {
			chunkSize = flashWriteChunk
		}

		chunk := data[offset : offset+chunkSize]

		if err := h.runFlashLoader(chip, flashAddr+offset, chunk); err != nil {
			h.lockFlash()
			return errors.Annotatef(err, "loader start failed at offset %#x", offset)
		}

		if err := h.waitLoaderHalt(); err != nil {
			h.lockFlash()
			return errors.Annotatef(err, "chunk at offset %#x", offset)
		}

		offset += chunkSize
	}

	status, err := h.ReadWord(flashSR)

	if err != nil {
		h.lockFlash()
		return err
	}

	if status&(flashSrPgErr|flashSrWrPrtErr|flashSrBsy) != 0 {
		h.lockFlash()

		if status&flashSrPgErr != 0 {
			return newDriverError(ErrFlashWrite,
				"flash write failed: trying to write a location that was not erased (%02x)", status)
		}
		if status&flashSrWrPrtErr != 0 {
			return newDriverError(ErrFlashWrite,
				"flash write failed: trying to modify a write-protected region (%02x)", status)
		}

		return newDriverError(ErrFlashWrite, "flash write failed, status %02x", status)
	}

	return h.lockFlash()
}

// waitLoaderHalt polls the core status until the stub hits its
// breakpoint. Writing a 2KB chunk takes 40-70ms.
func (h *StLink) waitLoaderHalt() error {
	for i := 0; i < loaderPollLimit; i++ {
		state, err := h.GetStatus()

		if err != nil {
			return err
		}

		if state == CoreStateHalted {
			return nil
		}
	}

	flashStatus, _ := h.ReadWord(flashSR)
	loaderResult, _ := h.GetRegister(2)

	return newDriverError(ErrLoaderHang,
		"loader did not halt within %d polls, FLASH_SR %08x, r2 %08x",
		loaderPollLimit, flashStatus, loaderResult)
}

// VerifyFlash compares target memory starting at addr against the
// source stream, in chunks of up to 128KB. The first mismatch aborts.
func (h *StLink) VerifyFlash(addr uint32, source io.Reader) error {
	fileBuf := make([]byte, verifyChunkSize)

	for {
		n, err := io.ReadFull(source, fileBuf)

		if n == 0 {
			if err == io.EOF || err == io.ErrUnexpectedEOF || err == nil {
				return nil
			}
			return errors.Annotate(err, "verify source read failed")
		}

		flashData, rdErr := h.ReadMem(addr, uint32(n))

		if rdErr != nil {
			return errors.Annotate(rdErr, "verify flash read failed")
		}

		if !bytes.Equal(fileBuf[:n], flashData) {
			return newDriverError(ErrVerifyMismatch,
				"flash contents diverge from source within %08x..%08x", addr, addr+uint32(n))
		}

		addr += uint32(n)

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return errors.Annotate(err, "verify source read failed")
		}
	}
}

// Program is the full firmware download: halt, reset, mass erase,
// write at the chip's flash base and verify.
func (h *StLink) Program(image []byte) error {
	chip := h.Chip()

	if uint32(len(image)) > chip.FlashSize {
		logger.Warnf("program is LARGER THAN FLASH and may not fit: %#x bytes, flash is %#x bytes",
			len(image), chip.FlashSize)
	}

	if err := h.ForceDebug(); err != nil {
		return errors.Trace(err)
	}
	if err := h.Reset(); err != nil {
		return errors.Trace(err)
	}

	if err := h.MassErase(); err != nil {
		return errors.Trace(err)
	}

	if err := h.WriteFlash(chip.FlashBase, image); err != nil {
		return errors.Trace(err)
	}

	return h.VerifyFlash(chip.FlashBase, bytes.NewReader(image))
}
