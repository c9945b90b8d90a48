// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"fmt"
	"strings"
	"time"
)

// Device parameter registers holding the flash size. STMicro moves
// this around, seemingly for every chip family.
const (
	flashSizeRegL1 = 0x1FF8004C
	flashSizeRegF1 = 0x1FFFF7E0
	flashSizeRegF4 = 0x1FFF7A20
	flashSizeRegF0 = 0x1FFFF7CC
)

// FlashSizeKb reads the reported flash memory size, caching it on the
// session.
func (h *StLink) FlashSizeKb() (uint32, error) {
	if h.flashSizeKb != 0 {
		return h.flashSizeKb, nil
	}

	devId := h.cpuIdCode & 0x0FFF

	switch {
	case devId == 0x416 || devId == 0x427:
		devParam, err := h.ReadWord(flashSizeRegL1)
		if err != nil {
			return 0, err
		}
		h.flashSizeKb = devParam & 0xFFFF

	case devId == 0x436:
		devParam, err := h.ReadWord(flashSizeRegL1)
		if err != nil {
			return 0, err
		}
		if devParam&1 != 0 {
			h.flashSizeKb = 256
		} else {
			h.flashSizeKb = 384
		}

	default:
		for _, probe := range []struct {
			addr  uint32
			shift uint
		}{
			{flashSizeRegF1, 0},
			{flashSizeRegF4, 16},
			{flashSizeRegF0, 0},
		} {
			devParam, err := h.ReadWord(probe.addr)
			if err != nil {
				return 0, err
			}
			if devParam != 0xFFFFFFFF {
				h.flashSizeKb = (devParam >> probe.shift) & 0xFFFF
				break
			}
		}
	}

	if h.flashSizeKb == 0 {
		return 0, newDriverError(ErrChipUnknown, "could not determine flash size")
	}

	return h.flashSizeKb, nil
}

// DescribeTarget builds the target MCU information report.
func (h *StLink) DescribeTarget() (string, error) {
	var b strings.Builder

	chip := h.Chip()
	devId := h.cpuIdCode & 0x0FFF

	b.WriteString("Target STM32 MCU information:\n")
	fmt.Fprintf(&b, " Target DBGMCU_IDCODE %3.3x (Rev ID %4.4x) %s.\n",
		devId, h.cpuIdCode>>16, chip.Name)

	cpuId, err := h.ReadWord(cpuIdBaseRegister)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, " CPU ID base %8.8x.\n", cpuId)

	sizeKb, err := h.FlashSizeKb()
	if err == nil {
		fmt.Fprintf(&b, " Flash size %dK.", sizeKb)
	} else {
		fmt.Fprintf(&b, " Flash size unknown, assuming %dK from the device table.",
			chip.FlashSize/1024)
	}

	return b.String(), nil
}

// LEDs on an STM32VLDiscovery board sit on PortC pins PC8 and PC9,
// RM0041.
const (
	gpioCBase = 0x40011000
	gpioCCrh  = gpioCBase + 0x04
	gpioCOdr  = gpioCBase + 0x0C

	ledBlue  = 1 << 8
	ledGreen = 1 << 9
)

// BlinkLeds alternates the Discovery board LEDs as a visual liveness
// test, restoring the pin configuration afterwards.
func (h *StLink) BlinkLeds() error {
	portConfig, err := h.ReadWord(gpioCCrh)

	if err != nil {
		return err
	}

	// Make certain PC8/PC9 are GPIO outputs, any speed will do.
	reconfigured := portConfig&0xCC != 0x00

	if reconfigured {
		if err := h.WriteWord(gpioCCrh, (portConfig&^uint32(0xFF))|0x11); err != nil {
			return err
		}
	}

	for i := 0; i < 10; i++ {
		if err := h.WriteWord(gpioCOdr, ledGreen); err != nil {
			return err
		}
		time.Sleep(100 * time.Millisecond)

		if err := h.WriteWord(gpioCOdr, ledBlue); err != nil {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}

	if reconfigured {
		return h.WriteWord(gpioCCrh, portConfig)
	}

	return nil
}
