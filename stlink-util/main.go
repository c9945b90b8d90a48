// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// stlink-util drives an ST-Link v2 programmer: firmware download,
// flash read/write/verify, register access and core control.
package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	stlink "github.com/noomdiesel/arm-utilities"
)

const usageMsg = `Usage: stlink-util [options] <command> ...

Commands are:
  program=<file>           Erase whole flash, write firmware file and verify
  info version blink
  regs reg<regnum> wreg<regnum>=<value>
  debug reset run step status
  erase erase=<addr> erase=all
  read<memaddr> write<memaddr>=<val>
  flash:r:<file> flash:w:<file> flash:v:<file>
  sys:r:<file>
`

var (
	flagVerbose *int
	flagVersion *bool
)

func setUpLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&prefixed.TextFormatter{
		FullTimestamp: true,
	})

	switch {
	case *flagVerbose >= 2:
		log.SetLevel(logrus.TraceLevel)
	case *flagVerbose == 1:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func main() {
	flagVerbose = pflag.CountP("verbose", "v", "report each action taken")
	flagVersion = pflag.BoolP("version", "V", false, "emit version information and exit")
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usageMsg)
		pflag.PrintDefaults()
	}

	pflag.Parse()

	log := setUpLogger()
	stlink.SetLogger(log)

	if *flagVersion {
		fmt.Println("ST-Link programmer/debugging utility")
		return
	}

	if pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(1)
	}

	if err := stlink.InitializeUSB(); err != nil {
		log.Fatal(err)
	}
	defer stlink.CloseUSB()

	handle, err := stlink.Open()

	if err != nil {
		log.Fatal("could not find a usable ST-Link: ", err)
	}
	defer handle.Close()

	if *flagVerbose > 0 {
		fmt.Println(handle.Version().Describe())
	}

	/* When we open the device it is in an unknown mode. Kick it into
	 * debug, enter SWD and identify the target before running any
	 * commands. */
	if err := handle.EnterDebug(); err != nil {
		log.Fatal(err)
	}

	if err := handle.IdentifyChip(); err != nil {
		log.Error("chip identification failed: ", err)
	}

	for _, cmd := range pflag.Args() {
		log.Debugf("executing command %s", cmd)

		if err := runCommand(handle, cmd); err != nil {
			log.Errorf("command %s: %v", cmd, err)
		}
	}

	// Commands tend to 'stick' in the dongle; flush them.
	handle.GetStatus()
}

func runCommand(handle *stlink.StLink, cmd string) error {
	switch {
	case cmd == "regs":
		// The core must be halted for this to work.
		regs, err := handle.GetRegisters()
		if err != nil {
			return err
		}
		fmt.Println(regs)
		return nil

	case strings.HasPrefix(cmd, "wreg"):
		return cmdWriteRegister(handle, cmd)

	case strings.HasPrefix(cmd, "reg"):
		regNum, err := parseNum(cmd[3:])
		if err != nil {
			return fmt.Errorf("bad register specification %q", cmd)
		}
		value, err := handle.GetRegister(uint8(regNum))
		if err != nil {
			return err
		}
		fmt.Printf("Register %d is %8.8x.\n", regNum, value)
		return nil

	case strings.HasPrefix(cmd, "program="):
		return cmdProgram(handle, cmd[len("program="):])

	case strings.HasPrefix(cmd, "flash:r:"):
		chip := handle.Chip()
		return dumpMemToFile(handle, cmd[len("flash:r:"):], chip.FlashBase, chip.FlashSize)

	case strings.HasPrefix(cmd, "flash:w:"):
		return cmdFlashWrite(handle, cmd[len("flash:w:"):])

	case strings.HasPrefix(cmd, "flash:v:"):
		return cmdFlashVerify(handle, cmd[len("flash:v:"):])

	case strings.HasPrefix(cmd, "sys:r:"):
		chip := handle.Chip()
		return dumpMemToFile(handle, cmd[len("sys:r:"):], chip.SysFlashBase, chip.SysFlashSize)

	case cmd == "erase":
		// The user usually wants an erase-all. Make it simple.
		if err := handle.ForceDebug(); err != nil {
			return err
		}
		if err := handle.Reset(); err != nil {
			return err
		}
		return handle.MassErase()

	case strings.HasPrefix(cmd, "erase="):
		return cmdErase(handle, cmd[len("erase="):])

	case strings.HasPrefix(cmd, "write"):
		return cmdWriteMem(handle, cmd)

	case strings.HasPrefix(cmd, "read"):
		return cmdReadMem(handle, cmd[4:])

	case cmd == "status":
		state, err := handle.GetStatus()
		if err != nil {
			return err
		}
		fmt.Printf("ARM status is: %s.\n", state)
		return nil

	case cmd == "info":
		report, err := handle.DescribeTarget()
		if err != nil {
			return err
		}
		fmt.Println(report)
		return nil

	case cmd == "version":
		fmt.Println(handle.Version().Describe())
		return nil

	case cmd == "blink":
		return handle.BlinkLeds()

	case cmd == "debug":
		return handle.ForceDebug()

	case cmd == "reset":
		return handle.Reset()

	case cmd == "run":
		return handle.Run()

	case cmd == "step":
		return handle.Step()

	default:
		return fmt.Errorf("unrecognized command %q", cmd)
	}
}

func cmdProgram(handle *stlink.StLink, path string) error {
	image, err := ioutil.ReadFile(path)

	if err != nil {
		return err
	}

	chip := handle.Chip()
	fmt.Fprintf(os.Stderr, " Writing program from %s into STM32 flash at 0x%8.8x.\n",
		path, chip.FlashBase)

	if err := handle.Program(image); err != nil {
		fmt.Printf(" Verifying flash write... file %s did not match flash contents\n", path)
		return err
	}

	fmt.Printf(" Verifying flash write... file %s matched flash contents\n", path)
	return nil
}

func cmdErase(handle *stlink.StLink, arg string) error {
	if err := handle.ForceDebug(); err != nil {
		return err
	}

	if arg == "all" {
		return handle.EraseFlashPage(stlink.MassEraseAddress)
	}

	addr, err := parseNum(arg)
	if err != nil {
		return fmt.Errorf("bad erase address %q", arg)
	}

	return handle.EraseFlashPage(uint32(addr))
}

func cmdReadMem(handle *stlink.StLink, arg string) error {
	addr, err := parseNum(arg)
	if err != nil {
		return fmt.Errorf("bad memory address %q", arg)
	}

	data, err := handle.ReadMem(uint32(addr), 16)
	if err != nil {
		return err
	}

	fmt.Printf("Memory %8.8x is", uint32(addr))
	for i := 0; i < len(data); i += 4 {
		fmt.Printf(" %02x%02x%02x%02x", data[i+3], data[i+2], data[i+1], data[i])
	}
	fmt.Println(".")
	return nil
}

func cmdWriteMem(handle *stlink.StLink, cmd string) error {
	addr, value, err := parseAssignment(cmd[len("write"):])
	if err != nil {
		return fmt.Errorf("unknown memory write specification %q", cmd)
	}

	fmt.Printf("Memory write %8.8x = %8.8x.\n", addr, value)
	return handle.WriteWord(addr, value)
}

func cmdWriteRegister(handle *stlink.StLink, cmd string) error {
	regNum, value, err := parseAssignment(cmd[len("wreg"):])
	if err != nil || regNum > 20 {
		return fmt.Errorf("unknown register write specification %q", cmd)
	}

	return handle.SetRegister(uint8(regNum), value)
}

func cmdFlashWrite(handle *stlink.StLink, path string) error {
	image, err := ioutil.ReadFile(path)

	if err != nil {
		return err
	}

	chip := handle.Chip()
	fmt.Fprintf(os.Stderr, " Writing ARM memory 0x%8.8x..0x%8.8x from %s.\n",
		chip.FlashBase, chip.FlashBase+uint32(len(image)), path)

	return handle.WriteFlash(chip.FlashBase, image)
}

func cmdFlashVerify(handle *stlink.StLink, path string) error {
	file, err := os.Open(path)

	if err != nil {
		return err
	}
	defer file.Close()

	chip := handle.Chip()
	err = handle.VerifyFlash(chip.FlashBase, file)

	if err != nil {
		fmt.Printf("  Check flash: file %s did not match flash contents\n", path)
		return err
	}

	fmt.Printf("  Check flash: file %s matched flash contents\n", path)
	return nil
}

func dumpMemToFile(handle *stlink.StLink, path string, addr uint32, size uint32) error {
	fmt.Fprintf(os.Stderr, " Reading ARM memory 0x%8.8x..0x%8.8x into %s.\n",
		addr, addr+size, path)

	data, err := handle.ReadMem(addr, size)

	if err != nil {
		return err
	}

	return ioutil.WriteFile(path, data, 0664)
}

func parseNum(s string) (uint32, error) {
	value, err := strconv.ParseUint(s, 0, 32)
	return uint32(value), err
}

// parseAssignment splits "<num>=<num>" command tails like "3=0x20000000".
func parseAssignment(s string) (uint32, uint32, error) {
	parts := strings.SplitN(s, "=", 2)

	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("missing '=' in %q", s)
	}

	left, err := parseNum(parts[0])
	if err != nil {
		return 0, 0, err
	}

	right, err := parseNum(parts[1])
	if err != nil {
		return 0, 0, err
	}

	return left, right, nil
}
