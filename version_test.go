// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// packVersion builds the 6 byte wire descriptor: a big-endian firmware
// halfword followed by vendor and product id in little-endian.
func packVersion(stlink, jtag, swim int, vid, pid uint16) []byte {
	packed := uint16(stlink&0x0F)<<12 | uint16(jtag&0x3F)<<6 | uint16(swim&0x3F)

	return []byte{
		byte(packed >> 8), byte(packed),
		byte(vid), byte(vid >> 8),
		byte(pid), byte(pid >> 8),
	}
}

func TestParseVersion(t *testing.T) {
	version := parseVersion(packVersion(2, 29, 7, 0x0483, 0x3748))

	assert.Equal(t, 2, version.stlink)
	assert.Equal(t, 29, version.jtag)
	assert.Equal(t, 7, version.swim)
	assert.Equal(t, gousb.ID(0x0483), version.vid)
	assert.Equal(t, gousb.ID(0x3748), version.pid)
	assert.Equal(t, "V2J29S7", version.String())
}

func TestVersionIdentityCheck(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
		ok   bool
	}{
		{"v2", packVersion(2, 27, 6, 0x0483, 0x3748), true},
		{"v1 mass storage", packVersion(1, 10, 4, 0x0483, 0x3744), false},
		{"wrong vendor", packVersion(2, 27, 6, 0x1234, 0x3748), false},
		{"wrong product", packVersion(2, 27, 6, 0x0483, 0x374B), false},
		{"unplugged", packVersion(0, 0, 0, 0, 0), false},
	}

	for _, c := range cases {
		version := parseVersion(c.raw)
		err := version.check()

		if c.ok {
			assert.NoErrorf(t, err, "case %s", c.name)
		} else {
			require.Errorf(t, err, "case %s", c.name)
			assert.Truef(t, ErrorIsKind(err, ErrDeviceMismatch), "case %s: %v", c.name, err)
		}
	}
}

func TestVersionFlags(t *testing.T) {
	old := parseVersion(packVersion(2, 12, 0, 0x0483, 0x3748))
	assert.False(t, old.flags.Get(flagHasTargetVolt))

	current := parseVersion(packVersion(2, 27, 6, 0x0483, 0x3748))
	assert.True(t, current.flags.Get(flagHasTargetVolt))
	assert.True(t, current.flags.Get(flagHasGetLastRwStatus2))
	assert.True(t, current.flags.Get(flagHasSwdSetFreq))
	assert.True(t, current.flags.Get(flagHasMem16Bit))
}
