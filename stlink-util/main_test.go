// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNum(t *testing.T) {
	value, err := parseNum("0x08000400")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x08000400), value)

	value, err = parseNum("15")
	require.NoError(t, err)
	assert.Equal(t, uint32(15), value)

	_, err = parseNum("bogus")
	assert.Error(t, err)
}

func TestParseAssignment(t *testing.T) {
	left, right, err := parseAssignment("15=0x20000000")
	require.NoError(t, err)
	assert.Equal(t, uint32(15), left)
	assert.Equal(t, uint32(0x20000000), right)

	_, _, err = parseAssignment("15")
	assert.Error(t, err)

	_, _, err = parseAssignment("x=1")
	assert.Error(t, err)
}
