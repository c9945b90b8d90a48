// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger = nil
)

func init() {
	logger = logrus.New()
	logger.SetLevel(logrus.InfoLevel)
}

// SetLogger replaces the package logger, e.g. with one configured by the
// command line front end.
func SetLogger(loggerInstance *logrus.Logger) {
	logger = loggerInstance
}
