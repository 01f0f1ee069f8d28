package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Functions

// TestInitLogger executes a unit test on the log level filter
// construction.
func TestInitLogger(t *testing.T) {

	for _, loglevel := range []string{"debug", "info", "warn", "error", "unknown"} {

		logger := initLogger(loglevel)
		assert.NotNil(t, logger)
		assert.Nil(t, logger.Log("msg", "logger smoke test", "level-flag", loglevel))
	}
}
