package main_test

import (
	"context"
	"os"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestScripts runs the txtar-format CLI scripts under testdata/script
// with the default script engine, in the same style the Go toolchain's
// own script tests use. The scripts' `exec hcwstudyapp` finds the binary
// through PATH; this test does not build it.
func TestScripts(t *testing.T) {
	engine := script.NewEngine()
	scripttest.Test(t, context.Background(), engine, os.Environ(), "testdata/script/*.txt")
}
