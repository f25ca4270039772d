package main

import (
	"fmt"
	"os"
	"unicode"

	"github.com/pdk-cli/pdk/cmd"
	"github.com/pdk-cli/pdk/internal/sentry"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Defer order matters: RecoverAndPanic is deferred first so it runs
	// last, after cleanup() has already flushed any captured event.
	defer sentry.RecoverAndPanic()
	cleanup := sentry.Init(cmd.Version)
	defer cleanup()

	err := cmd.Execute()
	if err != nil {
		sentry.CaptureError(err)
		fmt.Fprintln(os.Stderr, capitalize(err.Error()))
	}
	return cmd.ExitCodeFor(err)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
