// Command wxgate receives messaging-platform callbacks, answers them through
// the configured application and records what happened.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
