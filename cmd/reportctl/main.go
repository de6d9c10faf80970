// Command reportctl is the operator CLI for reportflow: schema migration and
// offline checks of schedules and identifiers.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
