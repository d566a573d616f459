// Command goinject inspects processes, loads modules into them and calls functions
// inside them.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
