// Command api runs the fridge authentication server.
package main

import (
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
