// Command asyncload decodes image files on a worker pool and applies them to
// an owner-only scene, the way an interactive viewer would.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
