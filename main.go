package main

import (
	"errors"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// The summary has already been printed; only the exit status is left.
		if errors.Is(err, errIncomplete) {
			os.Exit(1)
		}

		exitOnError(err)
	}
}
