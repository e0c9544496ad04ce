// Command heartrisk trains a ten-year coronary heart disease risk classifier
// from a CSV file, or sweeps a hyperparameter grid to find the best setup.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd, state := newRootCmd()
	if err := cmd.Execute(); err != nil {
		if state.verbose() {
			fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
