package utils

import (
	"fmt"
	"io"
	"os"
)

var exit = os.Exit

const rule = "---------------------------------------------------------\n"

// Die prints a framed error to stderr and exits with status 1
func Die(context string, err error) {
	PrintError(os.Stderr, context, err)
	exit(1)
}

// PrintError writes the framed error used by Die
func PrintError(w io.Writer, context string, err error) {
	fmt.Fprintf(w, "\n"+rule)
	fmt.Fprintf(w, "🚨 PALMSCAN ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(w, "DETAILS: %v\n", err)
	}
	fmt.Fprint(w, rule)
}
