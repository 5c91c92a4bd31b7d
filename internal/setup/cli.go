package setup

import (
	"fmt"
	"io"
)

// PrintStatus writes a human-readable status report.
func PrintStatus(w io.Writer, status *Status) {
	fmt.Fprintln(w, "Febril Severity Server Status")
	fmt.Fprintln(w, "=============================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Configuration:")
	if status.ConfigFile != "" {
		fmt.Fprintf(w, "  File: %s\n", status.ConfigFile)
	} else {
		fmt.Fprintln(w, "  File: - defaults and environment only")
	}
	fmt.Fprintf(w, "  Evaluation store: %s\n", status.StoreDriver)
	fmt.Fprintf(w, "  Identity provider: %s\n", status.AuthProvider)
	fmt.Fprintf(w, "  Sessions: %s\n", status.SessionBackend)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Prediction backend:")
	fmt.Fprintf(w, "  Mode: %s\n", status.BackendMode)
	if status.BackendMode == "live" {
		fmt.Fprintf(w, "  URL: %s\n", status.BackendURL)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Observations:")
	fmt.Fprintf(w, "  Driver: %s\n", status.ObservationDriver)
	if status.ObservationDB != "" {
		fmt.Fprintf(w, "  Path: %s\n", status.ObservationDB)
		if status.ObservationDBFound {
			fmt.Fprintln(w, "  Database: ✓ Present")
		} else {
			fmt.Fprintln(w, "  Database: - Not created yet")
		}
	}
	fmt.Fprintln(w)

	if len(status.Issues) > 0 {
		fmt.Fprintln(w, "Issues:")
		for _, issue := range status.Issues {
			fmt.Fprintf(w, "  ⚠ %s\n", issue)
		}
		fmt.Fprintln(w)
	}
}

// PrintValidation writes the result of Validate.
func PrintValidation(w io.Writer, valid bool, issues []string) {
	if valid && len(issues) == 0 {
		fmt.Fprintln(w, "✓ Configuration is valid!")
		return
	}

	if valid {
		fmt.Fprintln(w, "✓ Configuration is valid, with warnings:")
	} else {
		fmt.Fprintln(w, "✗ Configuration has issues:")
	}
	for _, issue := range issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
}
