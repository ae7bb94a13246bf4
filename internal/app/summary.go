package app

import (
	"fmt"
	"io"
	"marketnews/internal/domain"
	"slices"
)

// PrintSummary печатает итог прогона в читаемом виде.
func PrintSummary(w io.Writer, s domain.Summary, runErr error) {
	status := "completed"
	if runErr != nil {
		status = "aborted"
	}
	fmt.Fprintf(w, "Collection %s: %d considered, %d inserted, %d skipped\n",
		status, s.Considered, s.Inserted, s.Skipped)
	kinds := make([]string, 0, len(s.PerSource))
	for kind := range s.PerSource {
		kinds = append(kinds, string(kind))
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		st := s.PerSource[domain.SourceKind(kind)]
		fmt.Fprintf(w, "  %-8s %d considered, %d inserted, %d skipped\n", kind, st.Considered, st.Inserted, st.Skipped)
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  failed   %s %s: %s\n", f.Kind, f.Origin, f.Error)
	}
	if runErr != nil {
		fmt.Fprintf(w, "Error: %v\n", runErr)
	}
}
