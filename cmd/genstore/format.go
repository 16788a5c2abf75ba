package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// formatStatsText formats CLIStats as readable text.
func formatStatsText(w io.Writer, s CLIStats) {
	fmt.Fprintln(w, "Store Summary")
	fmt.Fprintln(w, "=============")
	fmt.Fprintf(w, "Directory: %s\n", s.Dir)
	fmt.Fprintf(w, "Schema version: %d\n", s.Version)
	if s.ReadOnly {
		fmt.Fprintln(w, "Read-only: yes")
	}
	if s.Home != "" {
		fmt.Fprintf(w, "Home person: %s\n", s.Home)
	}
	fmt.Fprintf(w, "Surnames: %d\n", s.Surnames)
	fmt.Fprintln(w)

	kinds := make([]string, 0, len(s.Counts))
	for k := range s.Counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tCOUNT")
	for _, k := range kinds {
		fmt.Fprintf(tw, "%s\t%d\n", k, s.Counts[k])
	}
	tw.Flush()
}

// formatHandlesText formats CLIHandle rows as aligned columns.
func formatHandlesText(w io.Writer, rows []CLIHandle) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tHANDLE\tID")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Kind, r.Handle, r.GrampsID)
	}
	tw.Flush()
}

// formatObjectText prints the object header followed by its fields as
// indented JSON.
func formatObjectText(w io.Writer, o CLIObject) error {
	fmt.Fprintf(w, "%s %s\n", o.Kind, o.Handle)
	data, err := json.MarshalIndent(o.Object, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func formatLockText(w io.Writer, l CLILock) {
	switch {
	case l.Broken:
		fmt.Fprintf(w, "Lock on %s removed (was held by %s)\n", l.Dir, l.Owner)
	case l.Locked:
		fmt.Fprintf(w, "%s is locked by %s\n", l.Dir, l.Owner)
	default:
		fmt.Fprintf(w, "%s is not locked\n", l.Dir)
	}
}

func formatImportText(w io.Writer, r CLIImport) {
	fmt.Fprintf(w, "Imported %s: %d added, %d updated\n", r.File, r.Added, r.Updated)
	kinds := make([]string, 0, len(r.ByKind))
	for k := range r.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %s: %d\n", k, r.ByKind[k])
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIStats:
		formatStatsText(w, v)
	case []CLIHandle:
		formatHandlesText(w, v)
	case CLIObject:
		return formatObjectText(w, v)
	case CLILock:
		formatLockText(w, v)
	case CLIImport:
		formatImportText(w, v)
	case CLIMessage:
		fmt.Fprintln(w, v.Message)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case nil:
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("unsupported result type for text format: %T", v)
		}
		fmt.Fprintln(w, string(data))
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
