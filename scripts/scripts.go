// Package scripts embeds the report scripts shipped with genstore.
package scripts

import "embed"

// FS holds the report scripts under reports/.
//
//go:embed reports/*.risor
var FS embed.FS

// ReportPath returns the path of a named report within FS.
func ReportPath(name string) string {
	return "reports/" + name + ".risor"
}
