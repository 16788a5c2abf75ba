package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/genstore/internal/runtime"
	"github.com/jward/genstore/scripts"
)

var flagList bool

var scriptCmd = &cobra.Command{
	Use:   "script <report|path.risor>",
	Short: "Run a Risor report against the store",
	Long: "Runs one of the built-in reports by name, or a .risor file from disk. " +
		"The script sees the store read-only and its last expression is printed.",
	Args: func(cmd *cobra.Command, args []string) error {
		if flagList {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runScript,
}

func init() {
	scriptCmd.Flags().BoolVar(&flagList, "list", false, "list the built-in reports")
}

// builtinReports returns the names of the embedded reports.
func builtinReports() ([]string, error) {
	matches, err := fs.Glob(scripts.FS, "reports/*.risor")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".risor"))
	}
	sort.Strings(names)
	return names, nil
}

// isScriptFile reports whether arg names a script on disk rather than a
// built-in report.
func isScriptFile(arg string) bool {
	if !strings.HasSuffix(arg, ".risor") {
		return false
	}
	_, err := os.Stat(arg)
	return err == nil
}

func runScript(cmd *cobra.Command, args []string) error {
	if flagList {
		names, err := builtinReports()
		if err != nil {
			return outputError(cmd, err)
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "script", Results: names})
	}

	db, err := openStore(true)
	if err != nil {
		return outputError(cmd, err)
	}
	defer db.Close()

	var rt *runtime.Runtime
	var path string
	if isScriptFile(args[0]) {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return outputError(cmd, err)
		}
		rt = runtime.NewRuntime(db, filepath.Dir(abs), runtime.WithRuntimeLogger(logger))
		path = filepath.Base(abs)
	} else {
		rt = runtime.NewRuntime(db, "", runtime.WithRuntimeFS(scripts.FS), runtime.WithRuntimeLogger(logger))
		path = scripts.ReportPath(strings.TrimSuffix(args[0], ".risor"))
	}

	result, err := rt.EvalScript(cmd.Context(), path, nil)
	if err != nil {
		return outputError(cmd, fmt.Errorf("running %s: %w", args[0], err))
	}
	var value any
	if result != nil {
		value = result.Interface()
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "script", Results: value})
}
