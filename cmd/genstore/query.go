package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/jward/genstore"
	"github.com/jward/genstore/internal/model"
)

var (
	flagByID   bool
	flagSorted bool
	flagKinds  []string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an empty store",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show object counts and store metadata",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var getCmd = &cobra.Command{
	Use:   "get <kind> <handle>",
	Short: "Print one object",
	Long:  "Prints the object of the given kind stored under a handle, or under a Gramps ID with --id.",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

var listCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List the handles of one kind",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

var backlinksCmd = &cobra.Command{
	Use:   "backlinks <handle>",
	Short: "List the objects that reference a handle",
	Args:  cobra.ExactArgs(1),
	RunE:  runBacklinks,
}

var surnamesCmd = &cobra.Command{
	Use:   "surnames",
	Short: "Print the sorted surname list",
	Args:  cobra.NoArgs,
	RunE:  runSurnames,
}

func init() {
	getCmd.Flags().BoolVar(&flagByID, "id", false, "treat the second argument as a Gramps ID")
	listCmd.Flags().BoolVar(&flagSorted, "sorted", false, "sort by display name instead of storage order")
	backlinksCmd.Flags().StringSliceVar(&flagKinds, "kind", nil, "only report referrers of these kinds")
}

// --- Helpers ---

// outputResult marshals a CLIResult to w in the selected format.
func outputResult(w io.Writer, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: cmd.Name(),
		Error:   err.Error(),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// objectJSON renders an object as relaxed extended JSON, keeping the field
// names it is stored with.
func objectJSON(obj model.Object) (json.RawMessage, error) {
	data, err := bson.MarshalExtJSON(obj, false, false)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", obj.Kind(), err)
	}
	return json.RawMessage(data), nil
}

// --- Commands ---

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := resolveDBPath()
	if err != nil {
		return outputError(cmd, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return outputError(cmd, fmt.Errorf("creating %s: %w", dir, err))
	}
	db, err := genstore.Open(dir, storeOptions(false)...)
	if err != nil {
		return outputError(cmd, err)
	}
	defer db.Close()

	version, err := db.Version()
	if err != nil {
		return outputError(cmd, err)
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{
		Command: "init",
		Results: CLIMessage{Message: fmt.Sprintf("Initialized store %s (schema version %d)", dir, version)},
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	db, err := openStore(true)
	if err != nil {
		return outputError(cmd, err)
	}
	defer db.Close()

	counts, err := db.Stats()
	if err != nil {
		return outputError(cmd, err)
	}
	version, err := db.Version()
	if err != nil {
		return outputError(cmd, err)
	}
	stats := CLIStats{
		Dir:      db.Dir(),
		Version:  version,
		Counts:   make(map[string]int, len(counts)),
		Surnames: len(db.SurnameList()),
		Home:     string(db.DefaultPersonHandle()),
		ReadOnly: db.IsReadOnly(),
	}
	for k, n := range counts {
		stats.Counts[k.Table()] = n
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "stats", Results: stats})
}

func runGet(cmd *cobra.Command, args []string) error {
	k, err := model.ParseKind(args[0])
	if err != nil {
		return outputError(cmd, err)
	}
	db, err := openStore(true)
	if err != nil {
		return outputError(cmd, err)
	}
	defer db.Close()

	var obj model.Object
	if flagByID {
		obj, err = db.GetByGrampsID(k, args[1])
	} else {
		obj, err = db.Get(k, model.Handle(args[1]))
	}
	if err != nil {
		return outputError(cmd, err)
	}
	if obj == nil {
		return outputError(cmd, fmt.Errorf("no %s %q", k.Table(), args[1]))
	}
	data, err := objectJSON(obj)
	if err != nil {
		return outputError(cmd, err)
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{
		Command: "get",
		Results: CLIObject{Kind: k.Table(), Handle: string(obj.GetHandle()), Object: data},
	})
}

func runList(cmd *cobra.Command, args []string) error {
	k, err := model.ParseKind(args[0])
	if err != nil {
		return outputError(cmd, err)
	}
	db, err := openStore(true)
	if err != nil {
		return outputError(cmd, err)
	}
	defer db.Close()

	handles, err := db.Handles(k, flagSorted)
	if err != nil {
		return outputError(cmd, err)
	}
	rows := make([]CLIHandle, 0, len(handles))
	for _, h := range handles {
		row := CLIHandle{Kind: k.Table(), Handle: string(h)}
		if obj, err := db.Get(k, h); err != nil {
			return outputError(cmd, err)
		} else if obj != nil {
			row.GrampsID = obj.GetGrampsID()
		}
		rows = append(rows, row)
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "list", Results: rows})
}

func runBacklinks(cmd *cobra.Command, args []string) error {
	var include []model.Kind
	for _, name := range flagKinds {
		k, err := model.ParseKind(name)
		if err != nil {
			return outputError(cmd, err)
		}
		include = append(include, k)
	}
	db, err := openStore(true)
	if err != nil {
		return outputError(cmd, err)
	}
	defer db.Close()

	rows := []CLIHandle{}
	for bl, err := range db.FindBacklinkHandles(model.Handle(args[0]), include...) {
		if err != nil {
			return outputError(cmd, err)
		}
		rows = append(rows, CLIHandle{Kind: bl.Kind.Table(), Handle: string(bl.Handle)})
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "backlinks", Results: rows})
}

func runSurnames(cmd *cobra.Command, args []string) error {
	db, err := openStore(true)
	if err != nil {
		return outputError(cmd, err)
	}
	defer db.Close()

	names := db.SurnameList()
	if names == nil {
		names = []string{}
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "surnames", Results: names})
}
