package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/jward/genstore"
	"github.com/jward/genstore/internal/model"
)

var (
	flagBreak   bool
	flagNoMagic bool
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the reference map from the primary tables",
	Args:  cobra.NoArgs,
	RunE:  runReindex,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild every secondary index",
	Args:  cobra.NoArgs,
	RunE:  runRebuild,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load objects from a JSON lines file in one batch transaction",
	Long: "Each line is one object in relaxed extended JSON with a \"_kind\" field naming its kind. " +
		"Objects without a handle are added; objects with one replace what is stored under it.",
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write every object as JSON lines",
	Long:  "Writes the format read by import, to stdout or to file.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Show or break the store lock",
	Args:  cobra.NoArgs,
	RunE:  runLock,
}

func init() {
	importCmd.Flags().BoolVar(&flagNoMagic, "no-magic", false, "keep every secondary index live during the import")
	lockCmd.Flags().BoolVar(&flagBreak, "break", false, "remove a stale lock file")
}

// progressPrinter reports at most once a second to stderr.
func progressPrinter(cmd *cobra.Command, label string) genstore.ProgressFunc {
	var last time.Time
	return func(done, total int) {
		if done < total && time.Since(last) < time.Second {
			return
		}
		last = time.Now()
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d/%d\n", label, done, total)
	}
}

func runReindex(cmd *cobra.Command, args []string) error {
	start := time.Now()
	db, err := openStore(false)
	if err != nil {
		return outputError(cmd, err)
	}
	defer db.Close()

	if err := db.ReindexReferenceMap(cmd.Context(), progressPrinter(cmd, "reference map")); err != nil {
		return outputError(cmd, err)
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{
		Command: "reindex",
		Results: CLIMessage{Message: fmt.Sprintf("Reference map rebuilt in %s", time.Since(start).Round(time.Millisecond))},
	})
}

func runRebuild(cmd *cobra.Command, args []string) error {
	start := time.Now()
	db, err := openStore(false)
	if err != nil {
		return outputError(cmd, err)
	}
	defer db.Close()

	if err := db.RebuildSecondary(cmd.Context(), progressPrinter(cmd, "secondary indices")); err != nil {
		return outputError(cmd, err)
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{
		Command: "rebuild",
		Results: CLIMessage{Message: fmt.Sprintf("Secondary indices rebuilt in %s", time.Since(start).Round(time.Millisecond))},
	})
}

// importHeader is the part of an import line read before the object itself.
type importHeader struct {
	Kind string `bson:"_kind"`
}

// decodeImportLine parses one JSON lines record into a typed object.
func decodeImportLine(line []byte) (model.Object, error) {
	var hdr importHeader
	if err := bson.UnmarshalExtJSON(line, false, &hdr); err != nil {
		return nil, err
	}
	if hdr.Kind == "" {
		return nil, fmt.Errorf("missing _kind")
	}
	k, err := model.ParseKind(hdr.Kind)
	if err != nil {
		return nil, err
	}
	obj, err := model.New(k)
	if err != nil {
		return nil, err
	}
	if err := bson.UnmarshalExtJSON(line, false, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// importObjects reads r into db inside one batch transaction.
func importObjects(ctx context.Context, db *genstore.DB, r io.Reader, noMagic bool) (CLIImport, error) {
	res := CLIImport{ByKind: map[string]int{}}
	opts := []genstore.TxnOption{genstore.Batch()}
	if noMagic {
		opts = append(opts, genstore.NoMagic())
	}
	err := db.WithTransaction("import", func(tx *genstore.Txn) error {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		lineNo := 0
		for sc.Scan() {
			lineNo++
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			obj, err := decodeImportLine(line)
			if err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			if obj.GetHandle() == "" {
				if _, err := db.Add(obj, tx); err != nil {
					return fmt.Errorf("line %d: %w", lineNo, err)
				}
				res.Added++
			} else {
				if err := db.Commit(obj, tx); err != nil {
					return fmt.Errorf("line %d: %w", lineNo, err)
				}
				res.Updated++
			}
			res.ByKind[obj.Kind().Table()]++
		}
		return sc.Err()
	}, opts...)
	return res, err
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return outputError(cmd, fmt.Errorf("opening %s: %w", args[0], err))
	}
	defer f.Close()

	db, err := openStore(false)
	if err != nil {
		return outputError(cmd, err)
	}
	defer db.Close()

	res, err := importObjects(cmd.Context(), db, f, flagNoMagic)
	if err != nil {
		return outputError(cmd, fmt.Errorf("importing %s: %w", args[0], err))
	}
	res.File = args[0]
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "import", Results: res})
}

// exportObjects writes every stored object to w in import order: kinds in
// storage order, objects in handle order.
func exportObjects(db *genstore.DB, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	n := 0
	for _, k := range model.Kinds() {
		for obj, err := range db.All(k) {
			if err != nil {
				return n, err
			}
			doc, err := bson.Marshal(obj)
			if err != nil {
				return n, err
			}
			var fields bson.D
			if err := bson.Unmarshal(doc, &fields); err != nil {
				return n, err
			}
			line, err := bson.MarshalExtJSON(append(bson.D{{Key: "_kind", Value: k.Table()}}, fields...), false, false)
			if err != nil {
				return n, err
			}
			bw.Write(line)
			bw.WriteByte('\n')
			n++
		}
	}
	return n, bw.Flush()
}

func runExport(cmd *cobra.Command, args []string) error {
	db, err := openStore(true)
	if err != nil {
		return outputError(cmd, err)
	}
	defer db.Close()

	if len(args) == 0 {
		if _, err := exportObjects(db, cmd.OutOrStdout()); err != nil {
			return outputError(cmd, err)
		}
		return nil
	}

	f, err := os.Create(args[0])
	if err != nil {
		return outputError(cmd, fmt.Errorf("creating %s: %w", args[0], err))
	}
	n, err := exportObjects(db, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return outputError(cmd, fmt.Errorf("exporting %s: %w", args[0], err))
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{
		Command: "export",
		Results: CLIMessage{Message: fmt.Sprintf("Exported %d objects to %s", n, args[0])},
	})
}

func runLock(cmd *cobra.Command, args []string) error {
	dir, err := resolveDBPath()
	if err != nil {
		return outputError(cmd, err)
	}
	owner, err := genstore.LockOwner(dir)
	if err != nil {
		return outputError(cmd, err)
	}
	res := CLILock{Dir: dir, Locked: owner != "", Owner: owner}
	if flagBreak && res.Locked {
		if err := genstore.BreakLock(dir); err != nil {
			return outputError(cmd, err)
		}
		res.Locked = false
		res.Broken = true
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "lock", Results: res})
}
