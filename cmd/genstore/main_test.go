package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/genstore"
)

// run executes the root command with args and returns what it wrote to
// stdout. Flags are reset first since cobra keeps their values between runs.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	flagDB, flagConfig, flagFormat, flagBackend = "", "", "json", ""
	flagReadOnly, flagDebug = false, false
	flagByID, flagSorted, flagKinds = false, false, nil
	flagBreak, flagNoMagic, flagList = false, false, false
	errorHandled = false

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func decodeResult(t *testing.T, out string) map[string]any {
	t.Helper()
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	return res
}

const fixture = `{"_kind": "person", "handle": "p1", "gramps_id": "I0001", "primary_name": {"first_name": "Ann", "surname": "Smith"}}
{"_kind": "person", "primary_name": {"first_name": "Bob", "surname": "Jones"}}

{"_kind": "family", "handle": "f1", "gramps_id": "F0001", "father": "p1"}
`

func initStore(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "tree")
	_, err := run(t, "init", "--db", dir)
	require.NoError(t, err)
	return dir
}

func importFixture(t *testing.T, dir string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))
	out, err := run(t, "import", "--db", dir, path)
	require.NoError(t, err)

	res := decodeResult(t, out)["results"].(map[string]any)
	assert.EqualValues(t, 1, res["added"])
	assert.EqualValues(t, 2, res["updated"])
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.ErrorContains(t, validateFormat("xml"), "json or text")
}

func TestInit_CreatesStore(t *testing.T) {
	dir := initStore(t)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	out, err := run(t, "stats", "--db", dir)
	require.NoError(t, err)
	res := decodeResult(t, out)["results"].(map[string]any)
	assert.EqualValues(t, genstore.SchemaVersion, res["version"])
	assert.EqualValues(t, 0, res["surnames"])
}

func TestStats_MissingStore(t *testing.T) {
	out, err := run(t, "stats", "--db", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, decodeResult(t, out)["error"], "genstore init")
}

func TestImport_ThenQuery(t *testing.T) {
	dir := initStore(t)
	importFixture(t, dir)

	out, err := run(t, "stats", "--db", dir)
	require.NoError(t, err)
	res := decodeResult(t, out)["results"].(map[string]any)
	counts := res["counts"].(map[string]any)
	assert.EqualValues(t, 2, counts["person"])
	assert.EqualValues(t, 1, counts["family"])
	assert.EqualValues(t, 0, counts["note"])
	assert.EqualValues(t, 2, res["surnames"])

	out, err = run(t, "get", "--db", dir, "--id", "person", "I0001")
	require.NoError(t, err)
	obj := decodeResult(t, out)["results"].(map[string]any)
	assert.Equal(t, "p1", obj["handle"])
	assert.Equal(t, "Ann", obj["object"].(map[string]any)["primary_name"].(map[string]any)["first_name"])

	out, err = run(t, "backlinks", "--db", dir, "p1")
	require.NoError(t, err)
	links := decodeResult(t, out)["results"].([]any)
	require.Len(t, links, 1)
	assert.Equal(t, "family", links[0].(map[string]any)["kind"])
	assert.Equal(t, "f1", links[0].(map[string]any)["handle"])

	out, err = run(t, "backlinks", "--db", dir, "--kind", "person", "p1")
	require.NoError(t, err)
	assert.Empty(t, decodeResult(t, out)["results"])

	out, err = run(t, "surnames", "--db", dir, "--format", "text")
	require.NoError(t, err)
	assert.Equal(t, "Jones\nSmith\n", out)
}

func TestList_Sorted(t *testing.T) {
	dir := initStore(t)
	importFixture(t, dir)

	out, err := run(t, "list", "--db", dir, "--sorted", "person")
	require.NoError(t, err)
	rows := decodeResult(t, out)["results"].([]any)
	require.Len(t, rows, 2)
	// Jones sorts before Smith.
	assert.Equal(t, "p1", rows[1].(map[string]any)["handle"])
	assert.Equal(t, "I0001", rows[1].(map[string]any)["gramps_id"])
	assert.NotEmpty(t, rows[0].(map[string]any)["gramps_id"])
}

func TestGet_Missing(t *testing.T) {
	dir := initStore(t)

	out, err := run(t, "get", "--db", dir, "note", "missing")
	require.Error(t, err)
	assert.Equal(t, "get", decodeResult(t, out)["command"])
	assert.Contains(t, decodeResult(t, out)["error"], `no note "missing"`)

	_, err = run(t, "get", "--db", dir, "widget", "x")
	assert.ErrorContains(t, err, "unknown object kind")
}

func TestExport_RoundTrip(t *testing.T) {
	src := initStore(t)
	importFixture(t, src)

	path := filepath.Join(t.TempDir(), "export.jsonl")
	_, err := run(t, "export", "--db", src, path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 3)

	dst := initStore(t)
	out, err := run(t, "import", "--db", dst, path)
	require.NoError(t, err)
	res := decodeResult(t, out)["results"].(map[string]any)
	assert.EqualValues(t, 3, res["updated"])

	out, err = run(t, "get", "--db", dst, "family", "f1")
	require.NoError(t, err)
	fam := decodeResult(t, out)["results"].(map[string]any)["object"].(map[string]any)
	assert.Equal(t, "p1", fam["father"])
	assert.Equal(t, "F0001", fam["gramps_id"])

	out, err = run(t, "backlinks", "--db", dst, "p1")
	require.NoError(t, err)
	assert.Len(t, decodeResult(t, out)["results"], 1)
}

func TestImport_BadLine(t *testing.T) {
	dir := initStore(t)
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"primary_name": {}}`+"\n"), 0o644))

	_, err := run(t, "import", "--db", dir, path)
	assert.ErrorContains(t, err, "line 1: missing _kind")
}

func TestReindexAndRebuild(t *testing.T) {
	dir := initStore(t)
	importFixture(t, dir)

	_, err := run(t, "reindex", "--db", dir)
	require.NoError(t, err)
	_, err = run(t, "rebuild", "--db", dir)
	require.NoError(t, err)

	out, err := run(t, "backlinks", "--db", dir, "p1")
	require.NoError(t, err)
	assert.Len(t, decodeResult(t, out)["results"], 1)
}

func TestLock_ShowAndBreak(t *testing.T) {
	dir := initStore(t)

	out, err := run(t, "lock", "--db", dir)
	require.NoError(t, err)
	assert.Equal(t, false, decodeResult(t, out)["results"].(map[string]any)["locked"])

	require.NoError(t, os.WriteFile(filepath.Join(dir, genstore.LockFile), []byte("ann@attic\n"), 0o644))
	out, err = run(t, "lock", "--db", dir, "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "locked by ann@attic")

	out, err = run(t, "lock", "--db", dir, "--break")
	require.NoError(t, err)
	res := decodeResult(t, out)["results"].(map[string]any)
	assert.Equal(t, true, res["broken"])
	assert.NoFileExists(t, filepath.Join(dir, genstore.LockFile))
}

func TestScript_BuiltinReport(t *testing.T) {
	dir := initStore(t)
	importFixture(t, dir)

	out, err := run(t, "script", "--list")
	require.NoError(t, err)
	assert.Equal(t, []any{"orphans", "summary"}, decodeResult(t, out)["results"])

	out, err = run(t, "script", "--db", dir, "summary")
	require.NoError(t, err)
	res := decodeResult(t, out)["results"].(map[string]any)
	assert.EqualValues(t, 3, res["total"])
	assert.EqualValues(t, 2, res["surnames"])
}

func TestScript_FromDisk(t *testing.T) {
	dir := initStore(t)
	importFixture(t, dir)

	path := filepath.Join(t.TempDir(), "people.risor")
	require.NoError(t, os.WriteFile(path, []byte(`count("person") * 10`), 0o644))

	out, err := run(t, "script", "--db", dir, path)
	require.NoError(t, err)
	assert.EqualValues(t, 20, decodeResult(t, out)["results"])
}

func TestConfig_InvalidBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: paper\n"), 0o644))

	_, err := run(t, "stats", "--config", path, "--db", t.TempDir())
	assert.ErrorContains(t, err, `unknown backend "paper"`)
}

func TestConfig_IDFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id_formats:\n  person: \"P-%d\"\n"), 0o644))
	dir := initStore(t)

	src := filepath.Join(t.TempDir(), "one.jsonl")
	require.NoError(t, os.WriteFile(src, []byte(`{"_kind": "person", "primary_name": {"surname": "Smith"}}`+"\n"), 0o644))
	_, err := run(t, "import", "--config", path, "--db", dir, src)
	require.NoError(t, err)

	out, err := run(t, "list", "--db", dir, "person")
	require.NoError(t, err)
	rows := decodeResult(t, out)["results"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "P-0", rows[0].(map[string]any)["gramps_id"])
}
