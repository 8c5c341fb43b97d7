// ABOUTME: Tests for CLI helper functions and command execution.
// ABOUTME: Runs the root command end to end against a temporary data dir.
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is a long string", 10, "this is..."},
		{"", 5, ""},
	}

	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestPadRight(t *testing.T) {
	tests := []struct {
		input  string
		length int
		want   string
	}{
		{"abc", 6, "abc   "},
		{"abcdef", 3, "abcdef"},
		{"", 2, "  "},
	}

	for _, tt := range tests {
		if got := padRight(tt.input, tt.length); got != tt.want {
			t.Errorf("padRight(%q, %d) = %q, want %q", tt.input, tt.length, got, tt.want)
		}
	}
}

func TestOptionalFormatters(t *testing.T) {
	minutes := 452
	steps := 8000
	kcal := 2012.6

	if got := fmtMinutes(&minutes); got != "7h 32m" {
		t.Errorf("fmtMinutes(452) = %q", got)
	}
	if got := fmtMinutes(nil); got != "-" {
		t.Errorf("fmtMinutes(nil) = %q", got)
	}
	if got := fmtInt(&steps); got != "8000" {
		t.Errorf("fmtInt(8000) = %q", got)
	}
	if got := fmtFloat(&kcal, 0); got != "2013" {
		t.Errorf("fmtFloat(2012.6, 0) = %q", got)
	}
	if got := fmtFloat(nil, 2); got != "-" {
		t.Errorf("fmtFloat(nil) = %q", got)
	}
	if got := shortID("01HQ7Z3V8K2M4N6P8R0S"); got != "01HQ7Z3V" {
		t.Errorf("shortID = %q", got)
	}
}

func TestParseDateFlag(t *testing.T) {
	d, err := parseDateFlag("date", "2024-03-10")
	if err != nil {
		t.Fatalf("parseDateFlag: %v", err)
	}
	if d != (civil.Date{Year: 2024, Month: 3, Day: 10}) {
		t.Errorf("parseDateFlag = %v", d)
	}

	d, err = parseDateFlag("from", "")
	if err != nil || d.IsValid() {
		t.Errorf("empty flag should give zero date, got %v, %v", d, err)
	}

	_, err = parseDateFlag("to", "03/10/2024")
	if err == nil || !strings.Contains(err.Error(), "--to") {
		t.Errorf("expected error naming the flag, got %v", err)
	}
}

func TestCommandsRegistered(t *testing.T) {
	names := []string{
		"ingest", "summary", "records", "sleep", "nutrition", "imports",
		"sources", "export", "import", "migrate", "config", "serve", "mcp",
		"install-skill",
	}
	for _, name := range names {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("command %q not registered", name)
		}
	}

	for _, sub := range [][]string{
		{"summary", "rebuild"}, {"summary", "show"}, {"summary", "list"}, {"summary", "week"},
		{"imports", "list"}, {"imports", "show"}, {"config", "show"}, {"config", "init"},
	} {
		cmd, _, err := rootCmd.Find(sub)
		if err != nil || cmd.Name() != sub[1] {
			t.Errorf("subcommand %v not registered", sub)
		}
	}
}

func TestCommandFlags(t *testing.T) {
	checks := map[*cobra.Command][]string{
		ingestCmd:         {"source", "dry-run", "errors"},
		summaryRebuildCmd: {"date", "from", "to", "all"},
		summaryListCmd:    {"from", "to", "limit"},
		recordsCmd:        {"type", "source", "date", "from", "to", "limit"},
		exportCmd:         {"output", "type", "since", "until"},
		migrateCmd:        {"to", "to-dsn", "to-dir", "dry-run"},
		installSkillCmd:   {"yes"},
	}
	for cmd, flags := range checks {
		for _, name := range flags {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("%s missing --%s", cmd.Name(), name)
			}
		}
	}

	for _, name := range []string{"config", "backend", "data-dir", "user", "log-level"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("root missing --%s", name)
		}
	}
}

// resetFlags restores every flag to its default so each run starts clean.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func setupCLIEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{"VITALS_BACKEND", "VITALS_DATA_DIR", "VITALS_USER", "VITALS_LOCK", "VITALS_S3_ENDPOINT"} {
		t.Setenv(key, "")
	}
	return t.TempDir()
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	_ = closeApp()
	return out.String(), err
}

func writeCronometerExport(t *testing.T, dir string) {
	t.Helper()
	csv := "Date,Energy (kcal),Protein (g),Carbs (g),Fat (g)\n" +
		"2024-03-10,2000,150,200,70\n" +
		"2024-03-11,1800,120,180,60\n"
	if err := os.WriteFile(filepath.Join(dir, "dailysummary.csv"), []byte(csv), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func TestIngestAndQueryCommands(t *testing.T) {
	export := setupCLIEnv(t)
	writeCronometerExport(t, export)

	out, err := runCLI(t, "ingest", export, "--dry-run")
	if err != nil {
		t.Fatalf("ingest --dry-run failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Using adapter: cronometer") || !strings.Contains(out, "Parsed 2 records") {
		t.Errorf("unexpected dry run output:\n%s", out)
	}

	out, err = runCLI(t, "summary", "list")
	if err != nil {
		t.Fatalf("summary list failed: %v", err)
	}
	if !strings.Contains(out, "No daily summaries found.") {
		t.Errorf("dry run should not store anything:\n%s", out)
	}

	out, err = runCLI(t, "ingest", export, "--source", "cronometer")
	if err != nil {
		t.Fatalf("ingest failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Import completed") || !strings.Contains(out, "Records created: 2") {
		t.Errorf("unexpected ingest output:\n%s", out)
	}

	out, err = runCLI(t, "ingest", export)
	if err != nil {
		t.Fatalf("re-ingest failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Records skipped: 2") {
		t.Errorf("re-import should skip existing records:\n%s", out)
	}

	out, err = runCLI(t, "summary", "show", "2024-03-10")
	if err != nil {
		t.Fatalf("summary show failed: %v", err)
	}
	if !strings.Contains(out, "Calories   2000 kcal") {
		t.Errorf("summary missing calories:\n%s", out)
	}

	out, err = runCLI(t, "summary", "show", "2024-01-01")
	if err != nil {
		t.Fatalf("summary show for empty day failed: %v", err)
	}
	if !strings.Contains(out, "No summary for 2024-01-01") {
		t.Errorf("expected missing summary hint:\n%s", out)
	}

	out, err = runCLI(t, "summary", "list", "--from", "2024-03-01")
	if err != nil {
		t.Fatalf("summary list failed: %v", err)
	}
	if !strings.Contains(out, "2024-03-10") || !strings.Contains(out, "2024-03-11") {
		t.Errorf("summary list missing dates:\n%s", out)
	}

	out, err = runCLI(t, "nutrition", "--date", "2024-03-11")
	if err != nil {
		t.Fatalf("nutrition failed: %v", err)
	}
	if !strings.Contains(out, "2024-03-11") || strings.Contains(out, "2024-03-10") {
		t.Errorf("nutrition --date should return one day:\n%s", out)
	}

	out, err = runCLI(t, "summary", "week", "2024-03-13")
	if err != nil {
		t.Fatalf("summary week failed: %v", err)
	}
	if !strings.Contains(out, "Week 2024-03-11 to 2024-03-17") {
		t.Errorf("unexpected week header:\n%s", out)
	}

	if _, err := runCLI(t, "summary", "rebuild", "--all"); err != nil {
		t.Errorf("summary rebuild --all failed: %v", err)
	}
	if _, err := runCLI(t, "summary", "rebuild", "--from", "2024-03-10"); err == nil {
		t.Error("expected error for --from without --to")
	}
	if _, err := runCLI(t, "summary", "rebuild"); err == nil {
		t.Error("expected error when no rebuild target is given")
	}
}

func TestImportsCommands(t *testing.T) {
	export := setupCLIEnv(t)
	writeCronometerExport(t, export)

	if out, err := runCLI(t, "ingest", export); err != nil {
		t.Fatalf("ingest failed: %v\n%s", err, out)
	}

	out, err := runCLI(t, "imports")
	if err != nil {
		t.Fatalf("imports failed: %v", err)
	}
	if !strings.Contains(out, "cronometer") || !strings.Contains(out, "completed") {
		t.Errorf("imports list missing batch:\n%s", out)
	}
	prefix := strings.Fields(out)[0]

	out, err = runCLI(t, "imports", "show", prefix)
	if err != nil {
		t.Fatalf("imports show failed: %v", err)
	}
	if !strings.Contains(out, "Records created: 2") {
		t.Errorf("imports show missing counts:\n%s", out)
	}

	if _, err := runCLI(t, "imports", "show", "zzzzzzzz"); err == nil {
		t.Error("expected error for unknown batch prefix")
	}

	out, err = runCLI(t, "sources")
	if err != nil {
		t.Fatalf("sources failed: %v", err)
	}
	for _, name := range []string{"fitbit", "apple_health", "cronometer"} {
		if !strings.Contains(out, name) {
			t.Errorf("sources missing %s:\n%s", name, out)
		}
	}
}

func TestIngestValidation(t *testing.T) {
	setupCLIEnv(t)

	if _, err := runCLI(t, "ingest", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing path")
	}
	if _, err := runCLI(t, "ingest", t.TempDir(), "--source", "polar"); err == nil {
		t.Error("expected error for unknown source")
	}
	if _, err := runCLI(t, "records", "--type", "mood"); err == nil {
		t.Error("expected error for unknown metric type")
	}
	if _, err := runCLI(t, "records", "--from", "yesterday"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	export := setupCLIEnv(t)
	writeCronometerExport(t, export)
	if out, err := runCLI(t, "ingest", export); err != nil {
		t.Fatalf("ingest failed: %v\n%s", err, out)
	}

	backup := filepath.Join(t.TempDir(), "backup.json")
	if _, err := runCLI(t, "export", "json", "-o", backup); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if info, err := os.Stat(backup); err != nil || info.Size() == 0 {
		t.Fatalf("backup not written: %v", err)
	}

	out, err := runCLI(t, "export", "markdown")
	if err != nil {
		t.Fatalf("markdown export failed: %v", err)
	}
	if !strings.Contains(out, "2024-03-10") {
		t.Errorf("markdown export missing dates:\n%s", out)
	}

	if _, err := runCLI(t, "export", "csv"); err == nil {
		t.Error("expected error for unknown export format")
	}

	fresh := t.TempDir()
	out, err = runCLI(t, "--data-dir", fresh, "import", backup)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out, "1 batches, 0 metrics, 0 sleep sessions, 2 nutrition days, 2 summaries (0 skipped)") {
		t.Errorf("unexpected import counts:\n%s", out)
	}

	out, err = runCLI(t, "--data-dir", fresh, "summary", "show", "2024-03-11")
	if err != nil {
		t.Fatalf("summary show failed: %v", err)
	}
	if !strings.Contains(out, "Calories   1800 kcal") {
		t.Errorf("imported summary missing calories:\n%s", out)
	}
}

func TestMigrateCommand(t *testing.T) {
	export := setupCLIEnv(t)
	writeCronometerExport(t, export)
	if out, err := runCLI(t, "ingest", export); err != nil {
		t.Fatalf("ingest failed: %v\n%s", err, out)
	}

	if _, err := runCLI(t, "migrate"); err == nil {
		t.Error("expected error without --to")
	}
	if _, err := runCLI(t, "migrate", "--to", "sqlite"); err == nil {
		t.Error("expected error when destination is the source")
	}

	dest := t.TempDir()
	out, err := runCLI(t, "migrate", "--to", "badger", "--to-dir", dest, "--dry-run")
	if err != nil {
		t.Fatalf("migrate --dry-run failed: %v", err)
	}
	if !strings.Contains(out, "2 nutrition days") {
		t.Errorf("unexpected dry run counts:\n%s", out)
	}

	out, err = runCLI(t, "migrate", "--to", "badger", "--to-dir", dest)
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out, "1 batches, 0 metrics, 0 sleep sessions, 2 nutrition days, 2 summaries") {
		t.Errorf("unexpected migrate counts:\n%s", out)
	}

	out, err = runCLI(t, "--backend", "badger", "--data-dir", dest, "nutrition")
	if err != nil {
		t.Fatalf("reading badger store failed: %v", err)
	}
	if !strings.Contains(out, "2024-03-10") {
		t.Errorf("migrated nutrition missing:\n%s", out)
	}
}

func TestConfigCommands(t *testing.T) {
	setupCLIEnv(t)

	out, err := runCLI(t, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, "backend: sqlite") {
		t.Errorf("config show missing backend:\n%s", out)
	}

	if _, err := runCLI(t, "config", "init"); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	path := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "vitals", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if _, err := runCLI(t, "config", "init"); err == nil {
		t.Error("expected error when config exists without --force")
	}
	if _, err := runCLI(t, "config", "init", "--force"); err != nil {
		t.Errorf("config init --force failed: %v", err)
	}

	if _, err := runCLI(t, "--backend", "mongo", "sources"); err == nil {
		t.Error("expected error for unknown backend")
	}
}
