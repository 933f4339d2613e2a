package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/schaermu/mtime-rewind/internal/config"
	"github.com/schaermu/mtime-rewind/internal/rewind"
	"github.com/schaermu/mtime-rewind/internal/state"
	"github.com/schaermu/mtime-rewind/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// resetFlags restores every flag of rootCmd and its bound global.
func resetFlags(t *testing.T) {
	t.Helper()
	origOutput := logOutput
	logOutput = io.Discard
	t.Cleanup(func() {
		logOutput = origOutput
		rootCmd.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)

	// a nil slice makes cobra fall back to os.Args
	if args == nil {
		args = []string{}
	}

	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSetupLogger(t *testing.T) {
	// Save original globals.
	origLevel := logLevel
	origFormat := logFormat
	t.Cleanup(func() {
		logLevel = origLevel
		logFormat = origFormat
	})

	for _, tc := range []struct {
		name      string
		logLevel  string
		logFormat string
		debug     bool
	}{
		{name: "debug/text", logLevel: "debug", logFormat: "text", debug: true},
		{name: "info/json", logLevel: "info", logFormat: "json"},
		{name: "warn/text", logLevel: "warn", logFormat: "text"},
		{name: "error/text", logLevel: "error", logFormat: "text"},
		{name: "unknown/text", logLevel: "unknown", logFormat: "text"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logLevel = tc.logLevel
			logFormat = tc.logFormat

			logger := setupLogger()
			if logger == nil {
				t.Fatal("setupLogger returned nil")
			}
			if got := logger.Enabled(t.Context(), slog.LevelDebug); got != tc.debug {
				t.Errorf("debug enabled = %v, want %v", got, tc.debug)
			}
		})
	}
}

func TestSetupLogger_JSONToLogOutput(t *testing.T) {
	origFormat, origOutput := logFormat, logOutput
	t.Cleanup(func() {
		logFormat = origFormat
		logOutput = origOutput
	})

	var buf bytes.Buffer
	logOutput = &buf
	logFormat = "json"

	setupLogger().Info("hello", "files", 3)

	if !strings.Contains(buf.String(), `"msg":"hello"`) || !strings.Contains(buf.String(), `"files":3`) {
		t.Errorf("unexpected log output: %s", buf.String())
	}
}

// flagCmd parses args against a throwaway command bound to the override flags.
func flagCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	origFormat, origWorkers, origCfg := stateFormat, workers, cfgFile
	t.Cleanup(func() {
		stateFormat, workers, cfgFile = origFormat, origWorkers, origCfg
	})

	cmd := &cobra.Command{}
	cmd.Flags().StringVar(&stateFormat, "state-format", "", "")
	cmd.Flags().IntVar(&workers, "workers", 0, "")
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatal(err)
	}
	return cmd
}

func TestLoadConfig_Defaults(t *testing.T) {
	cmd := flagCmd(t)
	cfgFile = ""

	cfg, err := loadConfig(cmd, t.TempDir(), discardLogger())
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.State.File != state.DefaultFileName || cfg.State.Format != state.FormatJSON {
		t.Errorf("unexpected defaults: %+v", cfg.State)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, config.FileName), []byte("scan:\n  workers: 8\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := flagCmd(t, "--state-format", "sqlite", "--workers", "2")
	cfgFile = ""

	cfg, err := loadConfig(cmd, root, discardLogger())
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.State.Format != state.FormatSQLite {
		t.Errorf("expected sqlite override, got %s", cfg.State.Format)
	}
	if cfg.Scan.Workers != 2 {
		t.Errorf("expected workers override 2, got %d", cfg.Scan.Workers)
	}
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	cmd := flagCmd(t, "--state-format", "xml")
	cfgFile = ""

	if _, err := loadConfig(cmd, t.TempDir(), discardLogger()); err == nil {
		t.Fatal("expected error for invalid state format override")
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	cmd := flagCmd(t)
	cfgFile = filepath.Join(t.TempDir(), "nonexistent.yaml")

	if _, err := loadConfig(cmd, t.TempDir(), discardLogger()); err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, cancel := setupSignalHandler()
	if ctx == nil {
		t.Fatal("setupSignalHandler returned nil context")
	}

	cancel()

	<-ctx.Done()
	if err := ctx.Err(); err == nil {
		t.Fatal("expected context error after cancel, got nil")
	}
}

func TestPrintSummary(t *testing.T) {
	report := &rewind.Report{
		Root: "/tree",
		Actions: []rewind.Action{
			{Kind: rewind.Rewind, Path: "a"},
			{Kind: rewind.Rewind, Path: "b"},
			{Kind: rewind.Unchanged, Path: "c"},
			{Kind: rewind.AdoptNew, Path: "d"},
		},
		Removed:     []string{"e"},
		ApplyErrors: []*rewind.FileError{{Path: "b"}},
	}

	var buf bytes.Buffer
	printSummary(&buf, report)

	got := buf.String()
	for _, want := range []string{"/tree", "1 rewound", "1 unchanged", "1 new", "0 changed", "1 removed", "1 failed"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary %q missing %q", got, want)
		}
	}

	buf.Reset()
	report.DryRun = true
	report.ApplyErrors = nil
	printSummary(&buf, report)
	if !strings.Contains(buf.String(), "[dry-run]") || !strings.Contains(buf.String(), "2 would rewind") {
		t.Errorf("unexpected dry-run summary %q", buf.String())
	}
	if strings.Contains(buf.String(), "failed") {
		t.Errorf("summary without failures mentions them: %q", buf.String())
	}
}

func TestRootCmd_RewindsTouchedFile(t *testing.T) {
	root := t.TempDir()
	base := testutil.Base()
	path := testutil.WriteFileAt(t, root, "src/main.c", "int main(){}", base)

	if _, err := execute(t, root); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, state.DefaultFileName)); err != nil {
		t.Fatalf("state file not written: %v", err)
	}

	testutil.Touch(t, path, time.Hour)

	out, err := execute(t, root)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !strings.Contains(out, "1 rewound") {
		t.Errorf("unexpected summary %q", out)
	}
	if got := testutil.Mtime(t, path); !got.Equal(base) {
		t.Errorf("mtime = %v, want %v", got, base)
	}
}

func TestRootCmd_DryAlias(t *testing.T) {
	root := t.TempDir()
	base := testutil.Base()
	path := testutil.WriteFileAt(t, root, "a.txt", "x", base)

	if _, err := execute(t, root); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	touched := testutil.Touch(t, path, time.Minute)

	for _, flag := range []string{"--dry", "--dry-run"} {
		t.Run(flag, func(t *testing.T) {
			if dryRun {
				t.Fatal("dry-run still set from an earlier execution")
			}

			out, err := execute(t, flag, root)
			if err != nil {
				t.Fatalf("%s run failed: %v", flag, err)
			}
			if !dryRun {
				t.Errorf("%s did not enable dry-run", flag)
			}
			if !strings.Contains(out, "[dry-run]") {
				t.Errorf("%s: unexpected summary %q", flag, out)
			}
			if got := testutil.Mtime(t, path); !got.Equal(touched) {
				t.Errorf("%s changed mtime to %v", flag, got)
			}
		})
	}
}

func TestRootCmd_SQLiteState(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, "a.txt", "x")

	if _, err := execute(t, "--state-format", "sqlite", root); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// a JSON reader must not accept the SQLite file
	store := state.NewJSONStore(root, state.DefaultFileName, discardLogger())
	if _, err := store.Load(t.Context()); err == nil {
		t.Error("expected JSON load of SQLite state to fail")
	}
}

func TestRootCmd_StructuralErrors(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		if _, err := execute(t, filepath.Join(t.TempDir(), "missing")); err == nil {
			t.Fatal("expected error for missing root")
		}
	})

	t.Run("corrupt state", func(t *testing.T) {
		root := t.TempDir()
		if err := os.WriteFile(filepath.Join(root, state.DefaultFileName), []byte("{"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := execute(t, root); err == nil {
			t.Fatal("expected error for corrupt state")
		}
	})

	t.Run("no arguments", func(t *testing.T) {
		if _, err := execute(t); err == nil {
			t.Fatal("expected error without root argument")
		}
	})
}

func TestRootCmd_Version(t *testing.T) {
	out, err := execute(t, "--version")
	if err != nil {
		t.Fatalf("--version failed: %v", err)
	}
	if !strings.Contains(out, "mtime-rewind "+version) {
		t.Errorf("unexpected version output %q", out)
	}
}
