package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/raymyers/ralph-dex/pkg/loader"
)

const sampleProgram = `
classes:
  - name: com.example.Point
    fields:
      - {name: UNIT, type: float, static: true, final: true, value: "1.0"}
    methods:
      - name: <init>
        proto: (F)V
        this: 0
        params: [{reg: 1, name: float, type: float}]
        blocks:
          - insns:
              - invoke-direct {r0}, java.lang.Object.<init>()V
              - iput r1, r0, com.example.Point.x
              - return
      - name: unit
        proto: ()F
        static: true
        blocks:
          - succ: [1]
            insns: [nop, r0 = const float 1.0]
          - insns: [return r0]
`

// writeProgram stores a program in a temp dir and returns its path
func writeProgram(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func TestVersion(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}
}

func TestFlagsExist(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)

	for _, name := range []string{"dump-before", "workers", "log-level", "no-color", "config", "output", "reserved", "stats"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected flag --%s to exist", name)
		}
	}
	if f := cmd.Flags().ShorthandLookup("o"); f == nil || f.Name != "output" {
		t.Error("expected -o to be short for --output")
	}
}

func TestNoArgsPrintsHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("expected usage, got %q", out.String())
	}
}

func TestCleanup(t *testing.T) {
	path := writeProgram(t, sampleProgram)

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error, got %v\n%s", err, errOut.String())
	}

	output := out.String()
	for _, want := range []string{
		"class com.example.Point extends java.lang.Object {",
		"<init>(F)V(float r1 float_) {",
		"iput r1, r0, com.example.Point.x",
		"r0 = sget com.example.Point.UNIT:float",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q\nGot:\n%s", want, output)
		}
	}
	for _, unwanted := range []string{"nop", "java.lang.Object.<init>", "const float"} {
		if strings.Contains(output, unwanted) {
			t.Errorf("expected output NOT to contain %q\nGot:\n%s", unwanted, output)
		}
	}

	written, err := os.ReadFile(cleanOutputFilename(path))
	if err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if string(written) != output {
		t.Errorf("output file differs from stdout\nFile:\n%s\nStdout:\n%s", written, output)
	}
}

func TestStatsFlag(t *testing.T) {
	path := writeProgram(t, sampleProgram)

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--stats", "-o", "-", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(errOut.String(), "methods: 2,") {
		t.Errorf("expected stats, got %q", errOut.String())
	}
}

func TestDumpBefore(t *testing.T) {
	path := writeProgram(t, sampleProgram)

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--dump-before", "-o", "-", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	output := out.String()
	if strings.Count(output, "class com.example.Point") != 2 {
		t.Errorf("expected the class before and after cleanup\nGot:\n%s", output)
	}
	before := strings.Index(output, "nop")
	after := strings.LastIndex(output, "class com.example.Point")
	if before < 0 || before > after {
		t.Errorf("expected the original body first\nGot:\n%s", output)
	}
}

func TestOutputFlag(t *testing.T) {
	path := writeProgram(t, sampleProgram)
	dest := filepath.Join(t.TempDir(), "result.txt")

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--output", dest, path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("expected %s to be written: %v", dest, err)
	}
	if _, err := os.Stat(cleanOutputFilename(path)); err == nil {
		t.Errorf("expected default output file not to be written")
	}
}

func TestReservedFlag(t *testing.T) {
	path := writeProgram(t, `
classes:
  - name: A
    methods:
      - name: f
        proto: (I)V
        static: true
        params: [{reg: 0, name: record, type: int}]
        blocks: [{insns: [return]}]
`)

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--reserved", "record,yield", "-o", "-", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "int r0 record_") {
		t.Errorf("expected parameter to be renamed\nGot:\n%s", out.String())
	}
}

func TestLoadFailure(t *testing.T) {
	path := writeProgram(t, "classes: [{name: A, methods: [{name: f, proto: ()V}]}]")

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{path})
	err := cmd.Execute()
	if !errors.Is(err, loader.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if !strings.Contains(errOut.String(), "ralph-dex:") {
		t.Errorf("expected error message, got %q", errOut.String())
	}
}

func TestMissingFile(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.yaml")})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConfigResolution(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ralph.yaml")
	if err := os.WriteFile(cfgPath, []byte("workers: 3\nlog-level: debug\nreserved: [record]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RALPH_DEX_NO_COLOR", "true")

	cmd := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	if err := cmd.Flags().Parse([]string{"--config", cfgPath, "--log-level", "info"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(viper.New(), cmd.Flags())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("expected workers from config file, got %d", cfg.Workers)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected flag to override config file, got %q", cfg.LogLevel)
	}
	if !cfg.NoColor {
		t.Error("expected no-color from environment")
	}
	if len(cfg.Reserved) != 1 || cfg.Reserved[0] != "record" {
		t.Errorf("expected reserved words from config file, got %v", cfg.Reserved)
	}
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad log level", []string{"--log-level", "loud"}},
		{"no workers", []string{"--workers", "0"}},
		{"missing config", []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			cmd.SetArgs(tt.args)
			if err := cmd.Execute(); err == nil {
				t.Errorf("expected error for %v", tt.args)
			}
		})
	}
}

func TestCleanOutputFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"prog.yaml", "prog.clean"},
		{"dir/prog.yml", "dir/prog.clean"},
		{"prog", "prog.clean"},
	}
	for _, tt := range tests {
		if got := cleanOutputFilename(tt.input); got != tt.expected {
			t.Errorf("cleanOutputFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
