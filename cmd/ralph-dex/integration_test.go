package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-dex/pkg/cleanup"
	"github.com/raymyers/ralph-dex/pkg/dex"
	"github.com/raymyers/ralph-dex/pkg/loader"
)

// CleanupTestSpec is a single end-to-end cleanup case
type CleanupTestSpec struct {
	Name        string   `yaml:"name"`
	Input       string   `yaml:"input"`
	Expect      []string `yaml:"expect"`       // Strings that must appear in output
	ExpectOrder []string `yaml:"expect_order"` // Strings that must appear in this order
	ExpectNot   []string `yaml:"expect_not"`   // Strings that must NOT appear in output
	Skip        string   `yaml:"skip,omitempty"`
}

// CleanupTestFile is the cleanup.yaml file structure
type CleanupTestFile struct {
	Tests []CleanupTestSpec `yaml:"tests"`
}

func loadCleanupTests(t *testing.T) []CleanupTestSpec {
	t.Helper()
	data, err := os.ReadFile("../../testdata/cleanup.yaml")
	if err != nil {
		t.Fatalf("failed to read cleanup.yaml: %v", err)
	}
	var testFile CleanupTestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse cleanup.yaml: %v", err)
	}
	return testFile.Tests
}

// TestCleanupYAML runs the CLI on each program in testdata/cleanup.yaml
func TestCleanupYAML(t *testing.T) {
	for _, tc := range loadCleanupTests(t) {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}

			tmpDir := t.TempDir()
			testFile := filepath.Join(tmpDir, "test.yaml")
			if err := os.WriteFile(testFile, []byte(tc.Input), 0644); err != nil {
				t.Fatalf("failed to write test file: %v", err)
			}

			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			cmd.SetArgs([]string{"--no-color", "-o", "-", testFile})
			if err := cmd.Execute(); err != nil {
				t.Fatalf("ralph-dex failed: %v\nStderr: %s", err, errOut.String())
			}
			output := out.String()

			for _, exp := range tc.Expect {
				if !strings.Contains(output, exp) {
					t.Errorf("expected output to contain %q\nGot:\n%s", exp, output)
				}
			}

			lastIdx := -1
			for _, exp := range tc.ExpectOrder {
				idx := strings.Index(output[lastIdx+1:], exp)
				if idx < 0 {
					t.Errorf("expected %q to appear after previous pattern\nGot:\n%s", exp, output)
					break
				}
				lastIdx += idx + 1
			}

			for _, exp := range tc.ExpectNot {
				if strings.Contains(output, exp) {
					t.Errorf("expected output NOT to contain %q\nGot:\n%s", exp, output)
				}
			}
		})
	}
}

// TestCleanupYAMLIdempotent checks that a second cleanup of each program changes nothing
func TestCleanupYAMLIdempotent(t *testing.T) {
	for _, tc := range loadCleanupTests(t) {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}
			classes, err := loader.Decode([]byte(tc.Input))
			if err != nil {
				t.Fatalf("failed to load: %v", err)
			}

			p := cleanup.New(cleanup.WithWorkers(2))
			p.RunClasses(classes)
			var first bytes.Buffer
			dex.NewPrinter(&first).PrintClasses(classes)

			st := p.RunClasses(classes)
			if st.Changed() {
				t.Errorf("expected no change on second run, got %+v", st)
			}
			var second bytes.Buffer
			dex.NewPrinter(&second).PrintClasses(classes)
			if first.String() != second.String() {
				t.Errorf("output changed on second run\nFirst:\n%s\nSecond:\n%s", first.String(), second.String())
			}
		})
	}
}
