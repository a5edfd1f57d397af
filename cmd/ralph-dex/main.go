package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/raymyers/ralph-dex/pkg/cleanup"
	"github.com/raymyers/ralph-dex/pkg/dex"
	"github.com/raymyers/ralph-dex/pkg/loader"
	"github.com/raymyers/ralph-dex/pkg/names"
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:   "ralph-dex [file]",
		Short: "ralph-dex cleans up decoded method bodies",
		Long: `ralph-dex loads a program of decoded classes, removes instructions
that carry no meaning in source form, folds constructor calls and
constant loads, and prints the result.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, cmd.Flags())
			if err != nil {
				fmt.Fprintf(errOut, "ralph-dex: %v\n", err)
				return err
			}
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			return doCleanup(args[0], cfg, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().Bool("dump-before", false, "Print the program before cleanup")
	rootCmd.Flags().Int("workers", runtime.GOMAXPROCS(0), "Number of methods cleaned concurrently")
	rootCmd.Flags().String("log-level", "warn", "Diagnostic level (debug, info, warn, error)")
	rootCmd.Flags().Bool("no-color", false, "Disable colored output")
	rootCmd.Flags().String("config", "", "Config file (YAML or TOML)")
	rootCmd.Flags().StringP("output", "o", "", "Output file, - for stdout only (default <input>.clean)")
	rootCmd.Flags().StringSlice("reserved", nil, "Extra identifiers treated as reserved words")
	rootCmd.Flags().Bool("stats", false, "Print cleanup statistics")

	return rootCmd
}

// doCleanup loads the program, cleans every method and writes the result to
// the output file and to out
func doCleanup(filename string, cfg *Config, out, errOut io.Writer) error {
	log := newLogger(errOut, cfg)

	classes, err := loader.LoadFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-dex: %v\n", err)
		return err
	}

	printer := dex.NewPrinter(out)
	printer.Color = useColor(out, cfg)
	if cfg.DumpBefore {
		printer.PrintClasses(classes)
		fmt.Fprintln(out)
	}

	p := cleanup.New(
		cleanup.WithLogger(log),
		cleanup.WithWorkers(cfg.Workers),
		cleanup.WithNames(names.Java.With(cfg.Reserved...)),
	)
	st := p.RunClasses(classes)

	if cfg.Output != "-" {
		outputFilename := cfg.Output
		if outputFilename == "" {
			outputFilename = cleanOutputFilename(filename)
		}
		outFile, err := os.Create(outputFilename)
		if err != nil {
			fmt.Fprintf(errOut, "ralph-dex: error creating %s: %v\n", outputFilename, err)
			return err
		}
		defer outFile.Close()
		dex.NewPrinter(outFile).PrintClasses(classes)
	}

	// Also print to stdout for convenience
	printer.PrintClasses(classes)

	if cfg.Stats {
		fmt.Fprintf(errOut, "methods: %d, removed: %d, replaced: %d, fields: %d, renamed: %d, handlers: %d, inline failures: %d\n",
			st.Methods, st.Removed, st.Replaced, st.Fields, st.Renamed, st.HandlersRemoved, st.InlineFailures)
	}
	return nil
}

// cleanOutputFilename returns the output filename: prog.yaml -> prog.clean
func cleanOutputFilename(filename string) string {
	for _, ext := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(filename, ext) {
			return filename[:len(filename)-len(ext)] + ".clean"
		}
	}
	return filename + ".clean"
}
