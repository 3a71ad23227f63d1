// Command decaymeter measures per-band reverberation time and the dominant
// resonance of audio recordings.
//
// Usage:
//
//	decaymeter [flags] FILE...
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/RMahshie/decaymeter/internal/acoustics"
	"github.com/RMahshie/decaymeter/internal/decoder"
	"github.com/RMahshie/decaymeter/pkg/models"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], afero.NewOsFs(), os.Stdout, os.Stderr))
}

type options struct {
	format     string
	jobs       int
	bands      []float64
	targetRate int
	exportDir  string
	verbose    bool
}

// fileResult is one input's outcome, in input order
type fileResult struct {
	File   string                 `json:"file"`
	Report *models.AnalysisReport `json:"report,omitempty"`
	Error  string                 `json:"error,omitempty"`

	err error
}

func run(ctx context.Context, args []string, fs afero.Fs, stdout, stderr io.Writer) int {
	var opts options
	flags := pflag.NewFlagSet("decaymeter", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVarP(&opts.format, "format", "f", "table", "output format: table|json")
	flags.IntVarP(&opts.jobs, "jobs", "j", runtime.NumCPU(), "files analyzed concurrently")
	flags.Float64SliceVar(&opts.bands, "bands", acoustics.DefaultBandEdges, "four band edges in Hz for Low, Mid and High")
	flags.IntVar(&opts.targetRate, "target-rate", 0, "resample to this rate in Hz before analysis (0 keeps the native rate)")
	flags.StringVar(&opts.exportDir, "export-wav", "", "write each decoded mono clip as 16-bit WAV into this directory")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log per-band details")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "decaymeter measures RT60 and resonance of recordings\n\n")
		fmt.Fprintf(stderr, "Usage:\n  decaymeter [flags] FILE...\n\nFlags:\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	files := flags.Args()
	if len(files) == 0 {
		flags.Usage()
		return 2
	}
	if opts.format != "table" && opts.format != "json" {
		fmt.Fprintf(stderr, "unknown format %q\n", opts.format)
		return 2
	}
	if opts.jobs < 1 {
		opts.jobs = 1
	}

	level := zerolog.WarnLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(level).With().Timestamp().Logger()

	bands, err := acoustics.BandsFromEdges(opts.bands)
	if err != nil {
		fmt.Fprintf(stderr, "invalid --bands: %v\n", err)
		return 2
	}
	cfg := acoustics.DefaultConfig()
	cfg.Bands = bands

	dec := decoder.New(decoder.Options{TargetSampleRate: opts.targetRate}, logger)
	analyzer, err := acoustics.NewAnalyzer(cfg, dec, fs, logger)
	if err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return 2
	}

	if opts.exportDir != "" {
		if err := fs.MkdirAll(opts.exportDir, 0o755); err != nil {
			fmt.Fprintf(stderr, "failed to create %s: %v\n", opts.exportDir, err)
			return 1
		}
	}

	var exports []string
	if opts.exportDir != "" {
		exports = exportPaths(opts.exportDir, files)
	}

	results := make([]fileResult, len(files))
	p := pool.New().WithMaxGoroutines(opts.jobs)
	for i, file := range files {
		export := ""
		if exports != nil {
			export = exports[i]
		}
		p.Go(func() {
			results[i] = analyzeFile(ctx, analyzer, fs, file, export)
		})
	}
	p.Wait()

	failed := false
	for _, r := range results {
		if r.err != nil {
			failed = true
			logger.Error().Err(r.err).Str("file", r.File).Msg("Analysis failed")
		}
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(stderr, "failed to write output: %v\n", err)
			return 1
		}
	default:
		writeTable(stdout, results)
	}

	if failed {
		return 1
	}
	return 0
}

// analyzeFile analyzes one input and, when export is set, writes its
// decoded clip there.
func analyzeFile(ctx context.Context, analyzer *acoustics.Analyzer, fs afero.Fs, file, export string) fileResult {
	res := fileResult{File: file}

	result, err := analyzer.Analyze(ctx, file)
	if err != nil {
		res.err = err
		res.Error = err.Error()
		return res
	}

	report := models.NewAnalysisReport(result)
	res.Report = &report

	if export != "" {
		if err := exportClip(fs, export, result.Clip); err != nil {
			res.err = err
			res.Error = err.Error()
		}
	}
	return res
}

// exportPaths names one export per input. Inputs sharing a base name get
// -2, -3, ... suffixes in input order so no export overwrites another.
func exportPaths(dir string, files []string) []string {
	used := make(map[string]bool, len(files))
	out := make([]string, len(files))
	for i, file := range files {
		base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		name := base
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s-%d", base, n)
		}
		used[name] = true
		out[i] = filepath.Join(dir, name+".mono.wav")
	}
	return out
}

func exportClip(fs afero.Fs, out string, clip *models.AudioClip) error {
	f, err := fs.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := decoder.EncodeWAV(f, clip); err != nil {
		f.Close()
		return fmt.Errorf("failed to export %s: %w", out, err)
	}
	return f.Close()
}

func writeTable(w io.Writer, results []fileResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		if r.Report == nil {
			fmt.Fprintf(tw, "%s\terror: %s\n", r.File, r.Error)
			continue
		}

		rep := r.Report
		fmt.Fprintf(tw, "%s\t%s, %d Hz, %.2f s\n", r.File, rep.Format, rep.SampleRate, rep.DurationSec)
		for _, b := range rep.Bands {
			fmt.Fprintf(tw, "  %s\t%g-%g Hz\t%s\n", b.Band, b.LowHz, b.HighHz, formatRT60(b))
		}
		fmt.Fprintf(tw, "  Resonance\t%.1f Hz\tmagnitude %.3f\n", rep.Resonance.FrequencyHz, rep.Resonance.Magnitude)
		if r.Error != "" {
			fmt.Fprintf(tw, "  error\t%s\n", r.Error)
		}
	}
}

func formatRT60(b models.BandRT60) string {
	if !b.Valid || b.Seconds == nil {
		return "indeterminate (" + b.Reason + ")"
	}
	s := fmt.Sprintf("RT60 %.3f s over %.1f dB", *b.Seconds, b.RangeDb)
	if b.FitErrorDb != nil {
		s += fmt.Sprintf(", fit error %.2f dB", *b.FitErrorDb)
	}
	return s
}
