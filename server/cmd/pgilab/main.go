// Command pgilab computes PGI% statistics, charts and reports from a
// measurement CSV without running the server.
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pgilab/pgilab/pkg/types"
	"github.com/pgilab/pgilab/server/internal/chart"
	"github.com/pgilab/pgilab/server/internal/checks"
	"github.com/pgilab/pgilab/server/internal/compute"
	"github.com/pgilab/pgilab/server/internal/config"
	"github.com/pgilab/pgilab/server/internal/dataset"
	"github.com/pgilab/pgilab/server/internal/metrics"
	"github.com/pgilab/pgilab/server/internal/report"
)

// errUsage marks a command-line mistake; the usage text has been printed.
var errUsage = errors.New("usage")

// errRejectedRows makes validate fail when any row was rejected.
var errRejectedRows = errors.New("rows rejected")

var exitFunc = os.Exit

type command struct {
	summary string
	run     func(c *cli, args []string) error
}

var commands = map[string]command{
	"validate":  {"check a dataset and list rejected rows", (*cli).validate},
	"pgi":       {"print the PGI table by isolate, fungus or pair", (*cli).pgi},
	"effective": {"most effective isolate against a fungus", (*cli).effective},
	"resistant": {"most resistant fungus for an isolate", (*cli).resistant},
	"chart":     {"render a bar, box, scatter, hist or grouped chart", (*cli).chart},
	"report":    {"write the PDF report", (*cli).report},
	"xlsx":      {"write the workbook export", (*cli).xlsx},
	"metrics":   {"print dataset metrics in Prometheus text format", (*cli).metrics},
	"export":    {"re-export the dataset in canonical column order", (*cli).export},
}

func main() {
	exitFunc(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	stdout, stderr io.Writer
	now            func() time.Time
}

func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr, now: time.Now}
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" || args[0] == "--help" {
		c.usage()
		if len(args) == 0 {
			return 2
		}
		return 0
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "pgilab: unknown command %q\n\n", args[0])
		c.usage()
		return 2
	}
	err := cmd.run(c, args[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	case errors.Is(err, errRejectedRows):
		return 1
	default:
		fmt.Fprintf(stderr, "pgilab %s: %v\n", args[0], err)
		return 1
	}
}

func (c *cli) usage() {
	fmt.Fprintln(c.stderr, "Usage: pgilab <command> -data measurements.csv [flags]")
	fmt.Fprintln(c.stderr)
	fmt.Fprintln(c.stderr, "Commands:")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(c.stderr, "  %-10s %s\n", n, commands[n].summary)
	}
	fmt.Fprintln(c.stderr)
	fmt.Fprintln(c.stderr, "Run 'pgilab <command> -h' for the flags of one command.")
}

// --- shared flags -----------------------------------------------------------

type common struct {
	data      string
	delimiter string
	config    string
	verbose   bool
}

func (c *cli) flagSet(name string) (*flag.FlagSet, *common) {
	fs := flag.NewFlagSet("pgilab "+name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	o := &common{}
	fs.StringVar(&o.data, "data", "", "dataset CSV path (required)")
	fs.StringVar(&o.delimiter, "delimiter", "", `field delimiter: "," ";" or "\t" (default from config, else ",")`)
	fs.StringVar(&o.config, "config", "", "optional config file for checks and report defaults")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	return fs, o
}

// badFlag reports an invalid flag value and returns errUsage.
func (c *cli) badFlag(fs *flag.FlagSet, msg string) error {
	fmt.Fprintln(c.stderr, "pgilab: "+msg)
	fs.Usage()
	return errUsage
}

// parse parses args and loads the config and dataset named by the common flags.
// Rejected rows are printed to stderr.
func (c *cli) parse(fs *flag.FlagSet, o *common, args []string) (*config.Config, *dataset.Store, dataset.ImportResult, error) {
	if err := fs.Parse(args); err != nil {
		return nil, nil, dataset.ImportResult{}, err
	}
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level})))

	if o.data == "" {
		fmt.Fprintln(c.stderr, "pgilab: -data is required")
		fs.Usage()
		return nil, nil, dataset.ImportResult{}, errUsage
	}

	cfg := config.Default()
	if o.config != "" {
		var err error
		if cfg, err = config.Load(o.config); err != nil {
			return nil, nil, dataset.ImportResult{}, err
		}
	}
	comma := cfg.Dataset.Comma()
	if o.delimiter != "" {
		var err error
		if comma, err = dataset.ParseDelimiter(o.delimiter); err != nil {
			return nil, nil, dataset.ImportResult{}, err
		}
	}

	f, err := os.Open(o.data)
	if err != nil {
		return nil, nil, dataset.ImportResult{}, err
	}
	defer f.Close()

	st := dataset.New(dataset.Codec{Comma: comma})
	res, err := st.Import(f, dataset.ModeReplace)
	if err != nil {
		return nil, nil, res, err
	}
	for _, re := range res.Errors {
		fmt.Fprintf(c.stderr, "%s: %v\n", o.data, re)
	}
	slog.Debug("dataset loaded", "path", o.data, "rows", st.Len(), "errors", len(res.Errors))
	return cfg, st, res, nil
}

// --- commands ---------------------------------------------------------------

func (c *cli) validate(args []string) error {
	fs, o := c.flagSet("validate")
	_, st, res, err := c.parse(fs, o, args)
	if err != nil {
		return err
	}
	sum := compute.Summarize(st.Records())
	fmt.Fprintf(c.stdout, "%d valid rows, %d rejected\n", st.Len(), len(res.Errors))
	fmt.Fprintf(c.stdout, "%d isolates, %d fungi, %d records with control_mm = 0\n", sum.Isolates, sum.Fungi, sum.Excluded)
	if len(res.Errors) > 0 {
		return errRejectedRows
	}
	return nil
}

func (c *cli) pgi(args []string) error {
	fs, o := c.flagSet("pgi")
	group := fs.String("group", "", "isolate | fungus | pair (default from config)")
	format := fs.String("format", "text", "text | json | csv")
	cfg, st, _, err := c.parse(fs, o, args)
	if err != nil {
		return err
	}
	by := cfg.Report.Grouping()
	if *group != "" {
		if by, err = compute.ParseGroupBy(*group); err != nil {
			return err
		}
	}
	tbl := compute.BuildTable(st.Records(), by)

	switch *format {
	case "json":
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tbl)
	case "csv":
		w := csv.NewWriter(c.stdout)
		w.Write([]string{by.String(), "count", "defined", "excluded", "mean_pgi", "std", "min", "max", "best", "worst"}) //nolint:errcheck
		for _, g := range tbl.Groups {
			row := []string{g.Key, strconv.Itoa(g.Count), strconv.Itoa(g.Defined), strconv.Itoa(g.Excluded)}
			if g.Sufficient {
				row = append(row, num(g.Mean), num(g.Std), num(g.Min), num(g.Max), g.Best, g.Worst)
			} else {
				row = append(row, report.InsufficientData, "", "", "", "", "")
			}
			w.Write(row) //nolint:errcheck
		}
		w.Flush()
		return w.Error()
	case "text":
		tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "%s\tmean PGI%%\tstd\tn\tdefined\tbest\tworst\n", strings.ToUpper(by.String()))
		for _, g := range tbl.Groups {
			if !g.Sufficient {
				fmt.Fprintf(tw, "%s\t%s\t\t%d\t%d\t\t\n", g.Key, report.InsufficientData, g.Count, g.Defined)
				continue
			}
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%d\t%d\t%s\t%s\n", g.Key, g.Mean, g.Std, g.Count, g.Defined, g.Best, g.Worst)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if len(tbl.Excluded) > 0 {
			fmt.Fprintf(c.stdout, "\nexcluded (control_mm = 0): %v\n", tbl.Excluded)
		}
		return nil
	}
	return fmt.Errorf("unknown format %q: want text|json|csv", *format)
}

func (c *cli) effective(args []string) error {
	fs, o := c.flagSet("effective")
	fungus := fs.String("fungus", "", "fungus name (required)")
	_, st, _, err := c.parse(fs, o, args)
	if err != nil {
		return err
	}
	if *fungus == "" {
		fmt.Fprintln(c.stderr, "pgilab: -fungus is required")
		return errUsage
	}
	r, err := compute.MostEffectiveIsolate(st.Records(), *fungus)
	return c.printRanked("most effective isolate against "+*fungus, r, err)
}

func (c *cli) resistant(args []string) error {
	fs, o := c.flagSet("resistant")
	isolate := fs.String("isolate", "", "isolate name (required)")
	_, st, _, err := c.parse(fs, o, args)
	if err != nil {
		return err
	}
	if *isolate == "" {
		fmt.Fprintln(c.stderr, "pgilab: -isolate is required")
		return errUsage
	}
	r, err := compute.MostResistantFungus(st.Records(), *isolate)
	return c.printRanked("most resistant fungus for "+*isolate, r, err)
}

func (c *cli) printRanked(label string, r compute.Ranked, err error) error {
	if errors.Is(err, types.ErrInsufficientData) {
		fmt.Fprintf(c.stdout, "%s: %s\n", label, report.InsufficientData)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s: %s (mean PGI %.2f%%, n=%d)\n", label, r.Name, r.Mean, r.Defined)
	return nil
}

func (c *cli) chart(args []string) error {
	fs, o := c.flagSet("chart")
	group := fs.String("group", "isolate", "isolate | fungus")
	kind := fs.String("kind", "", "bar | box | scatter | hist | grouped (default from config)")
	metric := fs.String("metric", "pgi", "pgi | zone (raw inhibition zone, defined without a control)")
	target := fs.String("target", "", "keep only records against this fungus (group=isolate) or isolate (group=fungus)")
	title := fs.String("title", "", "chart title")
	format := fs.String("format", "", "png | svg | pdf (default from -out extension, else png)")
	out := fs.String("out", "", "output file (required; - for stdout)")
	cfg, st, _, err := c.parse(fs, o, args)
	if err != nil {
		return err
	}
	if *out == "" {
		fmt.Fprintln(c.stderr, "pgilab: -out is required")
		return errUsage
	}

	opts := chart.Options{Kind: cfg.Report.ChartKind(), Target: *target, Title: *title}
	if opts.GroupBy, err = compute.ParseGroupBy(*group); err != nil || opts.GroupBy == compute.ByPair {
		return c.badFlag(fs, "-group must be isolate or fungus")
	}
	if *kind != "" {
		if opts.Kind, err = chart.ParseKind(*kind); err != nil {
			return c.badFlag(fs, err.Error())
		}
	}
	if opts.Metric, err = compute.ParseMetric(*metric); err != nil {
		return c.badFlag(fs, err.Error())
	}
	f := *format
	if f == "" && *out != "-" {
		f = strings.TrimPrefix(filepath.Ext(*out), ".")
	}
	cf, err := chart.ParseFormat(f)
	if err != nil {
		return c.badFlag(fs, err.Error())
	}

	records := st.Records()
	if _, err := chart.Plot(records, opts); errors.Is(err, types.ErrInsufficientData) {
		fmt.Fprintf(c.stdout, "chart: %s\n", report.InsufficientData)
		if opts.Metric == compute.MetricPGI {
			fmt.Fprintln(c.stdout, "chart: no record has control_mm > 0; -metric zone plots raw inhibition zones")
		}
		return nil
	} else if err != nil {
		return err
	}
	return c.writeOutput(*out, func(w io.Writer) error {
		return chart.Render(w, records, opts, cf)
	})
}

func (c *cli) report(args []string) error {
	fs, o := c.flagSet("report")
	out := fs.String("out", "pgi-report.pdf", "output file (- for stdout)")
	title, group, kind := reportFlags(fs)
	cfg, st, _, err := c.parse(fs, o, args)
	if err != nil {
		return err
	}
	d, err := c.reportData(cfg, st, *title, *group, *kind)
	if err != nil {
		return err
	}
	return c.writeOutput(*out, func(w io.Writer) error { return report.WritePDF(w, d) })
}

func (c *cli) xlsx(args []string) error {
	fs, o := c.flagSet("xlsx")
	out := fs.String("out", "pgi-report.xlsx", "output file (- for stdout)")
	title, group, kind := reportFlags(fs)
	cfg, st, _, err := c.parse(fs, o, args)
	if err != nil {
		return err
	}
	d, err := c.reportData(cfg, st, *title, *group, *kind)
	if err != nil {
		return err
	}
	return c.writeOutput(*out, func(w io.Writer) error { return report.WriteWorkbook(w, d) })
}

func reportFlags(fs *flag.FlagSet) (title, group, kind *string) {
	title = fs.String("title", "", "report title (default from config)")
	group = fs.String("group", "", "isolate | fungus | pair (default from config)")
	kind = fs.String("kind", "", "chart kind: bar | box | scatter | hist | grouped (default from config)")
	return title, group, kind
}

func (c *cli) reportData(cfg *config.Config, st *dataset.Store, title, group, kind string) (report.Data, error) {
	opts := report.Options{Title: cfg.Report.Title, GroupBy: cfg.Report.Grouping(), Chart: cfg.Report.ChartKind()}
	var err error
	if title != "" {
		opts.Title = title
	}
	if group != "" {
		if opts.GroupBy, err = compute.ParseGroupBy(group); err != nil {
			return report.Data{}, err
		}
	}
	if kind != "" {
		if opts.Chart, err = chart.ParseKind(kind); err != nil {
			return report.Data{}, err
		}
	}
	engine, err := checks.New(cfg.Checks)
	if err != nil {
		return report.Data{}, err
	}
	return report.Build(st.Records(), engine, opts, c.now()), nil
}

func (c *cli) metrics(args []string) error {
	fs, o := c.flagSet("metrics")
	_, st, _, err := c.parse(fs, o, args)
	if err != nil {
		return err
	}
	return metrics.WriteText(c.stdout, metrics.NewRegistry(st))
}

func (c *cli) export(args []string) error {
	fs, o := c.flagSet("export")
	out := fs.String("out", "-", "output file (- for stdout)")
	to := fs.String("to-delimiter", "", "write with this delimiter instead of the input one")
	_, st, _, err := c.parse(fs, o, args)
	if err != nil {
		return err
	}
	codec := st.Codec()
	if *to != "" {
		if codec.Comma, err = dataset.ParseDelimiter(*to); err != nil {
			return err
		}
	}
	return c.writeOutput(*out, func(w io.Writer) error { return codec.Write(w, st.Records()) })
}

// --- helpers ----------------------------------------------------------------

// writeOutput runs write against stdout for "-" or a newly created file.
func (c *cli) writeOutput(path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(c.stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Debug("wrote output", "path", path)
	return nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
