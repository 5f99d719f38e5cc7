package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	config "github.com/drummonds/pdf2image/config"
	engine "github.com/drummonds/pdf2image/engine"
	"github.com/drummonds/pdf2image/engine/pdfrenderer"
	"github.com/drummonds/pdf2image/export"
	"github.com/spf13/cobra"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	engine.Logger = Logger
	pdfrenderer.Logger = Logger
	export.Logger = Logger
}

var errUsage = errors.New("expected exactly one PDF file")

// cliOptions are the parsed command line settings
type cliOptions struct {
	Path    string
	Export  export.Options
	OutDir  string
	Engine  string
	Stagger time.Duration
	Scale   float64
}

// newRootCmd builds the command; flag defaults come from the environment configuration
func newRootCmd(cfg config.ServerConfig, convert func(cmd *cobra.Command, opts cliOptions) error) *cobra.Command {
	var (
		format, out, engineName string
		quality, scale          float64
		stagger                 time.Duration
	)

	cmd := &cobra.Command{
		Use:   "pdf2image [flags] file.pdf",
		Short: "Convert every page of a PDF into PNG or JPG images",
		Long: `pdf2image renders each page of a PDF at twice its natural size and writes
page_1.png, page_2.png ... into the output directory, one file per stagger interval.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errUsage
			}
			return nil
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			options := export.Options{Format: parsed, Quality: quality}
			if err := options.Validate(); err != nil {
				return err
			}
			if scale <= 0 {
				return fmt.Errorf("scale must be positive, got %v", scale)
			}
			return convert(cmd, cliOptions{
				Path:    args[0],
				Export:  options,
				OutDir:  out,
				Engine:  engineName,
				Stagger: stagger,
				Scale:   scale,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&format, "format", cfg.DefaultFormat, "output format: png or jpg")
	flags.Float64Var(&quality, "quality", cfg.DefaultQuality, "JPG quality between 0.5 and 1.0")
	flags.StringVar(&out, "out", cfg.OutputPath, "directory the page images are written to")
	flags.StringVar(&engineName, "engine", cfg.RenderEngine, "render engine: pdfium or fitz")
	flags.DurationVar(&stagger, "stagger", cfg.ExportStagger, "delay between writing consecutive pages")
	flags.Float64Var(&scale, "scale", engine.RenderScale, "render magnification")
	return cmd
}

// readUpload loads path and declares it a PDF if its name and header say so
func readUpload(path string) (engine.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Upload{}, fmt.Errorf("reading %s: %w", path, err)
	}
	upload := engine.Upload{Name: filepath.Base(path), Data: data}
	if strings.EqualFold(filepath.Ext(path), ".pdf") && engine.LooksLikePDF(data) {
		upload.ContentType = engine.PDFMediaType
	}
	return upload, nil
}

func run(ctx context.Context, opts cliOptions, workers int) (*export.Schedule, error) {
	upload, err := readUpload(opts.Path)
	if err != nil {
		return nil, err
	}

	loader, err := pdfrenderer.NewLoader(opts.Engine, workers)
	if err != nil {
		return nil, err
	}
	bridge := pdfrenderer.NewBridge(loader)
	defer bridge.Close()
	if err := bridge.EnsureReady(ctx); err != nil {
		return nil, err
	}

	if info, err := engine.Inspect(upload.Name, upload.Data); err == nil {
		Logger.Info("Converting document", "file", info.Name, "pages", info.Pages, "version", info.Version, "title", info.Title)
	}

	converter := engine.NewConverter(bridge, engine.WithScale(opts.Scale))
	pages, err := converter.ConvertWithProgress(ctx, upload, func(page, total int) {
		Logger.Debug("Rendered page", "page", page, "total", total)
	})
	if err != nil {
		return nil, err
	}

	if err := config.EnsureDirectory(opts.OutDir, Logger); err != nil {
		return nil, err
	}
	sink, err := export.NewDirSink(opts.OutDir)
	if err != nil {
		return nil, err
	}
	schedule, err := export.ExportAll(ctx, sink, engine.Images(pages), opts.Export, opts.Stagger)
	if err != nil {
		return nil, err
	}
	// the process must outlive its timers
	schedule.Wait()
	return schedule, nil
}

func main() {
	cfg, logger := config.SetupCLI()
	injectGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCmd(cfg, func(cmd *cobra.Command, opts cliOptions) error {
		schedule, err := run(cmd.Context(), opts, cfg.PDFiumWorkers)
		if err != nil {
			return errors.New(engine.UserMessage(err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %d of %d pages to %s\n", schedule.Saved(), len(schedule.Files()), opts.OutDir)
		if failed := schedule.Failed(); len(failed) > 0 {
			return fmt.Errorf("failed: %s", strings.Join(failed, ", "))
		}
		return nil
	})
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
