package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/dunamismax/optimg/internal/domain"
	"github.com/dunamismax/optimg/internal/pipeline"
	"github.com/dunamismax/optimg/internal/report"
	"github.com/dunamismax/optimg/internal/watch"
	"github.com/rs/zerolog"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

var errSomeFailed = errors.New("some images could not be optimized")

// printer serializes terminal output according to the task's OutputConfig.
type printer struct {
	mu  sync.Mutex
	out io.Writer
	cfg domain.OutputConfig
}

func (p *printer) result(res domain.TaskResult, totals report.Totals) {
	p.line(report.FileLine(res), totals)
}

func (p *printer) failure(path string, err error, totals report.Totals) {
	p.line(report.FailureLine(path, err), totals)
}

func (p *printer) line(s string, totals report.Totals) {
	if p.cfg.QuietMode || p.cfg.ShowOnlySummary {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.ShowOverallProgress {
		fmt.Fprintf(p.out, "\r%s", report.ProgressLine(totals))
		return
	}
	fmt.Fprintln(p.out, s)
}

func (p *printer) final(totals report.Totals) {
	if p.cfg.QuietMode {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.ShowOverallProgress {
		fmt.Fprintln(p.out)
	}
	_ = report.WriteReport(p.out, totals)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runBatch(c *cli.Context) error {
	logger := newLogger(c.GlobalBool("debug"))

	if c.NArg() == 0 {
		return cli.NewExitError("at least one PATH is required", 2)
	}
	files, err := collectFiles(c.Args(), c.Bool("recursive"))
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	proc, err := newProcessor(c, logger)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	ctx, cancel := signalContext()
	defer cancel()

	template := taskTemplate(c)
	out := &printer{out: os.Stdout, cfg: template.OutputConfig}
	summary := report.NewSummary(len(files))

	ext := proc.TargetFormat().Extension()
	files, dropped := planOutputs(files, ext)
	for _, d := range dropped {
		output := filepath.Base(pipeline.OutputPath(d.path, ext))
		logger.Warn().Str("src", d.path).Str("kept", d.winner).Msg("output collision")
		out.line(report.SkipLine(d.path, fmt.Sprintf("%s is written by %s", output, filepath.Base(d.winner))), summary.AddSkip())
	}

	logger.Debug().
		Int("files", len(files)).
		Int("jobs", c.Int("jobs")).
		Str("format", string(proc.TargetFormat())).
		Msg("launching params")

	failed := optimizeAll(ctx, proc, files, template, max(1, c.Int("jobs")), summary, out, logger)

	out.final(summary.Totals())
	if ctx.Err() != nil {
		return cli.NewExitError("interrupted", 130)
	}
	if failed {
		return cli.NewExitError(errSomeFailed.Error(), 1)
	}
	return nil
}

// optimizeAll runs every file through proc with at most jobs in flight. A
// failing image is reported and counted; it never stops the batch.
func optimizeAll(
	ctx context.Context,
	proc *pipeline.Processor,
	files []string,
	template domain.Task,
	jobs int,
	summary *report.Summary,
	out *printer,
	logger zerolog.Logger,
) bool {
	var (
		mu     sync.Mutex
		failed bool
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		task := template
		task.SourcePath = path
		g.Go(func() error {
			res, err := proc.Process(ctx, task)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Debug().Str("src", path).Err(err).Msg("optimize failed")
				mu.Lock()
				failed = true
				mu.Unlock()
				out.failure(path, err, summary.AddFailure())
				return nil
			}
			out.result(res, summary.Add(res))
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

func runWatch(c *cli.Context) error {
	logger := newLogger(c.GlobalBool("debug"))

	if c.NArg() != 1 {
		return cli.NewExitError("exactly one DIR is required", 2)
	}
	proc, err := newProcessor(c, logger)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	template := taskTemplate(c)
	out := &printer{out: os.Stdout, cfg: template.OutputConfig}
	summary := report.NewSummary(0)

	w, err := watch.New(watch.Config{
		Dir:       c.Args().First(),
		Template:  template,
		TargetExt: proc.TargetFormat().Extension(),
		Logger:    logger,
	}, func(ctx context.Context, task domain.Task) {
		res, err := proc.Process(ctx, task)
		if err != nil {
			out.failure(task.SourcePath, err, summary.AddFailure())
			return
		}
		out.result(res, summary.Add(res))
	})
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if !template.OutputConfig.QuietMode {
		fmt.Fprintf(os.Stdout, "Watching %s for new images (Ctrl+C to stop)\n", c.Args().First())
	}
	if err := w.Run(ctx); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	out.final(summary.Totals())
	return nil
}
