package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intake/internal/pipeline"
	"github.com/MrWong99/intake/internal/record"
	"github.com/MrWong99/intake/internal/report"
	"github.com/MrWong99/intake/internal/server"
)

// shutdownTimeout bounds closing the provider backends.
const shutdownTimeout = 15 * time.Second

func newProcessCmd(ro *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "process <audio>",
		Short: "Process one audio file and print the customer record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ro.setup(cmd); err != nil {
				return err
			}
			application, err := ro.newApp(nil)
			if err != nil {
				return err
			}
			defer shutdown(application.Shutdown)

			res, runErr := application.Run(cmd.Context(), args[0])
			out := cmd.OutOrStdout()
			if asJSON {
				var resp server.Response
				if runErr != nil {
					resp = server.ErrorResponse(runErr)
				} else {
					resp = server.NewResponse(res)
				}
				if err := printJSON(out, resp); err != nil {
					return err
				}
				if runErr != nil {
					return errReported
				}
				return nil
			}
			if runErr != nil {
				return runErr
			}
			return printResult(out, res)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the HTTP-shaped JSON response")
	return cmd
}

// printResult writes the human-readable run report.
func printResult(w io.Writer, res *pipeline.Result) error {
	fmt.Fprintf(w, "Transcript:\n%s\n\n", res.Transcript)
	fmt.Fprintf(w, "Extraction:\n%s\n\n", res.RawExtraction)
	fmt.Fprintf(w, "Status: %s\n", res.Verdict.Status)
	data, err := json.MarshalIndent(res.Record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	fmt.Fprintf(w, "Record:\n%s\n", data)
	if !res.Verdict.Complete() {
		fmt.Fprintf(w, "\nMissing: %s\n", strings.Join(record.Names(res.Verdict.Missing), ", "))
		fmt.Fprintf(w, "Ask-back: %s\n", res.AskBack)
	}
	t := res.Timings
	fmt.Fprintf(w, "\nTimings: stt=%s extract=%s askback=%s total=%s\n",
		t.STT.Round(time.Millisecond), t.Extract.Round(time.Millisecond),
		t.AskBack.Round(time.Millisecond), t.Total().Round(time.Millisecond))
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func newBatchCmd(ro *rootOptions) *cobra.Command {
	var (
		outPath     string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "batch <audio>...",
		Short: "Process several audio files and write an Excel report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1, got %d", concurrency)
			}
			if err := ro.setup(cmd); err != nil {
				return err
			}
			application, err := ro.newApp(nil)
			if err != nil {
				return err
			}
			defer shutdown(application.Shutdown)

			rows := processAll(cmd.Context(), application, args, concurrency)
			if err := report.WriteFile(outPath, rows); err != nil {
				return err
			}

			counts := map[string]int{}
			for _, r := range rows {
				counts[r.Status()]++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d files: %d complete, %d incomplete, %d failed; report written to %s\n",
				len(rows), counts[string(record.StatusComplete)], counts[string(record.StatusIncomplete)],
				counts[report.StatusFailed], outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "report.xlsx", "path of the Excel report")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "number of files processed at once")
	return cmd
}

// runner is the part of the application batch processing needs.
type runner interface {
	Run(ctx context.Context, audioPath string) (*pipeline.Result, error)
}

// processAll runs every file with at most limit runs in flight. Failed runs
// become rows; they never stop the batch.
func processAll(ctx context.Context, r runner, files []string, limit int) []report.Row {
	rows := make([]report.Row, len(files))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, file := range files {
		g.Go(func() error {
			res, err := r.Run(ctx, file)
			rows[i] = report.Row{File: file, Result: res, Err: err}
			if err != nil {
				slog.Warn("batch file failed", "file", file, "err", err)
			} else {
				slog.Info("batch file processed", "file", file, "status", res.Verdict.Status)
			}
			return nil
		})
	}
	_ = g.Wait()
	return rows
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "intake %s (%s)\n", version, runtime.Version())
		},
	}
}

// shutdown runs fn with a fresh deadline, logging any error.
func shutdown(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("shutdown error", "err", err)
	}
}
