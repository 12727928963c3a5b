package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/abusehawk/internal/alert"
	"github.com/telhawk-systems/abusehawk/internal/pipeline"
	"github.com/telhawk-systems/abusehawk/internal/transport"
)

var replayFlush bool

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Replay a bounded event file and print alerts to stdout",
	Long: `replay reads newline-delimited event JSON from a file, runs the full
detection pipeline over it with the watermark advanced to end-of-stream,
and prints the resulting alerts to stdout one JSON object per line.
Lines starting with '#' are skipped.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runReplay(args[0]); err != nil {
			fatal(err)
		}
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayFlush, "flush", false, "clear the state namespace before replaying")
}

func runReplay(path string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Done()

	if replayFlush {
		if err := store.DeleteAll(ctx); err != nil {
			return err
		}
	}

	sink := pipeline.SinkFunc(func(_ context.Context, a *alert.Alert) error {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	})

	p, err := pipeline.Build(cfg, store, sink, log)
	if err != nil {
		return err
	}

	reader, closer, err := transport.OpenFile(path, log)
	if err != nil {
		return err
	}
	defer closer.Close()

	for {
		e, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := p.Process(ctx, e); err != nil {
			return err
		}
	}
	return p.Drain(ctx)
}
