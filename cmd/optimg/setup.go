package main

import (
	"fmt"
	"os"

	"github.com/dunamismax/optimg/internal/codec"
	"github.com/dunamismax/optimg/internal/domain"
	"github.com/dunamismax/optimg/internal/pipeline"
	"github.com/rs/zerolog"
	"github.com/urfave/cli"
)

func newLogger(debug bool) zerolog.Logger {
	zerolog.TimeFieldFormat = "20060102T150405.999Z07:00"
	zerolog.TimestampFieldName = "t"
	zerolog.MessageFieldName = "msg"
	zerolog.LevelFieldName = "lvl"

	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

func encoderOptions(c *cli.Context) (codec.Options, error) {
	format := domain.ParseFormat(c.String("format"))
	if format != domain.FormatWebP && format != domain.FormatJPEG {
		return codec.Options{}, fmt.Errorf("unsupported target format %q (want webp or jpeg)", c.String("format"))
	}
	return codec.Options{
		Format:    format,
		Quality:   c.Int("quality"),
		Lossless:  c.Bool("lossless"),
		BlockSize: c.Int("block-size"),
	}, nil
}

func taskTemplate(c *cli.Context) domain.Task {
	return domain.Task{
		MaxWidth:        c.Int("max-width"),
		MaxHeight:       c.Int("max-height"),
		Grayscale:       c.Bool("grayscale"),
		KeepMetadata:    c.Bool("keep-exif"),
		SkipSizeCompare: c.Bool("no-size-comparison"),
		OutputConfig: domain.OutputConfig{
			ShowOnlySummary:     c.Bool("summary"),
			ShowOverallProgress: c.Bool("progress"),
			QuietMode:           c.Bool("quiet"),
		},
	}
}

func newProcessor(c *cli.Context, logger zerolog.Logger) (*pipeline.Processor, error) {
	opts, err := encoderOptions(c)
	if err != nil {
		return nil, err
	}
	return pipeline.NewProcessor(opts, pipeline.WithLogger(logger))
}
