// Command optimg converts images to a compact web format, optionally
// downsizing, desaturating and keeping EXIF.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/dunamismax/optimg/internal/codec"
	"github.com/urfave/cli"
)

const EnvVarPrefix = "OPTIMG_"

var BuildNumber = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "optimg"
	app.Usage = "image size optimizer"
	app.Version = BuildNumber
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:   "debug, d",
			Usage:  "debug logging",
			EnvVar: EnvVarPrefix + "DEBUG",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "run",
			Aliases:   []string{"r"},
			Usage:     "optimize files and directories",
			ArgsUsage: "PATH...",
			Action:    runBatch,
			Flags: append(taskFlags(),
				cli.BoolFlag{
					Name:  "recursive, r",
					Usage: "descend into subdirectories",
				},
				cli.IntFlag{
					Name:   "jobs, j",
					Value:  runtime.NumCPU(),
					Usage:  "number of images processed in parallel",
					EnvVar: EnvVarPrefix + "JOBS",
				},
				cli.BoolFlag{
					Name:  "quiet",
					Usage: "print nothing",
				},
				cli.BoolFlag{
					Name:  "summary",
					Usage: "print only the final report",
				},
				cli.BoolFlag{
					Name:  "progress",
					Usage: "print a single updating progress line",
				},
			),
		},
		{
			Name:      "watch",
			Aliases:   []string{"w"},
			Usage:     "optimize new images as they appear in a directory",
			ArgsUsage: "DIR",
			Action:    runWatch,
			Flags: append(taskFlags(),
				cli.BoolFlag{
					Name:  "quiet",
					Usage: "print nothing",
				},
			),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func taskFlags() []cli.Flag {
	return []cli.Flag{
		cli.IntFlag{
			Name:  "max-width, mw",
			Usage: "downsize to at most this width (0 = unconstrained)",
		},
		cli.IntFlag{
			Name:  "max-height, mh",
			Usage: "downsize to at most this height (0 = unconstrained)",
		},
		cli.BoolFlag{
			Name:  "grayscale, g",
			Usage: "convert to grayscale",
		},
		cli.BoolFlag{
			Name:  "keep-exif, ke",
			Usage: "copy EXIF from the source into the output",
		},
		cli.BoolFlag{
			Name:  "no-size-comparison, nc",
			Usage: "write the re-encoded image even when it is larger",
		},
		cli.StringFlag{
			Name:   "format, f",
			Value:  "webp",
			Usage:  "target format: webp or jpeg",
			EnvVar: EnvVarPrefix + "TARGET_FORMAT",
		},
		cli.IntFlag{
			Name:   "quality, q",
			Value:  codec.DefaultQuality,
			Usage:  "encoder quality 1-100",
			EnvVar: EnvVarPrefix + "QUALITY",
		},
		cli.BoolFlag{
			Name:   "lossless",
			Usage:  "lossless webp",
			EnvVar: EnvVarPrefix + "LOSSLESS",
		},
		cli.IntFlag{
			Name:   "block-size",
			Value:  codec.DefaultBlockSize,
			Usage:  "encoder output block size in bytes",
			EnvVar: EnvVarPrefix + "ENCODER_BLOCK_SIZE",
		},
	}
}
