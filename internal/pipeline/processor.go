// Package pipeline runs one optimization task from source file to finalized
// output: decode, resize, desaturate, encode, metadata, size gate.
package pipeline

import (
	"context"
	"fmt"

	"github.com/dunamismax/optimg/internal/codec"
	"github.com/dunamismax/optimg/internal/domain"
	"github.com/dunamismax/optimg/internal/metadata"
	"github.com/dunamismax/optimg/internal/transform"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Stage string

const (
	StageDecoding     Stage = "decoding"
	StageResizing     Stage = "resizing"
	StageDesaturating Stage = "desaturating"
	StageEncoding     Stage = "encoding"
	StageMetadata     Stage = "metadata"
	StageFinalizing   Stage = "finalizing"
)

// Processor is safe for concurrent use as long as tasks do not share source
// or output paths. It keeps no state between calls.
type Processor struct {
	encoder *codec.Encoder
	log     zerolog.Logger
	tracer  trace.Tracer
}

type Option func(*Processor)

func WithLogger(l zerolog.Logger) Option {
	return func(p *Processor) {
		p.log = l.With().Str("component", "pipeline").Logger()
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Processor) {
		p.tracer = t
	}
}

func NewProcessor(opts codec.Options, options ...Option) (*Processor, error) {
	encoder, err := codec.NewEncoder(opts)
	if err != nil {
		return nil, fmt.Errorf("build encoder: %w", err)
	}

	p := &Processor{
		encoder: encoder,
		log:     zerolog.Nop(),
		tracer:  otel.Tracer("optimg/pipeline"),
	}
	for _, o := range options {
		o(p)
	}
	return p, nil
}

func (p *Processor) TargetFormat() domain.Format {
	return p.encoder.Format()
}

// Process runs task to completion. Errors wrap codec.ErrUnreadableImage,
// codec.ErrEncodeFailure, ErrFinalizeIO or domain.ErrInvalidTask; metadata
// problems only show up as flags on the result.
func (p *Processor) Process(ctx context.Context, task domain.Task) (domain.TaskResult, error) {
	if err := task.Validate(); err != nil {
		return domain.TaskResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.TaskResult{}, err
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.source_path", task.SourcePath),
		attribute.String("task.target_format", string(p.encoder.Format())),
	)

	log := p.log.With().Str("src", task.SourcePath).Logger()

	img, err := p.decode(ctx, task.SourcePath)
	if err != nil {
		span.RecordError(err)
		return domain.TaskResult{}, fmt.Errorf("%s stage: %w", StageDecoding, err)
	}
	origFormat, origMode := img.Format, img.Mode

	insp := metadata.Inspect(task.SourcePath)
	hadMetadata := insp.Present()
	logInspection(log, insp)

	wasDownsized := false
	if task.WantsResize() {
		_, s := p.tracer.Start(ctx, "pipeline."+string(StageResizing))
		img, wasDownsized = transform.Downsize(img, task.MaxWidth, task.MaxHeight)
		s.SetAttributes(attribute.Bool("downsized", wasDownsized))
		s.End()
		log.Debug().Bool("downsized", wasDownsized).Int("width", img.Width()).Int("height", img.Height()).Msg(string(StageResizing))
	}

	if task.Grayscale {
		_, s := p.tracer.Start(ctx, "pipeline."+string(StageDesaturating))
		img = transform.Grayscale(img)
		s.End()
		log.Debug().Str("mode", string(img.Mode)).Msg(string(StageDesaturating))
	}

	resultMode, width, height := img.Mode, img.Width(), img.Height()

	_, encodeSpan := p.tracer.Start(ctx, "pipeline."+string(StageEncoding))
	buf, err := p.encoder.Encode(img)
	encodeSpan.End()
	img = codec.Image{}
	if err != nil {
		span.RecordError(err)
		return domain.TaskResult{}, fmt.Errorf("%s stage: %w", StageEncoding, err)
	}
	log.Debug().Int64("bytes", buf.Len()).Msg(string(StageEncoding))

	hasMetadata := false
	if task.KeepMetadata && hadMetadata {
		data, err := metadata.Transplant(task.SourcePath, buf.Data, buf.Format)
		if err != nil {
			log.Warn().Err(err).Msg("metadata transplant failed")
		} else {
			buf.Data = data
			hasMetadata = true
		}
	}

	outputPath := OutputPath(task.SourcePath, buf.Format.Extension())
	_, finalizeSpan := p.tracer.Start(ctx, "pipeline."+string(StageFinalizing))
	decision, err := Finalize(task.SourcePath, buf.Data, !task.SkipSizeCompare, outputPath)
	finalizeSpan.End()
	if err != nil {
		span.RecordError(err)
		return domain.TaskResult{}, fmt.Errorf("%s stage: %w", StageFinalizing, err)
	}

	log.Debug().
		Str("output", outputPath).
		Bool("optimized", decision.WasOptimized).
		Int64("orig_size", decision.OriginalSize).
		Int64("final_size", decision.FinalSize).
		Msg("finalized")

	return domain.TaskResult{
		SourcePath:     task.SourcePath,
		OutputPath:     outputPath,
		OriginalFormat: origFormat,
		ResultFormat:   buf.Format,
		OriginalMode:   origMode,
		ResultMode:     resultMode,
		OriginalSize:   decision.OriginalSize,
		FinalSize:      decision.FinalSize,
		Width:          width,
		Height:         height,
		WasOptimized:   decision.WasOptimized,
		WasDownsized:   wasDownsized,
		HadMetadata:    hadMetadata,
		HasMetadata:    hasMetadata,
		OutputConfig:   task.OutputConfig,
	}, nil
}

func (p *Processor) decode(ctx context.Context, path string) (codec.Image, error) {
	_, span := p.tracer.Start(ctx, "pipeline."+string(StageDecoding))
	defer span.End()
	return codec.Decode(path)
}

func logInspection(log zerolog.Logger, insp metadata.Inspection) {
	switch insp.Reason {
	case metadata.ReasonPresent:
		log.Debug().Int("tags", insp.Tags).Msg("exif found")
	case metadata.ReasonMalformed, metadata.ReasonUnreadable:
		log.Warn().Str("reason", string(insp.Reason)).Err(insp.Err).Msg("exif ignored")
	default:
		log.Debug().Str("reason", string(insp.Reason)).Msg("no exif")
	}
}
