package convert

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/seqport/sracatch/pkg/backend"
	"github.com/seqport/sracatch/pkg/toolrun"
)

// ErrStreamUnsupported indicates the artifact/format pair cannot be
// streamed to standard output.
var ErrStreamUnsupported = errors.New("format cannot be streamed from this artifact")

// IsBrokenPipe reports whether an error is a broken or closed pipe.
// Downstream consumers like `head` close early; that is a clean end of
// streaming, not a failure.
func IsBrokenPipe(err error) bool {
	return err != nil && (errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe))
}

// Stream writes a single requested format to w instead of the
// filesystem. Container artifacts stream through the single-pass
// extractor (arbitrary read order); fastq.gz artifacts stream their
// files directly or through decompression. Compressed output formats
// are gzipped in-process on the way out.
//
// A broken pipe from w ends streaming successfully.
func (p *Pipeline) Stream(ctx context.Context, job Job, w io.Writer) error {
	if len(job.Formats) != 1 {
		return fmt.Errorf("%w: stdout streaming takes exactly one format, got %s", ErrStreamUnsupported, job.Formats)
	}
	format := job.Formats[0]
	if format == FormatSRA {
		return fmt.Errorf("%w: container bytes are not a read stream", ErrStreamUnsupported)
	}
	if job.Artifact == nil || len(job.Artifact.Files) == 0 {
		return fmt.Errorf("streaming job for %s has no artifact", job.Run)
	}

	// Fast path: artifact files already carry the requested bytes.
	if job.Artifact.Kind == backend.KindFastqGz && format == FormatFastqGz {
		return p.streamCopy(job.Artifact.Files, w)
	}

	dst := w
	var gz *gzip.Writer
	if format.compressed() {
		gz = gzip.NewWriter(w)
		dst = gz
	}

	err := p.streamReads(ctx, job, format.uncompressed(), dst)
	if gz != nil {
		if cerr := gz.Close(); err == nil && cerr != nil && !IsBrokenPipe(cerr) {
			err = fmt.Errorf("flush gzip stream: %w", cerr)
		}
	}
	if IsBrokenPipe(err) {
		return nil
	}
	return err
}

// streamReads produces an uncompressed fastq or fasta stream into dst.
func (p *Pipeline) streamReads(ctx context.Context, job Job, base Format, dst io.Writer) error {
	switch job.Artifact.Kind {
	case backend.KindRawContainer:
		if base == FormatFasta {
			return p.streamChained(ctx, job, dst)
		}
		_, err := p.runner.Run(ctx, toolrun.Spec{
			Name:   toolSracat,
			Args:   []string{job.Artifact.Primary()},
			Stdout: dst,
		})
		return err
	case backend.KindFastqGz:
		if base == FormatFasta {
			return p.streamChained(ctx, job, dst)
		}
		return p.streamDecompressed(ctx, job, dst)
	case backend.KindFasta:
		if base != FormatFasta {
			return fmt.Errorf("%w: %s from fasta artifact", ErrStreamUnsupported, base)
		}
		return p.streamCopy(job.Artifact.Files, dst)
	case backend.KindFastaGz:
		if base != FormatFasta {
			return fmt.Errorf("%w: %s from fasta artifact", ErrStreamUnsupported, base)
		}
		return p.streamDecompressed(ctx, job, dst)
	default:
		return fmt.Errorf("unknown artifact kind %q", job.Artifact.Kind)
	}
}

// streamChained pipes the fastq stream through seqtk for FASTA output
// without touching disk.
func (p *Pipeline) streamChained(ctx context.Context, job Job, dst io.Writer) error {
	pr, pw := io.Pipe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if job.Artifact.Kind == backend.KindRawContainer {
			_, err = p.runner.Run(gctx, toolrun.Spec{
				Name:   toolSracat,
				Args:   []string{job.Artifact.Primary()},
				Stdout: pw,
			})
		} else {
			err = p.streamDecompressed(gctx, job, pw)
		}
		// Closing with err propagates the failure to the reader side.
		_ = pw.CloseWithError(err)
		if IsBrokenPipe(err) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer func() { _ = pr.Close() }()
		_, err := p.runner.Run(gctx, toolrun.Spec{
			Name:   toolSeqtk,
			Args:   []string{"seq", "-A", "-"},
			Stdin:  pr,
			Stdout: dst,
		})
		return err
	})
	return g.Wait()
}

// streamDecompressed inflates each artifact file into dst in order.
func (p *Pipeline) streamDecompressed(ctx context.Context, job Job, dst io.Writer) error {
	tool, baseArgs, err := p.decompressTool()
	if err != nil {
		return err
	}
	for _, src := range job.Artifact.Files {
		if _, err := p.runner.Run(ctx, toolrun.Spec{Name: tool, Args: append(baseArgs, src), Stdout: dst}); err != nil {
			return err
		}
	}
	return nil
}

// streamCopy concatenates files byte-for-byte into dst.
func (p *Pipeline) streamCopy(files []string, dst io.Writer) error {
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		_, err = io.Copy(dst, f)
		_ = f.Close()
		if err != nil {
			if IsBrokenPipe(err) {
				return nil
			}
			return fmt.Errorf("stream %s: %w", path, err)
		}
	}
	return nil
}
