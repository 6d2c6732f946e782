package convert

import (
	"errors"
	"fmt"

	"github.com/seqport/sracatch/pkg/backend"
)

// Op identifies one conversion operation.
type Op string

const (
	// OpKeepContainer reports the container itself as an output.
	OpKeepContainer Op = "keep-container"

	// OpExtract converts a container to FASTQ with ordered output.
	OpExtract Op = "extract-fastq"

	// OpExtractUnsorted converts a container to FASTQ in a single
	// arbitrary-order streaming pass.
	OpExtractUnsorted Op = "extract-fastq-unsorted"

	// OpDecompress inflates the artifact's gzip files.
	OpDecompress Op = "decompress"

	// OpFasta derives FASTA from the FASTQ intermediate.
	OpFasta Op = "fasta"

	// OpGzipFastq compresses the FASTQ files.
	OpGzipFastq Op = "gzip-fastq"

	// OpGzipFasta compresses the FASTA files.
	OpGzipFasta Op = "gzip-fasta"
)

// Planning errors.
var (
	// ErrUnsatisfiable indicates no step sequence can derive a requested
	// format from the artifact kind (e.g. sra from a direct-FASTQ
	// download).
	ErrUnsatisfiable = errors.New("format not derivable from artifact")
)

// Step is one planned operation. Ephemeral marks a product the caller
// did not request: it exists only to feed later steps and is removed
// after the job succeeds.
type Step struct {
	Op        Op
	Format    Format
	Ephemeral bool
}

// Plan computes the minimal ordered step sequence turning an artifact
// of the given kind into the requested formats.
//
// Shared intermediates are planned once: requesting fastq.gz and
// fasta.gz yields a single extraction, one fasta pass, and two cheap
// compressions, never a second extraction. Unsorted selects the
// single-pass streaming extractor and is valid only for container
// artifacts.
func Plan(kind backend.Kind, requested FormatSet, unsorted bool) ([]Step, error) {
	if len(requested) == 0 {
		return nil, ErrNoFormats
	}

	switch kind {
	case backend.KindRawContainer:
		return planContainer(requested, unsorted)
	case backend.KindFastqGz:
		return planFastqGz(requested, unsorted)
	case backend.KindFasta, backend.KindFastaGz:
		return planFasta(kind, requested, unsorted)
	default:
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}
}

func planContainer(requested FormatSet, unsorted bool) ([]Step, error) {
	var steps []Step

	if requested.Contains(FormatSRA) {
		steps = append(steps, Step{Op: OpKeepContainer, Format: FormatSRA})
	}

	needFastq := requested.Contains(FormatFastq) || requested.Contains(FormatFastqGz) ||
		requested.Contains(FormatFasta) || requested.Contains(FormatFastaGz)
	if needFastq {
		op := OpExtract
		if unsorted {
			op = OpExtractUnsorted
		}
		steps = append(steps, Step{Op: op, Format: FormatFastq, Ephemeral: !requested.Contains(FormatFastq)})
	}

	steps = append(steps, fastqDerivations(requested)...)
	return steps, nil
}

func planFastqGz(requested FormatSet, unsorted bool) ([]Step, error) {
	if unsorted {
		return nil, fmt.Errorf("%w: unsorted extraction needs a container artifact", ErrUnsatisfiable)
	}
	if requested.Contains(FormatSRA) {
		return nil, fmt.Errorf("%w: cannot produce sra from a fastq.gz download", ErrUnsatisfiable)
	}

	var steps []Step

	// fastq.gz itself is satisfied by the artifact files in place.
	needFastq := requested.Contains(FormatFastq) || requested.Contains(FormatFasta) || requested.Contains(FormatFastaGz)
	if needFastq {
		steps = append(steps, Step{Op: OpDecompress, Format: FormatFastq, Ephemeral: !requested.Contains(FormatFastq)})
	}

	// The artifact already covers fastq.gz, so only fasta derivations
	// remain.
	steps = append(steps, fastqDerivations(requested.Without(FormatFastqGz))...)
	return steps, nil
}

func planFasta(kind backend.Kind, requested FormatSet, unsorted bool) ([]Step, error) {
	if unsorted {
		return nil, fmt.Errorf("%w: unsorted extraction needs a container artifact", ErrUnsatisfiable)
	}
	for _, f := range requested {
		if f == FormatSRA || f == FormatFastq || f == FormatFastqGz {
			return nil, fmt.Errorf("%w: cannot produce %s from a %s download", ErrUnsatisfiable, f, kind)
		}
	}

	var steps []Step
	switch kind {
	case backend.KindFasta:
		// fasta satisfied in place; compress if the gz variant is asked.
		if requested.Contains(FormatFastaGz) {
			steps = append(steps, Step{Op: OpGzipFasta, Format: FormatFastaGz})
		}
	case backend.KindFastaGz:
		if requested.Contains(FormatFasta) {
			steps = append(steps, Step{Op: OpDecompress, Format: FormatFasta})
		}
	}
	return steps, nil
}

// fastqDerivations plans the steps downstream of a present FASTQ
// intermediate.
func fastqDerivations(requested FormatSet) []Step {
	var steps []Step
	if requested.Contains(FormatFasta) || requested.Contains(FormatFastaGz) {
		steps = append(steps, Step{Op: OpFasta, Format: FormatFasta, Ephemeral: !requested.Contains(FormatFasta)})
	}
	if requested.Contains(FormatFastqGz) {
		steps = append(steps, Step{Op: OpGzipFastq, Format: FormatFastqGz})
	}
	if requested.Contains(FormatFastaGz) {
		steps = append(steps, Step{Op: OpGzipFasta, Format: FormatFastaGz})
	}
	return steps
}
