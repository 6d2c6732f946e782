package accession

import (
	"path/filepath"
	"strings"
)

// TempSuffix marks in-flight downloads and partially written outputs.
// A file carrying this suffix is never treated as a completed target,
// so interrupted transfers cannot satisfy a later skip-if-exists check.
const TempSuffix = ".tmp"

// LedgerDirName is the per-output-directory state dir holding the run ledger.
const LedgerDirName = ".sracatch"

// ContainerPath returns the deterministic location of the run's SRA
// container under dir.
func ContainerPath(dir string, run Run) string {
	return filepath.Join(dir, run.String()+".sra")
}

// OutputPath returns the deterministic single-file output location for a
// run and format extension (e.g. "fastq.gz" → dir/SRR123.fastq.gz).
func OutputPath(dir string, run Run, ext string) string {
	return filepath.Join(dir, run.String()+"."+ext)
}

// PairedOutputPaths returns the deterministic forward/reverse output
// locations for a paired-end run and format extension.
func PairedOutputPaths(dir string, run Run, ext string) (string, string) {
	return filepath.Join(dir, run.String()+"_1."+ext),
		filepath.Join(dir, run.String()+"_2."+ext)
}

// OutputCandidates returns every layout that satisfies a (run, format)
// target: the single-file name plus the paired pair. The extraction
// tools decide the layout from the container metadata, so an existence
// check must accept either.
func OutputCandidates(dir string, run Run, ext string) []string {
	p1, p2 := PairedOutputPaths(dir, run, ext)
	return []string{OutputPath(dir, run, ext), p1, p2}
}

// TempPath returns the in-flight name for path.
func TempPath(path string) string {
	return path + TempSuffix
}

// IsTemp reports whether path carries the in-flight suffix.
func IsTemp(path string) bool {
	return strings.HasSuffix(path, TempSuffix)
}

// FinalPath strips the in-flight suffix, if present.
func FinalPath(path string) string {
	return strings.TrimSuffix(path, TempSuffix)
}
