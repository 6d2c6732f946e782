// Package backend defines the download-method abstraction for sequencing
// archives.
//
// Each adapter wraps one retrieval mechanism (ENA over Aspera or HTTPS,
// NCBI prefetch, cloud mirrors over HTTP, S3, GCS) behind a uniform
// interface. Adapters enforce their own preconditions and map the external
// outcome to a success artifact or a classified error; method selection and
// fallback ordering live above this package.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/seqport/sracatch/pkg/accession"
)

// Method identifies one download mechanism.
type Method string

// The closed set of download methods. Order here is the conventional
// free-before-paid preference and is used anywhere a stable ordering of
// all methods is needed; fallback order itself always comes from the
// caller.
const (
	MethodENAAscp  Method = "ena-ascp"
	MethodENAFTP   Method = "ena-ftp"
	MethodPrefetch Method = "prefetch"
	MethodAWSHTTP  Method = "aws-http"
	MethodAWSCP    Method = "aws-cp"
	MethodGCPCP    Method = "gcp-cp"
)

// AllMethods returns every known method in canonical order.
func AllMethods() []Method {
	return []Method{
		MethodENAAscp,
		MethodENAFTP,
		MethodPrefetch,
		MethodAWSHTTP,
		MethodAWSCP,
		MethodGCPCP,
	}
}

// DefaultMethods returns the default fallback chain: every free method,
// fastest first. Paid mirrors are opt-in only.
func DefaultMethods() []Method {
	return []Method{
		MethodENAAscp,
		MethodENAFTP,
		MethodPrefetch,
		MethodAWSHTTP,
	}
}

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllMethods() {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// ParseMethodList validates an ordered method list, preserving caller
// order. Duplicates are allowed: supplying a method twice is the only way
// to retry it within one invocation.
func ParseMethodList(names []string) ([]Method, error) {
	if len(names) == 0 {
		return nil, ErrNoMethods
	}
	methods := make([]Method, 0, len(names))
	for _, name := range names {
		m, err := ParseMethod(name)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, nil
}

// String returns the method name.
func (m Method) String() string { return string(m) }

// Kind classifies the artifact a successful fetch produced. Extraction
// planning depends on it: a container needs conversion, a direct read
// file may only need decompression or renaming.
type Kind string

const (
	KindRawContainer Kind = "sra"
	KindFastqGz      Kind = "fastq.gz"
	KindFasta        Kind = "fasta"
	KindFastaGz      Kind = "fasta.gz"
)

// Request carries everything an adapter needs for one fetch. Fields
// outside the adapter's mechanism are ignored by it (an HTTP adapter
// never reads AscpKey).
type Request struct {
	// Run is the accession to fetch.
	Run accession.Run

	// Dir is the destination directory for the artifact.
	Dir string

	// Threads is a parallelism hint forwarded to multi-connection
	// mechanisms. Zero means the adapter's default.
	Threads int

	// Quiet suppresses progress output.
	Quiet bool

	// Progress, when non-nil, receives cumulative byte counts for
	// transfers the adapter performs itself. Methods that delegate to
	// an external tool report through that tool instead.
	Progress func(written, total int64)

	// PaymentAllowed records that the caller accepted possible egress
	// charges for this method. Gating happens before the adapter is
	// invoked; adapters use the flag only to set requester-pays options
	// on the actual request.
	PaymentAllowed bool

	// AscpKey overrides the Aspera key file location.
	AscpKey string

	// AscpArgs are extra arguments appended to the ascp invocation.
	AscpArgs []string

	// GCPProject is the billing project for requester-pays GCS copies.
	GCPProject string

	// AWSProfile selects a named AWS credentials profile.
	AWSProfile string

	// AWSAccessKeyID and AWSSecretAccessKey are explicit credentials
	// for requester-pays S3 copies. When set they take precedence over
	// the default credential chain.
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

// Artifact is the product of a successful fetch: one or more files of a
// single kind at their final (non-temporary) paths. Direct-FASTQ methods
// may produce up to three files for a paired run; container methods
// produce exactly one.
type Artifact struct {
	Kind  Kind
	Files []string
}

// Primary returns the first artifact file.
func (a *Artifact) Primary() string {
	if a == nil || len(a.Files) == 0 {
		return ""
	}
	return a.Files[0]
}

// Adapter is the uniform interface to one download mechanism.
//
// Fetch either returns an artifact whose files are fully written at
// their final paths, or an error classified by this package's taxonomy.
// On error no partial files may remain at paths a later existence check
// would accept. Implementations must honor ctx cancellation, killing
// any external process they started.
type Adapter interface {
	// Method returns the tag this adapter serves.
	Method() Method

	// Fetch retrieves the run into req.Dir.
	Fetch(ctx context.Context, req Request) (*Artifact, error)
}
