package backend

// PaymentClass describes whether a method can incur data-egress charges.
type PaymentClass string

const (
	// PaymentFree methods never charge the caller.
	PaymentFree PaymentClass = "free"

	// PaymentPossible methods are free for public mirrors but switch to
	// requester-pays when the locator resolves to a pay bucket.
	PaymentPossible PaymentClass = "possible"

	// PaymentRequired methods always bill a caller-supplied project.
	PaymentRequired PaymentClass = "required"
)

// Capability records what one method can deliver. This table is the
// authoritative compatibility source: eager validation and the methods
// command both read it, nothing is inferred from runtime failures.
type Capability struct {
	// Artifact is the kind a successful fetch produces.
	Artifact Kind

	// Unsorted reports whether the artifact supports single-pass
	// arbitrary-order extraction. Only container artifacts do: a
	// direct-FASTQ download has no container to stream.
	Unsorted bool

	// Stdout reports whether the artifact can be streamed to standard
	// output.
	Stdout bool

	// Payment classifies egress cost.
	Payment PaymentClass
}

var capabilities = map[Method]Capability{
	MethodENAAscp:  {Artifact: KindFastqGz, Unsorted: false, Stdout: true, Payment: PaymentFree},
	MethodENAFTP:   {Artifact: KindFastqGz, Unsorted: false, Stdout: true, Payment: PaymentFree},
	MethodPrefetch: {Artifact: KindRawContainer, Unsorted: true, Stdout: true, Payment: PaymentFree},
	MethodAWSHTTP:  {Artifact: KindRawContainer, Unsorted: true, Stdout: true, Payment: PaymentFree},
	MethodAWSCP:    {Artifact: KindRawContainer, Unsorted: true, Stdout: true, Payment: PaymentPossible},
	MethodGCPCP:    {Artifact: KindRawContainer, Unsorted: true, Stdout: true, Payment: PaymentRequired},
}

// Capabilities returns the capability record for a method. The second
// return is false for methods outside the closed set.
func Capabilities(m Method) (Capability, bool) {
	c, ok := capabilities[m]
	return c, ok
}

// SupportsUnsorted reports whether the method's artifact allows
// arbitrary-order extraction.
func SupportsUnsorted(m Method) bool {
	return capabilities[m].Unsorted
}

// MayRequirePayment reports whether the method can incur charges at all.
func MayRequirePayment(m Method) bool {
	return capabilities[m].Payment != PaymentFree
}

// UnsortedIncompatible returns the subset of methods whose artifacts
// cannot be extracted in unsorted mode, preserving caller order.
func UnsortedIncompatible(methods []Method) []Method {
	var out []Method
	for _, m := range methods {
		if !SupportsUnsorted(m) {
			out = append(out, m)
		}
	}
	return out
}
