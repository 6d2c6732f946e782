package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/ena"
)

// s3Getter is the slice of the S3 client this adapter uses.
type s3Getter interface {
	GetObject(ctx context.Context, input *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// AWSCPAdapter downloads a run's SRA container from its S3 placement
// using the AWS SDK. SDL reports where the object lives; placements in
// requester-pays buckets are fetched only when the request accepts
// charges.
type AWSCPAdapter struct {
	locator   *ena.Client
	newClient func(ctx context.Context, req Request, loc ena.Location) (s3Getter, error)
}

// NewAWSCP creates the adapter. A nil newClient gets the real SDK
// client builder; tests inject their own.
func NewAWSCP(locator *ena.Client, newClient func(ctx context.Context, req Request, loc ena.Location) (s3Getter, error)) *AWSCPAdapter {
	if newClient == nil {
		newClient = newS3Client
	}
	return &AWSCPAdapter{locator: locator, newClient: newClient}
}

// Method implements Adapter.
func (a *AWSCPAdapter) Method() Method { return MethodAWSCP }

// Fetch implements Adapter.
func (a *AWSCPAdapter) Fetch(ctx context.Context, req Request) (*Artifact, error) {
	locs, err := a.locator.LocateContainer(ctx, req.Run, "s3")
	if err != nil {
		return nil, a.wrap(req, fmt.Errorf("%w: %w", ErrExecution, err))
	}
	loc := locs[0]

	if loc.PayRequired && !req.PaymentAllowed {
		return nil, a.wrap(req, fmt.Errorf("%w: %s placement of %s is requester-pays", ErrPaymentNotAllowed, loc.Service, req.Run))
	}

	bucket, key, err := loc.ObjectRef()
	if err != nil {
		return nil, a.wrap(req, fmt.Errorf("%w: %w", ErrExecution, err))
	}

	client, err := a.newClient(ctx, req, loc)
	if err != nil {
		return nil, a.wrap(req, fmt.Errorf("%w: %w", ErrPrecondition, err))
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if loc.PayRequired {
		input.RequestPayer = types.RequestPayerRequester
	}

	out, err := client.GetObject(ctx, input)
	if err != nil {
		return nil, a.wrap(req, classifyS3Error(err))
	}
	defer out.Body.Close()

	total := loc.Size
	if total == 0 {
		total = aws.ToInt64(out.ContentLength)
	}

	dest := accession.ContainerPath(req.Dir, req.Run)
	tmp := accession.TempPath(dest)

	f, err := os.Create(tmp)
	if err != nil {
		return nil, a.wrap(req, fmt.Errorf("create %s: %w", tmp, err))
	}
	_, err = io.Copy(f, newProgressReader(out.Body, total, req.Progress))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = expectation{MD5: loc.MD5, Bytes: loc.Size}.verify(tmp)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return nil, a.wrap(req, fmt.Errorf("%w: s3://%s/%s: %w", ErrExecution, bucket, key, err))
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return nil, a.wrap(req, fmt.Errorf("promote %s: %w", tmp, err))
	}

	return &Artifact{Kind: KindRawContainer, Files: []string{dest}}, nil
}

func (a *AWSCPAdapter) wrap(req Request, err error) error {
	return &MethodError{Op: "fetch", Method: MethodAWSCP, Run: req.Run, Err: err}
}

// newS3Client builds an SDK client for the reported placement. Public
// placements are read anonymously so the method works without any AWS
// credentials configured; requester-pays placements go through the
// default credential chain.
func newS3Client(ctx context.Context, req Request, loc ena.Location) (s3Getter, error) {
	region := loc.Region
	if region == "" {
		region = hostRegion(ctx)
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if req.AWSProfile != "" {
		opts = append(opts, config.WithSharedConfigProfile(req.AWSProfile))
	}
	switch {
	case req.AWSAccessKeyID != "" && req.AWSSecretAccessKey != "":
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(req.AWSAccessKeyID, req.AWSSecretAccessKey, ""),
		))
	case !loc.PayRequired:
		// Public placements need no signature at all, so the method
		// works on hosts with no AWS credentials configured.
		opts = append(opts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// hostRegion resolves the region to use when SDL reports none. On EC2
// the instance metadata service answers within the probe window and
// keeps the transfer inside the host's region; anywhere else the probe
// times out and the open-data default applies.
func hostRegion(ctx context.Context) string {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out, err := imds.New(imds.Options{}).GetRegion(probeCtx, &imds.GetRegionInput{})
	if err == nil && out.Region != "" {
		return out.Region
	}
	return "us-east-1"
}

// classifyS3Error sorts SDK failures into the two adapter error
// classes: credential and permission problems are preconditions the
// operator can fix, everything else is an execution failure.
func classifyS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return fmt.Errorf("%w: %w", ErrPrecondition, err)
		}
		return fmt.Errorf("%w: %w", ErrExecution, err)
	}

	// Fallback: check error message for common cases
	msg := err.Error()
	switch {
	case strings.Contains(msg, "AccessDenied"), strings.Contains(msg, "403"),
		strings.Contains(msg, "InvalidAccessKeyId"), strings.Contains(msg, "SignatureDoesNotMatch"),
		strings.Contains(msg, "failed to retrieve credentials"):
		return fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	return fmt.Errorf("%w: %w", ErrExecution, err)
}

var _ Adapter = (*AWSCPAdapter)(nil)
