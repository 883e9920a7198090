// Package cloud establishes the authenticated EC2 handle used by every
// other component and classifies the errors it returns.
package cloud

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/raoulx24/bsu-backup/internal/config"
	"github.com/raoulx24/bsu-backup/internal/logging"
)

// EC2API is the subset of the EC2 client used by this program.
// *ec2.Client satisfies it.
type EC2API interface {
	DescribeInstances(context.Context, *ec2.DescribeInstancesInput, ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVolumes(context.Context, *ec2.DescribeVolumesInput, ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeSnapshots(context.Context, *ec2.DescribeSnapshotsInput, ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	CreateSnapshot(context.Context, *ec2.CreateSnapshotInput, ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error)
	CreateTags(context.Context, *ec2.CreateTagsInput, ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DeleteSnapshot(context.Context, *ec2.DeleteSnapshotInput, ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error)
	DescribeKeyPairs(context.Context, *ec2.DescribeKeyPairsInput, ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error)
}

var _ EC2API = (*ec2.Client)(nil)

// Connect resolves the endpoint, loads credentials for the configured
// profile and returns a client that has answered one probe request.
// Endpoint problems are reported before anything goes over the network.
func Connect(ctx context.Context, auth config.AuthConfig, log logging.Logger) (*ec2.Client, error) {
	endpoint, err := ResolveEndpoint(auth.Region, auth.Endpoint)
	if err != nil {
		return nil, err
	}

	log.Info("connecting", "region", auth.Region, "endpoint", endpoint, "profile", auth.Profile)

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(auth.Region),
		awsconfig.WithRetryMode(aws.RetryModeStandard),
	}
	if auth.MaxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(auth.MaxAttempts))
	}
	if auth.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(auth.Profile))
	}
	if auth.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(auth.AccessKey, auth.SecretKey, ""),
		))
	}
	if auth.ClientCert != "" {
		httpClient, err := clientCertHTTPClient(auth.ClientCert, auth.ClientKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, awsconfig.WithHTTPClient(httpClient))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := ec2.NewFromConfig(awsCfg, func(o *ec2.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	if err := probe(ctx, client, log); err != nil {
		return nil, err
	}
	return client, nil
}

// probe issues a cheap authenticated call so credential problems surface
// before any snapshot is created.
func probe(ctx context.Context, api EC2API, log logging.Logger) error {
	out, err := api.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{})
	if err != nil {
		return fmt.Errorf("probing endpoint: %w", err)
	}
	log.Debug("connected", "keyPairs", len(out.KeyPairs))
	return nil
}

// clientCertHTTPClient builds an HTTP client presenting a client
// certificate. When keyFile is empty the key is read from certFile.
func clientCertHTTPClient(certFile, keyFile string) (*awshttp.BuildableClient, error) {
	if keyFile == "" {
		keyFile = certFile
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: loading client certificate: %v", config.ErrInvalid, err)
	}

	return awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
		if tr.TLSClientConfig == nil {
			tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		tr.TLSClientConfig.Certificates = []tls.Certificate{cert}
	}), nil
}
