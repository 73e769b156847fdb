package aws

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/pkg/errors"
)

const kubernetesServiceAccountToken = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// Options narrows the default credential chain used for KMS-held keys
type Options struct {
	// Region overrides AWS_REGION and the profile's region
	Region string

	// Profile overrides AWS_PROFILE. Ignored inside Kubernetes, where the
	// pod's service account supplies credentials.
	Profile string
}

func (o Options) loadOptions(inKubernetes bool) []func(*config.LoadOptions) error {
	var opts []func(*config.LoadOptions) error
	if !inKubernetes {
		opts = append(opts, config.WithSharedConfigProfile(resolveProfile(o.Profile)))
	}
	if o.Region != "" {
		opts = append(opts, config.WithRegion(o.Region))
	}
	return opts
}

// LoadAWSConfig loads the default credential chain with regionOverride
func LoadAWSConfig(ctx context.Context, regionOverride string) (aws.Config, error) {
	return Load(ctx, Options{Region: regionOverride})
}

func Load(ctx context.Context, o Options) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, o.loadOptions(isInKubernetes())...)
	if err != nil {
		return aws.Config{}, errors.Wrap(err, "failed to load AWS config")
	}
	if cfg.Region == "" {
		return aws.Config{}, errors.New("no AWS region configured")
	}
	return cfg, nil
}

func isInKubernetes() bool {
	_, err := os.Stat(kubernetesServiceAccountToken)
	return err == nil
}

func resolveProfile(profile string) string {
	if profile != "" {
		return profile
	}
	if env := os.Getenv("AWS_PROFILE"); env != "" {
		return env
	}
	return "default"
}

func GetCallerIdentity(ctx context.Context, cfg aws.Config) (*sts.GetCallerIdentityOutput, error) {
	return sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
}

// CallerArn is the principal the KMS owner keys are used as
func CallerArn(ctx context.Context, cfg aws.Config) (string, error) {
	identity, err := GetCallerIdentity(ctx, cfg)
	if err != nil {
		return "", errors.Wrap(err, "failed to get AWS caller identity")
	}
	return aws.ToString(identity.Arn), nil
}
