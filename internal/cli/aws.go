package cli

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// NewSSMClient returns a Parameter Store client for cfg.
func NewSSMClient(cfg aws.Config) *ssm.Client {
	return ssm.NewFromConfig(cfg)
}

// NewS3Clients returns an S3 client and its presigner for cfg.
func NewS3Clients(cfg aws.Config) (*s3.Client, *s3.PresignClient) {
	client := s3.NewFromConfig(cfg)
	return client, s3.NewPresignClient(client)
}
