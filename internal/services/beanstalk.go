package services

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	"github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pitchlab/stack-deployer/internal/errors"
	"github.com/pitchlab/stack-deployer/internal/models"
	"github.com/rs/zerolog"
)

// BeanstalkAPI defines the Elastic Beanstalk operations used by backend deploys
type BeanstalkAPI interface {
	CreateApplicationVersion(ctx context.Context, params *elasticbeanstalk.CreateApplicationVersionInput, optFns ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.CreateApplicationVersionOutput, error)
	UpdateEnvironment(ctx context.Context, params *elasticbeanstalk.UpdateEnvironmentInput, optFns ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.UpdateEnvironmentOutput, error)
	DescribeEnvironments(ctx context.Context, params *elasticbeanstalk.DescribeEnvironmentsInput, optFns ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.DescribeEnvironmentsOutput, error)
	DescribeEvents(ctx context.Context, params *elasticbeanstalk.DescribeEventsInput, optFns ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.DescribeEventsOutput, error)
}

// ArtifactUploader abstracts S3 PutObject for uploading version bundles
type ArtifactUploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// BeanstalkService deploys application versions to Elastic Beanstalk
type BeanstalkService struct {
	ebClient BeanstalkAPI
	s3Client ArtifactUploader
}

// NewBeanstalkService creates a new BeanstalkService instance
func NewBeanstalkService(ebClient BeanstalkAPI, s3Client ArtifactUploader) *BeanstalkService {
	return &BeanstalkService{
		ebClient: ebClient,
		s3Client: s3Client,
	}
}

// RegisterVersionInput describes a new application version
type RegisterVersionInput struct {
	Application string
	Label       string
	Description string
	Bucket      string
	Key         string
	Tags        []types.Tag
}

// UploadBundle uploads a zipped source bundle to S3
func (s *BeanstalkService) UploadBundle(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload bundle to s3://%s/%s: %w", bucket, key, err)
	}

	return nil
}

// RegisterVersion creates an application version pointing at an uploaded bundle
func (s *BeanstalkService) RegisterVersion(ctx context.Context, input RegisterVersionInput) error {
	logger := zerolog.Ctx(ctx)

	createInput := &elasticbeanstalk.CreateApplicationVersionInput{
		ApplicationName: aws.String(input.Application),
		VersionLabel:    aws.String(input.Label),
		SourceBundle: &types.S3Location{
			S3Bucket: aws.String(input.Bucket),
			S3Key:    aws.String(input.Key),
		},
		Tags: input.Tags,
	}
	if input.Description != "" {
		createInput.Description = aws.String(input.Description)
	}

	if _, err := s.ebClient.CreateApplicationVersion(ctx, createInput); err != nil {
		return fmt.Errorf("failed to create application version %s: %w", input.Label, err)
	}

	logger.Info().
		Str("application", input.Application).
		Str("version", input.Label).
		Msg("Registered application version")

	return nil
}

// Activate points an environment at an existing application version. The
// rollout itself is asynchronous; this returns as soon as the update is
// accepted.
func (s *BeanstalkService) Activate(ctx context.Context, application, environment, label string) error {
	_, err := s.ebClient.UpdateEnvironment(ctx, &elasticbeanstalk.UpdateEnvironmentInput{
		ApplicationName: aws.String(application),
		EnvironmentName: aws.String(environment),
		VersionLabel:    aws.String(label),
	})
	if err != nil {
		return fmt.Errorf("failed to update environment %s: %w", environment, err)
	}

	return nil
}

// EnvironmentStatus returns the current state of a named environment
func (s *BeanstalkService) EnvironmentStatus(ctx context.Context, application, environment string) (*models.EnvironmentStatus, error) {
	result, err := s.ebClient.DescribeEnvironments(ctx, &elasticbeanstalk.DescribeEnvironmentsInput{
		ApplicationName:  aws.String(application),
		EnvironmentNames: []string{environment},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe environment %s: %w", environment, err)
	}

	if len(result.Environments) == 0 {
		return nil, fmt.Errorf("%w: %s", errors.ErrEnvironmentNotFound, environment)
	}

	env := result.Environments[0]
	status := &models.EnvironmentStatus{
		Application:  application,
		Environment:  aws.ToString(env.EnvironmentName),
		Status:       string(env.Status),
		Health:       string(env.Health),
		VersionLabel: aws.ToString(env.VersionLabel),
		CNAME:        aws.ToString(env.CNAME),
	}
	if env.DateUpdated != nil {
		status.LastUpdated = *env.DateUpdated
	}

	return status, nil
}

// RecentEvents returns the most recent events for an environment, newest first
func (s *BeanstalkService) RecentEvents(ctx context.Context, environment string, limit int) ([]models.EnvironmentEvent, error) {
	input := &elasticbeanstalk.DescribeEventsInput{
		EnvironmentName: aws.String(environment),
	}
	if limit > 0 {
		input.MaxRecords = aws.Int32(int32(limit))
	}

	result, err := s.ebClient.DescribeEvents(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to describe events for %s: %w", environment, err)
	}

	events := make([]models.EnvironmentEvent, 0, len(result.Events))
	for _, event := range result.Events {
		item := models.EnvironmentEvent{
			Severity: string(event.Severity),
			Message:  aws.ToString(event.Message),
		}
		if event.EventDate != nil {
			item.Timestamp = *event.EventDate
		}
		events = append(events, item)
	}

	return events, nil
}
