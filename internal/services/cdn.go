package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	deployerrors "github.com/pitchlab/stack-deployer/internal/errors"
	"github.com/pitchlab/stack-deployer/internal/models"
)

// CDNAPI defines the CloudFront operations used after a site publish
type CDNAPI interface {
	CreateInvalidation(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
	GetDistribution(ctx context.Context, params *cloudfront.GetDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error)
}

// CDNService invalidates cached site content on CloudFront
type CDNService struct {
	client CDNAPI
}

// NewCDNService creates a new CDNService instance
func NewCDNService(client CDNAPI) *CDNService {
	return &CDNService{client: client}
}

// Invalidate submits a cache invalidation for the given paths and returns the
// invalidation ID. The invalidation completes asynchronously on the CDN side;
// this does not wait for it.
func (s *CDNService) Invalidate(ctx context.Context, distributionID string, paths []string) (string, error) {
	logger := zerolog.Ctx(ctx)

	result, err := s.client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(distributionID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String(ksuid.New().String()),
			Paths: &types.Paths{
				Items:    paths,
				Quantity: aws.Int32(int32(len(paths))),
			},
		},
	})
	if err != nil {
		if isNoSuchDistribution(err) {
			return "", fmt.Errorf("%w: %s", deployerrors.ErrDistributionNotFound, distributionID)
		}
		return "", fmt.Errorf("failed to create invalidation for %s: %w", distributionID, err)
	}

	invalidationID := aws.ToString(result.Invalidation.Id)
	logger.Info().
		Str("distribution_id", distributionID).
		Str("invalidation_id", invalidationID).
		Strs("paths", paths).
		Msg("Created invalidation")

	return invalidationID, nil
}

// DistributionStatus returns the current state of a distribution
func (s *CDNService) DistributionStatus(ctx context.Context, distributionID string) (*models.DistributionStatus, error) {
	result, err := s.client.GetDistribution(ctx, &cloudfront.GetDistributionInput{
		Id: aws.String(distributionID),
	})
	if err != nil {
		if isNoSuchDistribution(err) {
			return nil, fmt.Errorf("%w: %s", deployerrors.ErrDistributionNotFound, distributionID)
		}
		return nil, fmt.Errorf("failed to get distribution %s: %w", distributionID, err)
	}

	dist := result.Distribution
	status := &models.DistributionStatus{
		ID:         aws.ToString(dist.Id),
		DomainName: aws.ToString(dist.DomainName),
		Status:     aws.ToString(dist.Status),
	}
	if dist.DistributionConfig != nil {
		status.Enabled = aws.ToBool(dist.DistributionConfig.Enabled)
	}
	if dist.LastModifiedTime != nil {
		status.LastModified = *dist.LastModifiedTime
	}

	return status, nil
}

// isNoSuchDistribution reports whether err is the CloudFront error returned
// for an unknown distribution id.
func isNoSuchDistribution(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchDistribution"
}
