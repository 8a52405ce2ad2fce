package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SpacesService resolves item artwork stored in an S3-compatible Spaces
// bucket. Display layers and the outward notifier use the resulting CDN URLs.
type SpacesService struct {
	client   *s3.Client
	bucket   string
	region   string
	ItemRoot string
}

func NewSpacesService(spacesKey, spacesSecret, region, bucket, itemRoot string) (*SpacesService, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(spacesKey, spacesSecret, "")),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load Spaces config: %w", err)
	}

	return &SpacesService{
		client:   s3.NewFromConfig(cfg),
		bucket:   bucket,
		region:   region,
		ItemRoot: strings.TrimPrefix(itemRoot, "/"),
	}, nil
}

// ItemImageURL builds the public CDN URL for an item's image key. Empty keys
// resolve to an empty URL so callers can skip the embed image.
func (s *SpacesService) ItemImageURL(imageKey string) string {
	if imageKey == "" {
		return ""
	}
	return fmt.Sprintf("https://%s.%s.cdn.digitaloceanspaces.com/%s/%s",
		s.bucket, s.region, s.ItemRoot, strings.TrimPrefix(imageKey, "/"))
}

// ImageExists checks the bucket for the image key. Used by the item-release
// webhook to flag missing artwork before an announcement goes out.
func (s *SpacesService) ImageExists(ctx context.Context, imageKey string) bool {
	if imageKey == "" {
		return false
	}

	key := fmt.Sprintf("%s/%s", s.ItemRoot, strings.TrimPrefix(imageKey, "/"))
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	return err == nil
}
