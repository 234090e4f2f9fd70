// Package storage uploads rendered QR code images to S3.
package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the slice of the S3 client the store needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// QRImageStore writes PNGs under qrcodes/<organizerId>/<tokenId>.png.
type QRImageStore struct {
	client PutObjectAPI
	bucket string
	region string
}

// NewQRImageStore loads the default AWS credential chain for region.
func NewQRImageStore(ctx context.Context, region, bucket string) (*QRImageStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewQRImageStoreWithClient(s3.NewFromConfig(cfg), region, bucket), nil
}

// NewQRImageStoreWithClient wraps an existing client.
func NewQRImageStoreWithClient(client PutObjectAPI, region, bucket string) *QRImageStore {
	return &QRImageStore{client: client, bucket: bucket, region: region}
}

// ObjectKey is the key an organizer's token image is stored under.
func ObjectKey(organizerID, tokenID string) string {
	return fmt.Sprintf("qrcodes/%s/%s.png", organizerID, tokenID)
}

// PutQRImage uploads png and returns its public URL.
func (s *QRImageStore) PutQRImage(ctx context.Context, organizerID, tokenID string, png []byte) (string, error) {
	key := ObjectKey(organizerID, tokenID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(png),
		ContentType:   aws.String("image/png"),
		ContentLength: aws.Int64(int64(len(png))),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}
