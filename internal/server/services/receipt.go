package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hearthledger/hearthledger/internal/common"
	sc "github.com/hearthledger/hearthledger/internal/server/config"
	"github.com/hearthledger/hearthledger/internal/server/repositories/repomanager"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// presignExpiry bounds how long an issued upload or download URL stays
// valid.
const presignExpiry = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// ReceiptService issues presigned S3 URLs for receipt images. Clients
// upload directly to object storage and attach the returned key to a
// transaction; the server never proxies receipt bytes.
type ReceiptService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	config *sc.Config
}

func NewReceiptService(db *sql.DB, rm repomanager.RepositoryManager, config *sc.Config) *ReceiptService {
	return &ReceiptService{db: db, rm: rm, config: config}
}

// NewReceiptKey returns a fresh object key, partitioned by upload date.
func NewReceiptKey() string {
	d := time.Now().UTC()
	return fmt.Sprintf("receipts/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *ReceiptService) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

// UploadURL returns a new receipt key and a presigned PUT URL for it.
func (s *ReceiptService) UploadURL(ctx context.Context) (string, string, error) {
	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := NewReceiptKey()

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", "", err
	}

	return key, req.URL, nil
}

// DownloadURL returns a presigned GET URL for the receipt attached to a
// transaction the caller may see.
func (s *ReceiptService) DownloadURL(ctx context.Context, userID, transactionID string) (string, error) {
	tx, err := s.rm.Transactions(s.db).GetByID(ctx, transactionID)
	if err != nil {
		return "", err
	}
	if tx.OwnerID != userID {
		if tx.GroupID == "" {
			return "", common.ErrorForbidden
		}
		group, err := s.rm.Groups(s.db).GetByID(ctx, tx.GroupID)
		if err != nil {
			return "", err
		}
		if !group.HasMember(userID) {
			return "", common.ErrorForbidden
		}
	}
	if tx.ReceiptKey == "" {
		return "", common.ErrorNotFound
	}

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &tx.ReceiptKey,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
