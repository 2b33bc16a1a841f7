package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Config holds credentials and addressing for the offsite segment
// backup bucket. Works with AWS S3 and with S3-compatible stores when
// an explicit endpoint is set.
type S3Config struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Endpoint  string
	Region    string
	Prefix    string

	// BaseURL is the public hostname for the bucket (CDN or public
	// bucket domain). When set, uploads report a browsable URL.
	BaseURL string
}

const maxUploadAttempts = 3

// S3Backup mirrors accepted segments into a remote bucket.
type S3Backup struct {
	config   S3Config
	uploader *s3manager.Uploader
}

// NewS3Backup creates the backup uploader. A sequential single-part
// pipeline keeps one HTTP connection active so backups never starve the
// ingest path on a constrained uplink.
func NewS3Backup(config S3Config) (*S3Backup, error) {
	if config.Region == "" {
		config.Region = "auto"
	}

	awsConfig := &aws.Config{
		Credentials:      credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(true),
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %v", err)
	}

	uploader := s3manager.NewUploader(sess, func(u *s3manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 1
	})

	return &S3Backup{config: config, uploader: uploader}, nil
}

// UploadSegment pushes one stored segment to the bucket, retrying with
// exponential backoff. Returns the public URL of the stored object.
func (b *S3Backup) UploadSegment(localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %v", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %v", localPath, err)
	}

	key := filepath.Base(localPath)
	if b.config.Prefix != "" {
		key = strings.TrimSuffix(b.config.Prefix, "/") + "/" + key
	}

	log.Printf("[storage] Backing up %s (%.2f MB) to s3://%s/%s",
		filepath.Base(localPath), float64(info.Size())/1024/1024, b.config.Bucket, key)

	var lastErr error
	for attempt := 1; attempt <= maxUploadAttempts; attempt++ {
		if _, err := file.Seek(0, 0); err != nil {
			return "", fmt.Errorf("failed to rewind %s: %v", localPath, err)
		}

		_, lastErr = b.uploader.Upload(&s3manager.UploadInput{
			Bucket:      aws.String(b.config.Bucket),
			Key:         aws.String(key),
			Body:        file,
			ContentType: aws.String("video/mp4"),
			Metadata: map[string]*string{
				"OriginalFileName": aws.String(filepath.Base(localPath)),
				"UploadedAt":       aws.String(time.Now().Format(time.RFC3339)),
				"FileSize":         aws.String(fmt.Sprintf("%d", info.Size())),
			},
		})
		if lastErr == nil {
			return b.objectURL(key), nil
		}

		log.Printf("[storage] Backup attempt %d/%d failed for %s: %v", attempt, maxUploadAttempts, localPath, lastErr)
		time.Sleep(time.Duration(1<<uint(attempt)) * time.Second)
	}
	return "", fmt.Errorf("failed to back up %s after %d attempts: %v", localPath, maxUploadAttempts, lastErr)
}

func (b *S3Backup) objectURL(key string) string {
	if b.config.BaseURL != "" {
		return strings.TrimSuffix(b.config.BaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("s3://%s/%s", b.config.Bucket, key)
}
