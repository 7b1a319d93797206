package sessions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver best-effort-uploads session transcripts to S3-compatible
// storage so they survive state-dir loss, without making the Session
// Store depend on S3 being reachable for normal operation.
type Archiver struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewArchiver builds an Archiver against bucket, using the default AWS
// config resolution chain (env vars, shared config, IAM role). Returns
// nil if bucket is empty, so callers can treat archival as optional.
func NewArchiver(ctx context.Context, bucket, prefix string) (*Archiver, error) {
	if bucket == "" {
		return nil, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessions: archiver: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &Archiver{uploader: manager.NewUploader(client), bucket: bucket, prefix: prefix}, nil
}

// Archive uploads the transcript at transcriptPath under
// <prefix>/<sessionID>.jsonl. Failures are returned, not panicked on;
// callers should log and continue rather than block delivery on them.
func (a *Archiver) Archive(ctx context.Context, sessionID, transcriptPath string) error {
	f, err := os.Open(transcriptPath)
	if err != nil {
		return fmt.Errorf("sessions: archive: opening %s: %w", transcriptPath, err)
	}
	defer f.Close()

	key := filepath.ToSlash(filepath.Join(a.prefix, sessionID+".jsonl"))
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("sessions: archive: uploading %s: %w", key, err)
	}
	return nil
}
