// Package s3upload copies a run's result files to an S3 bucket once the run
// has ended.
package s3upload

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/itohio/tempgraph/pkg/config"
	"github.com/itohio/tempgraph/pkg/session"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// putter is the part of *s3.Client the uploader uses.
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader uploads the results and series files on End. Files that do not
// exist are skipped.
type Uploader struct {
	client putter
	bucket string
	prefix string
	log    *logrus.Entry
	files  []string
}

var _ session.Recorder = (*Uploader)(nil)

// New loads the default AWS configuration and creates a client.
func New(ctx context.Context, cfg config.S3Config, log *logrus.Entry) (*Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS configuration")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return newUploader(client, cfg, log), nil
}

func newUploader(client putter, cfg config.S3Config, log *logrus.Entry) *Uploader {
	return &Uploader{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, log: log}
}

// Key returns the object key of a local file.
func (u *Uploader) Key(file string) string {
	return path.Join(u.prefix, filepath.Base(file))
}

func (u *Uploader) Begin(_ context.Context, run session.Run) error {
	u.files = []string{run.Params.ResultsFile(), run.Params.SeriesFile()}
	return nil
}

func (u *Uploader) Record(context.Context, session.Measurement) error {
	return nil
}

func (u *Uploader) End(ctx context.Context, _ session.Summary) error {
	for _, file := range u.files {
		if err := u.upload(ctx, file); err != nil {
			return err
		}
	}
	return nil
}

func (u *Uploader) upload(ctx context.Context, file string) error {
	content, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		u.log.WithField("file", file).Debug("Nothing to upload")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", file)
	}

	key := u.Key(file)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType(file)),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to upload %s", key)
	}
	u.log.WithFields(logrus.Fields{"bucket": u.bucket, "key": key}).Info("Uploaded")
	return nil
}

func contentType(file string) string {
	if filepath.Ext(file) == ".csv" {
		return "text/csv"
	}
	return "text/plain"
}
