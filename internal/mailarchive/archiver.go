// Package mailarchive stores a JSON copy of every fetched raw email in a GCS
// bucket, for audit and later re-extraction. Archival is best-effort: the
// sync pipeline logs failures and moves on.
package mailarchive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/sanchay-app/sanchay/internal/logger"
	"github.com/sanchay-app/sanchay/internal/mail"
)

const uploadTimeout = 2 * time.Minute

// GCSArchiver writes raw messages to gs://<bucket>/emails/<id>.json.
// It assumes Application Default Credentials are configured.
type GCSArchiver struct {
	client *storage.Client
	bucket string
}

// NewGCSArchiver creates an archiver with its own storage client.
func NewGCSArchiver(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSArchiver, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCSArchiver: create storage client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: bucket}, nil
}

// Close releases the underlying client.
func (a *GCSArchiver) Close() error {
	return a.client.Close()
}

// Archive uploads the message as JSON. Re-archiving the same message id
// overwrites the previous object with identical content.
func (a *GCSArchiver) Archive(ctx context.Context, msg *mail.RawMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("Archive: encoding message %s: %w", msg.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	objectName := fmt.Sprintf("emails/%s.json", msg.ID)
	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("Archive: writing %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Archive: closing writer for %s: %w", objectName, err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("email_id", msg.ID).
		Str("object", objectName).
		Msg("Archived raw message")
	return nil
}
