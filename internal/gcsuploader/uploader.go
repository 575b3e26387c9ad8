// Package gcsuploader archives voice notes in Google Cloud Storage.
package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/site-ledger/internal/pipeline"
)

var _ pipeline.AudioArchive = (*AudioArchive)(nil)

// AudioArchive uploads raw voice notes to one bucket.
// It assumes Application Default Credentials are configured (gcloud auth application-default login).
type AudioArchive struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewAudioArchive creates the storage client. prefix may be empty.
func NewAudioArchive(ctx context.Context, bucket, prefix string) (*AudioArchive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewAudioArchive: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewAudioArchive: create storage client: %w", err)
	}
	return &AudioArchive{client: client, bucket: bucket, prefix: prefix}, nil
}

// Close releases the storage client.
func (a *AudioArchive) Close() error {
	return a.client.Close()
}

// Archive uploads the audio and returns its gs:// URI.
func (a *AudioArchive) Archive(ctx context.Context, note pipeline.VoiceNote, audio []byte) (string, error) {
	objectName := ObjectName(a.prefix, note)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType(note.MIMEType)
	w.Metadata = map[string]string{
		"note_id": note.ID,
		"source":  note.Source,
	}
	if _, err := w.Write(audio); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Archive: write %s: %w", objectName, err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Archive: finalize %s: %w", objectName, err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName), nil
}

// Fetch downloads an archived note, e.g. to replay it from the CLI.
func (a *AudioArchive) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	rc, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectName is prefix/YYYY/MM/DD/<source>-<note id>.<ext>, dated by receipt time (UTC).
func ObjectName(prefix string, note pipeline.VoiceNote) string {
	received := note.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}
	source := note.Source
	if source == "" {
		source = "unknown"
	}
	name := unsafeChars.ReplaceAllString(source+"-"+note.ID, "_") + extension(note.MIMEType)
	return path.Join(strings.Trim(prefix, "/"), received.UTC().Format("2006/01/02"), name)
}

// ParseGCSURI splits gs://bucket/path/to/object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

func extension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	default:
		return ".ogg"
	}
}

func contentType(mimeType string) string {
	if mimeType == "" {
		return "audio/ogg"
	}
	return mimeType
}
