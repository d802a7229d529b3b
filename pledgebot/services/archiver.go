package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
)

const (
	archiveContentType = "application/x-ndjson"
	archiveRunTimeout  = 2 * time.Minute
)

// SpacesOptions describes the S3 compatible bucket the journal is archived to.
type SpacesOptions struct {
	Key      string
	Secret   string
	Region   string
	Bucket   string
	Endpoint string
}

// NewSpacesClient builds an S3 client for DigitalOcean Spaces. Endpoint overrides the regional
// Spaces endpoint, which makes MinIO or AWS itself usable for local runs.
func NewSpacesClient(ctx context.Context, opts SpacesOptions) (*s3.Client, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.digitaloceanspaces.com", opts.Region)
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.Key, opts.Secret, "")),
		config.WithRegion(opts.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load spaces config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = opts.Endpoint != ""
	}), nil
}

// ObjectPutter is the part of *s3.Client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// EventSource pages through the ledger journal.
type EventSource interface {
	Events(ctx context.Context, afterSeq uint64, limit int) ([]ledger.Event, error)
}

// Archiver copies the ledger journal to object storage as JSON lines.
//
// Objects cover fixed sequence windows of batchSize events, so a key always names the same
// range: <prefix>/<first>-<last>.jsonl. A window that is still filling up is rewritten under
// the same key on later runs until it is complete.
type Archiver struct {
	source    EventSource
	putter    ObjectPutter
	bucket    string
	prefix    string
	batchSize int

	mu sync.Mutex
	// cursor is the last sequence number of the newest complete window.
	cursor uint64
	// partial remembers how many events of the open window were last uploaded.
	partial int
}

func NewArchiver(source EventSource, putter ObjectPutter, bucket, prefix string, batchSize int) *Archiver {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Archiver{
		source:    source,
		putter:    putter,
		bucket:    bucket,
		prefix:    strings.Trim(prefix, "/"),
		batchSize: batchSize,
	}
}

// Cursor returns the last sequence number known to be archived in a complete window.
func (a *Archiver) Cursor() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}

// ObjectKey names the object holding the window that starts after cursor.
func (a *Archiver) ObjectKey(windowStart uint64) string {
	last := windowStart + uint64(a.batchSize) - 1
	return fmt.Sprintf("%s/%020d-%020d.jsonl", a.prefix, windowStart, last)
}

// RunOnce uploads every window with new events and returns how many objects were written.
func (a *Archiver) RunOnce(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := uint64(a.batchSize)
	uploaded := 0
	for {
		events, err := a.source.Events(ctx, a.cursor, a.batchSize)
		if err != nil {
			return uploaded, fmt.Errorf("failed to read events after %d: %w", a.cursor, err)
		}
		if len(events) == 0 {
			return uploaded, nil
		}

		// Skip windows left empty by sequence gaps.
		windowStart := (events[0].Seq-1)/size*size + 1
		windowEnd := windowStart + size - 1
		if windowStart-1 != a.cursor {
			a.cursor = windowStart - 1
			a.partial = 0
		}

		var inWindow []ledger.Event
		complete := false
		for _, ev := range events {
			if ev.Seq > windowEnd {
				complete = true
				break
			}
			inWindow = append(inWindow, ev)
		}
		if inWindow[len(inWindow)-1].Seq == windowEnd {
			complete = true
		}

		if complete || len(inWindow) != a.partial {
			if err := a.upload(ctx, a.ObjectKey(windowStart), inWindow); err != nil {
				return uploaded, err
			}
			uploaded++
		}

		if !complete {
			a.partial = len(inWindow)
			return uploaded, nil
		}
		a.cursor = windowEnd
		a.partial = 0
	}
}

func (a *Archiver) upload(ctx context.Context, key string, events []ledger.Event) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("failed to encode event %d: %w", ev.Seq, err)
		}
	}

	_, err := a.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.bucket,
		Key:         &key,
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(archiveContentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	slog.Debug("Archived ledger events",
		slog.String("type", "archiver"),
		slog.String("key", key),
		slog.Int("events", len(events)),
	)
	return nil
}

// Run archives on every tick until ctx is cancelled. A final pass runs on shutdown so the
// open window is flushed.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Archiver started",
		slog.String("type", "archiver"),
		slog.String("bucket", a.bucket),
		slog.Duration("interval", interval),
	)

	a.tick(ctx)
	for {
		select {
		case <-ticker.C:
			a.tick(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), archiveRunTimeout)
			a.tick(flushCtx)
			cancel()
			slog.Info("Archiver stopped", slog.String("type", "archiver"), slog.Uint64("cursor", a.Cursor()))
			return nil
		}
	}
}

func (a *Archiver) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, archiveRunTimeout)
	defer cancel()

	n, err := a.RunOnce(runCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Archive run failed",
			slog.String("type", "archiver"),
			slog.Int("uploaded", n),
			slog.Any("error", err),
		)
		return
	}
	if n > 0 {
		slog.Info("Archive run finished",
			slog.String("type", "archiver"),
			slog.Int("uploaded", n),
			slog.Uint64("cursor", a.Cursor()),
		)
	}
}
