// Package publish batches Measurements and ships them to a Firehose
// delivery stream, in the idiom of gravwell's own batch-oriented
// ingest muxer writers, generalized from the Amazon-Firehose record
// shape gravwell's HTTP listener decodes on the way in
// (amazon_firehose.go.reference's AFHRequest/record types) to the
// outbound PutRecordBatch call that listener never had to make.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/firehose"
	"github.com/aws/aws-sdk-go/service/firehose/firehoseiface"

	"github.com/rezhaque35/wifi-location-data-pipeline/internal/logging"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/model"
)

const (
	hardMaxRecordBytes    = 1024 * 1024      // Firehose's own per-record cap
	maxBatchBytes         = 4 * 1024 * 1024  // Firehose per-PutRecordBatch cap
	maxBatchRecords       = 500
	defaultFlushPeriod    = 5 * time.Second
	defaultMaxRetries     = 3
	defaultMaxRecordBytes = 1000 * 1024 // 1000 KiB
	defaultBaseBackoff    = time.Second
	backoffJitter         = 0.2 // ±20%
)

var (
	// ErrRecordTooLarge is counted and the record dropped; it can never
	// succeed regardless of retry.
	ErrRecordTooLarge = errors.New("serialized record exceeds firehose per-record limit")
	// ErrClosed is returned by Publish/Flush after Close has completed.
	ErrClosed = errors.New("publisher is closed")
)

// Config carries the batch-shape and retry tunables.
type Config struct {
	StreamName     string
	Region         string
	Credentials    *credentials.Credentials
	MaxRecords     int
	MaxBytes       int
	MaxRecordBytes int
	FlushPeriod    time.Duration
	MaxRetries     int
	BaseBackoff    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRecords <= 0 || c.MaxRecords > maxBatchRecords {
		c.MaxRecords = maxBatchRecords
	}
	if c.MaxBytes <= 0 || c.MaxBytes > maxBatchBytes {
		c.MaxBytes = maxBatchBytes
	}
	if c.MaxRecordBytes <= 0 {
		c.MaxRecordBytes = defaultMaxRecordBytes
	}
	if c.MaxRecordBytes > hardMaxRecordBytes {
		c.MaxRecordBytes = hardMaxRecordBytes
	}
	if c.FlushPeriod <= 0 {
		c.FlushPeriod = defaultFlushPeriod
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = defaultBaseBackoff
	}
	return c
}

// Counters tallies publisher outcomes for the process-wide metrics
// registry.
type Counters struct {
	mu                  sync.Mutex
	BatchSuccess        int
	PartialFailures     int
	PermanentErrors     int
	RetriableErrors     int
	DroppedAfterRetries int
	RecordTooLarge      int
}

func (c *Counters) add(f func(*Counters)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(c)
}

// Snapshot returns a copy safe to read without further locking.
func (c *Counters) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Counters{
		BatchSuccess:        c.BatchSuccess,
		PartialFailures:     c.PartialFailures,
		PermanentErrors:     c.PermanentErrors,
		RetriableErrors:     c.RetriableErrors,
		DroppedAfterRetries: c.DroppedAfterRetries,
		RecordTooLarge:      c.RecordTooLarge,
	}
}

// Publisher buffers Measurements and flushes them to Firehose on
// whichever bound (count, bytes, or time) hits first.
type Publisher struct {
	cfg Config
	svc firehoseiface.FirehoseAPI
	lg  *logging.Logger

	mu       sync.Mutex
	buf      [][]byte
	bufBytes int

	counters Counters

	flushTimer *time.Timer
	closeOnce  sync.Once
	closed     bool
}

// New builds a Publisher and establishes one AWS session for the life
// of the process.
func New(cfg Config, lg *logging.Logger) (*Publisher, error) {
	cfg = cfg.withDefaults()
	awsCfg := aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Credentials != nil {
		awsCfg.Credentials = cfg.Credentials
	}
	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create firehose session: %w", err)
	}
	return NewWithClient(cfg, firehose.New(sess), lg), nil
}

// NewWithClient builds a Publisher against an already-constructed
// Firehose client, letting tests inject a fake implementing
// firehoseiface.FirehoseAPI.
func NewWithClient(cfg Config, svc firehoseiface.FirehoseAPI, lg *logging.Logger) *Publisher {
	cfg = cfg.withDefaults()
	p := &Publisher{cfg: cfg, svc: svc, lg: lg}
	p.flushTimer = time.AfterFunc(cfg.FlushPeriod, p.timedFlush)
	return p
}

// Counters exposes the running totals.
func (p *Publisher) Counters() Counters { return p.counters.Snapshot() }

// Publish appends one Measurement to the buffer, flushing synchronously
// if appending it would cross a bound.
func (p *Publisher) Publish(ctx context.Context, m model.Measurement) error {
	rec, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal measurement: %w", err)
	}
	rec = append(rec, '\n')
	if len(rec) > p.cfg.MaxRecordBytes {
		p.counters.add(func(c *Counters) { c.RecordTooLarge++ })
		return ErrRecordTooLarge
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	wouldExceedCount := len(p.buf)+1 > p.cfg.MaxRecords
	wouldExceedBytes := p.bufBytes+len(rec) > p.cfg.MaxBytes
	if (wouldExceedCount || wouldExceedBytes) && len(p.buf) > 0 {
		toFlush := p.buf
		p.buf = nil
		p.bufBytes = 0
		p.mu.Unlock()
		if err := p.flushBatch(ctx, toFlush); err != nil {
			return err
		}
		p.mu.Lock()
	}
	p.buf = append(p.buf, rec)
	p.bufBytes += len(rec)
	p.mu.Unlock()
	return nil
}

// Flush sends whatever is currently buffered, regardless of bounds.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	toFlush := p.buf
	p.buf = nil
	p.bufBytes = 0
	p.mu.Unlock()
	return p.flushBatch(ctx, toFlush)
}

func (p *Publisher) timedFlush() {
	if err := p.Flush(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
		p.lg.Warn("periodic flush failed", logging.KVErr(err))
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if !closed {
		p.flushTimer.Reset(p.cfg.FlushPeriod)
	}
}

// Close flushes any remaining buffer and stops the periodic timer.
// Deadline bounds how long the final flush (and its retries) may run.
func (p *Publisher) Close(ctx context.Context, deadline time.Duration) error {
	var err error
	p.closeOnce.Do(func() {
		p.flushTimer.Stop()
		dctx, cancel := context.WithTimeout(ctx, deadline)
		defer cancel()
		err = p.Flush(dctx)
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
	})
	return err
}

// flushBatch sends one PutRecordBatch call, retrying the partial
// failures with exponential backoff and jitter up to MaxRetries times.
func (p *Publisher) flushBatch(ctx context.Context, records [][]byte) error {
	if len(records) == 0 {
		return nil
	}

	pending := records
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, p.cfg.BaseBackoff, attempt); err != nil {
				return err
			}
		}

		entries := make([]*firehose.Record, len(pending))
		for i, rec := range pending {
			entries[i] = &firehose.Record{Data: rec}
		}

		out, err := p.svc.PutRecordBatchWithContext(ctx, &firehose.PutRecordBatchInput{
			DeliveryStreamName: aws.String(p.cfg.StreamName),
			Records:            entries,
		})
		if err != nil {
			if isPermanentAWSError(err) {
				p.counters.add(func(c *Counters) { c.PermanentErrors++ })
				return fmt.Errorf("permanent firehose error: %w", err)
			}
			p.counters.add(func(c *Counters) { c.RetriableErrors++ })
			continue // retry the whole batch
		}

		failedCount := aws.Int64Value(out.FailedPutCount)
		if failedCount == 0 {
			p.counters.add(func(c *Counters) { c.BatchSuccess++ })
			return nil
		}

		var retry [][]byte
		for i, res := range out.RequestResponses {
			if res.ErrorCode == nil {
				continue
			}
			retry = append(retry, pending[i])
		}
		p.counters.add(func(c *Counters) { c.PartialFailures += len(retry) })
		pending = retry
		if len(pending) == 0 {
			return nil
		}
	}

	p.counters.add(func(c *Counters) { c.DroppedAfterRetries += len(pending) })
	p.lg.Error("dropping records after exhausting retries", logging.NewKV("count", len(pending)))
	return fmt.Errorf("dropped %d records after %d retries", len(pending), p.cfg.MaxRetries)
}

func isPermanentAWSError(err error) bool {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return false
	}
	switch aerr.Code() {
	case firehose.ErrCodeResourceNotFoundException,
		firehose.ErrCodeInvalidArgumentException:
		return true
	}
	return false
}

// sleepBackoff implements baseBackoff * 2^(attempt-1) * (1 ± jitter),
// attempt counting from 1 for the first retry.
func sleepBackoff(ctx context.Context, baseBackoff time.Duration, attempt int) error {
	scaled := baseBackoff * time.Duration(1<<uint(attempt-1))
	jitterRange := float64(scaled) * backoffJitter
	offset := (rand.Float64()*2 - 1) * jitterRange // uniform in [-jitterRange, +jitterRange]
	d := time.Duration(float64(scaled) + offset)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
