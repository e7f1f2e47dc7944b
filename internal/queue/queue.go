// Package queue wraps SQS receive/delete and the S3-event envelope
// decoding, in the idiom of gravwell's sqs_common.SQS client and its
// manager.go snsDecode/s3Decode pair.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"

	"github.com/rezhaque35/wifi-location-data-pipeline/internal/logging"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/model"
)

const (
	defaultWaitTimeSeconds  = 20
	defaultMaxMessages      = 10
	defaultVisibilityTimeout = 60
)

var (
	errEmptyBucket = errors.New("empty bucket name")
	errEmptyKey    = errors.New("empty key name")

	// ErrNoEnvelope is returned when a message body matches neither the
	// SNS-wrapped nor the direct S3 event-notification shape.
	ErrNoEnvelope = errors.New("message matches neither SNS nor S3 event envelope")
)

// Config carries the queue's connection tunables.
type Config struct {
	QueueURL           string
	Region             string
	Credentials        *credentials.Credentials
	WaitTimeSeconds    int64
	MaxMessages        int64
	VisibilityTimeout  int64
}

func (c Config) withDefaults() Config {
	if c.WaitTimeSeconds <= 0 {
		c.WaitTimeSeconds = defaultWaitTimeSeconds
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = defaultMaxMessages
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = defaultVisibilityTimeout
	}
	return c
}

// Message is one polled SQS message paired with the upload events it
// decoded to (an SNS/S3 batch notification may bundle several).
type Message struct {
	ReceiptHandle string
	MessageID     string
	Events        []model.UploadEvent
}

// Queue wraps one SQS queue: long-poll receive and batch delete.
type Queue struct {
	cfg Config
	svc *sqs.SQS
	lg  *logging.Logger
}

// New builds a Queue, establishing one AWS session for the life of the
// process (mirrors sqs_common.SQSListener).
func New(cfg Config, lg *logging.Logger) (*Queue, error) {
	cfg = cfg.withDefaults()
	awsCfg := aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Credentials != nil {
		awsCfg.Credentials = cfg.Credentials
	}
	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, err
	}
	return &Queue{cfg: cfg, svc: sqs.New(sess), lg: lg}, nil
}

// Receive long-polls for up to MaxMessages, decoding each message body
// into its UploadEvents. A message whose body fails to decode is
// returned anyway (with Events == nil) so the caller can delete it as a
// poison message.
func (q *Queue) Receive(ctx context.Context) ([]Message, error) {
	attr := "SentTimestamp"
	req := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.cfg.QueueURL),
		AttributeNames:      []*string{&attr},
		MaxNumberOfMessages: aws.Int64(q.cfg.MaxMessages),
		WaitTimeSeconds:     aws.Int64(q.cfg.WaitTimeSeconds),
		VisibilityTimeout:   aws.Int64(q.cfg.VisibilityTimeout),
	}
	out, err := q.svc.ReceiveMessageWithContext(ctx, req)
	if err != nil {
		return nil, err
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msg := Message{
			ReceiptHandle: aws.StringValue(m.ReceiptHandle),
			MessageID:     aws.StringValue(m.MessageId),
		}
		body := []byte(aws.StringValue(m.Body))
		events, err := decodeEnvelope(body)
		if err != nil {
			q.lg.Warn("failed to decode queue message envelope", logging.NewKV("message_id", msg.MessageID), logging.KVErr(err))
		}
		msg.Events = events
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Delete batch-deletes the given receipt handles, retrying once on
// failure (mirrors sqs_common.SQS.DeleteMessages's single retry).
func (q *Queue) Delete(ctx context.Context, receiptHandles []string) error {
	if len(receiptHandles) == 0 {
		return nil
	}
	req := &sqs.DeleteMessageBatchInput{QueueUrl: aws.String(q.cfg.QueueURL)}
	for i, rh := range receiptHandles {
		req.Entries = append(req.Entries, &sqs.DeleteMessageBatchRequestEntry{
			Id:            aws.String(strconv.Itoa(i)),
			ReceiptHandle: aws.String(rh),
		})
	}
	_, err := q.svc.DeleteMessageBatchWithContext(ctx, req)
	if err != nil {
		q.lg.Error("deleting messages failed, retrying", logging.KVErr(err))
		if _, err = q.svc.DeleteMessageBatchWithContext(ctx, req); err != nil {
			q.lg.Error("deleting messages retry failed, objects will likely be reprocessed", logging.KVErr(err))
		}
	}
	return err
}

// decodeEnvelope tries the SNS-wrapped shape first, then the direct S3
// event-notification shape, exactly as manager.go's worker does.
func decodeEnvelope(body []byte) ([]model.UploadEvent, error) {
	events, err := snsDecode(body)
	if err == nil {
		return events, nil
	}
	events, err2 := s3Decode(body)
	if err2 == nil {
		return events, nil
	}
	return nil, ErrNoEnvelope
}

type snsEnvelope struct {
	Type    string
	Message string
}

type s3SubMessage struct {
	S3Bucket    string   `json:"s3Bucket"`
	S3ObjectKey []string `json:"s3ObjectKey"`
}

func snsDecode(input []byte) ([]model.UploadEvent, error) {
	var env snsEnvelope
	if err := json.NewDecoder(bytes.NewReader(input)).Decode(&env); err != nil {
		return nil, err
	}
	var sub s3SubMessage
	if err := json.NewDecoder(strings.NewReader(env.Message)).Decode(&sub); err != nil {
		return nil, err
	}
	if sub.S3Bucket == "" {
		return nil, errEmptyBucket
	}
	events := make([]model.UploadEvent, 0, len(sub.S3ObjectKey))
	for _, k := range sub.S3ObjectKey {
		if k == "" {
			return nil, errEmptyKey
		}
		events = append(events, model.UploadEvent{Bucket: sub.S3Bucket, ObjectKey: k, EventTime: time.Now()})
	}
	return events, nil
}

type s3Records struct {
	Records []s3InnerRecord
}

type s3InnerRecord struct {
	EventName string         `json:"eventName"`
	EventTime time.Time      `json:"eventTime"`
	S3        s3RecordObject `json:"s3"`
}

type s3RecordObject struct {
	Bucket s3BucketObject `json:"bucket"`
	Object s3ObjectObject `json:"object"`
}

type s3BucketObject struct {
	Name string `json:"name"`
}

type s3ObjectObject struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
	ETag string `json:"eTag"`
}

func s3Decode(input []byte) ([]model.UploadEvent, error) {
	var d s3Records
	if err := json.NewDecoder(bytes.NewReader(input)).Decode(&d); err != nil {
		return nil, err
	}
	if len(d.Records) == 0 {
		return nil, errors.New("no records")
	}
	events := make([]model.UploadEvent, 0, len(d.Records))
	for _, r := range d.Records {
		if !strings.Contains(r.EventName, "ObjectCreated") {
			continue
		}
		if r.S3.Bucket.Name == "" {
			return nil, errEmptyBucket
		}
		if r.S3.Object.Key == "" {
			return nil, errEmptyKey
		}
		events = append(events, model.UploadEvent{
			Bucket:     r.S3.Bucket.Name,
			ObjectKey:  r.S3.Object.Key,
			ObjectSize: r.S3.Object.Size,
			ETag:       r.S3.Object.ETag,
			EventTime:  r.EventTime,
		})
	}
	return events, nil
}
