package publish

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/firehose"
	"github.com/aws/aws-sdk-go/service/firehose/firehoseiface"

	"github.com/rezhaque35/wifi-location-data-pipeline/internal/logging"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/model"
)

type fakeFirehose struct {
	firehoseiface.FirehoseAPI
	calls   int
	handler func(calls int, in *firehose.PutRecordBatchInput) (*firehose.PutRecordBatchOutput, error)
}

func (f *fakeFirehose) PutRecordBatchWithContext(ctx aws.Context, in *firehose.PutRecordBatchInput, opts ...request.Option) (*firehose.PutRecordBatchOutput, error) {
	f.calls++
	return f.handler(f.calls, in)
}

func allSucceed(calls int, in *firehose.PutRecordBatchInput) (*firehose.PutRecordBatchOutput, error) {
	resp := make([]*firehose.PutRecordBatchResponseEntry, len(in.Records))
	for i := range resp {
		resp[i] = &firehose.PutRecordBatchResponseEntry{}
	}
	return &firehose.PutRecordBatchOutput{FailedPutCount: aws.Int64(0), RequestResponses: resp}, nil
}

func testLogger() *logging.Logger { return logging.NewStderrLogger() }

func testMeasurement(bssid string) model.Measurement {
	return model.Measurement{BSSID: bssid, SSID: "net", RSSI: -60, ConnectionStatus: model.ConnectionStatusScan}
}

func TestPublishFlushesOnCount(t *testing.T) {
	fake := &fakeFirehose{handler: allSucceed}
	cfg := Config{StreamName: "stream", MaxRecords: 2, FlushPeriod: time.Hour}
	p := NewWithClient(cfg, fake, testLogger())
	defer p.Close(context.Background(), time.Second)

	for i := 0; i < 3; i++ {
		if err := p.Publish(context.Background(), testMeasurement("aa:bb:cc:dd:ee:ff")); err != nil {
			t.Fatal(err)
		}
	}
	if fake.calls != 1 {
		t.Fatalf("expected exactly 1 flush after crossing the 2-record bound, got %d", fake.calls)
	}
	if err := p.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fake.calls != 2 {
		t.Fatalf("expected the remaining record flushed, got %d calls", fake.calls)
	}
	if p.Counters().BatchSuccess != 2 {
		t.Errorf("expected 2 successful batches, got %+v", p.Counters())
	}
}

func TestPublishRetriesPartialFailure(t *testing.T) {
	fake := &fakeFirehose{handler: func(calls int, in *firehose.PutRecordBatchInput) (*firehose.PutRecordBatchOutput, error) {
		if calls == 1 {
			return &firehose.PutRecordBatchOutput{
				FailedPutCount: aws.Int64(1),
				RequestResponses: []*firehose.PutRecordBatchResponseEntry{
					{ErrorCode: aws.String("ServiceUnavailableException")},
				},
			}, nil
		}
		return allSucceed(calls, in)
	}}
	cfg := Config{StreamName: "stream", MaxRecords: 1, FlushPeriod: time.Hour, BaseBackoff: time.Millisecond}
	p := NewWithClient(cfg, fake, testLogger())
	defer p.Close(context.Background(), time.Second)

	if err := p.Publish(context.Background(), testMeasurement("aa:bb:cc:dd:ee:ff")); err != nil {
		t.Fatal(err)
	}
	if err := p.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fake.calls != 2 {
		t.Fatalf("expected one retry after partial failure, got %d calls", fake.calls)
	}
	c := p.Counters()
	if c.PartialFailures != 1 || c.BatchSuccess != 1 {
		t.Errorf("unexpected counters: %+v", c)
	}
}

func TestPublishRetriesPartialFailureTwoRecords(t *testing.T) {
	fake := &fakeFirehose{handler: func(calls int, in *firehose.PutRecordBatchInput) (*firehose.PutRecordBatchOutput, error) {
		if calls == 1 {
			return &firehose.PutRecordBatchOutput{
				FailedPutCount: aws.Int64(2),
				RequestResponses: []*firehose.PutRecordBatchResponseEntry{
					{ErrorCode: aws.String("ServiceUnavailableException")},
					{},
					{ErrorCode: aws.String("ServiceUnavailableException")},
				},
			}, nil
		}
		return allSucceed(calls, in)
	}}
	cfg := Config{StreamName: "stream", MaxRecords: 3, FlushPeriod: time.Hour, BaseBackoff: time.Millisecond}
	p := NewWithClient(cfg, fake, testLogger())
	defer p.Close(context.Background(), time.Second)

	for _, bssid := range []string{"aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:02", "aa:bb:cc:dd:ee:03"} {
		if err := p.Publish(context.Background(), testMeasurement(bssid)); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fake.calls != 2 {
		t.Fatalf("expected one retry batch after the partial failure, got %d calls", fake.calls)
	}
	c := p.Counters()
	if c.PartialFailures != 2 {
		t.Errorf("expected partialFailures incremented by the 2 failed records, got %+v", c)
	}
}

func TestPublishPermanentErrorStopsRetrying(t *testing.T) {
	fake := &fakeFirehose{handler: func(calls int, in *firehose.PutRecordBatchInput) (*firehose.PutRecordBatchOutput, error) {
		return nil, awserr.New(firehose.ErrCodeResourceNotFoundException, "no such stream", nil)
	}}
	cfg := Config{StreamName: "missing", MaxRecords: 1, FlushPeriod: time.Hour}
	p := NewWithClient(cfg, fake, testLogger())
	defer p.Close(context.Background(), time.Second)

	if err := p.Publish(context.Background(), testMeasurement("aa:bb:cc:dd:ee:01")); err != nil {
		t.Fatal(err)
	}
	if err := p.Publish(context.Background(), testMeasurement("aa:bb:cc:dd:ee:ff")); err == nil {
		t.Fatal("expected the flush triggered by the bound to surface the permanent error")
	}
	if fake.calls != 1 {
		t.Fatalf("expected no retry on a permanent error, got %d calls", fake.calls)
	}
}

func TestPublishRecordTooLarge(t *testing.T) {
	fake := &fakeFirehose{handler: allSucceed}
	p := NewWithClient(Config{StreamName: "stream"}, fake, testLogger())
	defer p.Close(context.Background(), time.Second)

	huge := testMeasurement("aa:bb:cc:dd:ee:ff")
	huge.OSBuild = string(make([]byte, defaultMaxRecordBytes+1))
	if err := p.Publish(context.Background(), huge); err != ErrRecordTooLarge {
		t.Fatalf("expected ErrRecordTooLarge, got %v", err)
	}
	if p.Counters().RecordTooLarge != 1 {
		t.Errorf("expected RecordTooLarge counter incremented")
	}
}
