// Command ingestd runs the WiFi-scan ingestion pipeline end to end:
// long-poll SQS for object-created notifications, stream each object
// from S3, decode/validate/transform it into Measurements, and publish
// them to a Firehose delivery stream. Structured after gravwell's own
// s3Ingester main: flag-driven config path, a context cancelled on
// signal, and a bounded wait for in-flight work to drain.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rezhaque35/wifi-location-data-pipeline/internal/config"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/decode"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/ingestor"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/logging"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/metrics"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/model"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/objectstore"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/publish"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/queue"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/receiver"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/transform"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/validator"
)

const defaultConfigLoc = "/opt/wifi-ingest/etc/ingestd.conf"

var fConfigPath = flag.String("config", defaultConfigLoc, "path to the ingestd configuration file")

func main() {
	flag.Parse()

	lg := logging.NewStderrLogger()

	cfg, err := config.LoadFile(*fConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration %q: %v\n", *fConfigPath, err)
		os.Exit(1)
	}

	if code := run(cfg, lg); code != 0 {
		os.Exit(code)
	}
}

func run(cfg config.Config, lg *logging.Logger) int {
	// The registry is built and kept in sync with the receiver and
	// publisher counters below, but this process never serves it over
	// HTTP itself; a host process that wants /metrics pulls reg.Handler()
	// into its own mux.
	reg := metrics.New()

	store, err := objectstore.New(objectstore.Config{
		Region:         cfg.ObjectStore.Region,
		Endpoint:       cfg.ObjectStore.Endpoint,
		ForcePathStyle: cfg.ObjectStore.Force_Path_Style,
		MaxRetries:     cfg.ObjectStore.Max_Retries,
	}, lg)
	if err != nil {
		lg.Error("failed to build object store client", logging.KVErr(err))
		return 1
	}

	pub, err := publish.New(publish.Config{
		StreamName:     cfg.Publish.Stream_Name,
		Region:         cfg.Publish.Region,
		MaxRecords:     cfg.Publish.Max_Records,
		MaxBytes:       cfg.Publish.Max_Bytes,
		MaxRecordBytes: cfg.Publish.Max_Record_Bytes,
		FlushPeriod:    cfg.FlushPeriod(),
		MaxRetries:     cfg.Publish.Max_Retries,
		BaseBackoff:    cfg.BaseBackoff(),
	}, lg)
	if err != nil {
		lg.Error("failed to build publisher", logging.KVErr(err))
		return 1
	}

	q, err := queue.New(queue.Config{
		QueueURL:          cfg.Queue.Queue_URL,
		Region:            cfg.Queue.Region,
		WaitTimeSeconds:   cfg.Queue.Wait_Time_Seconds,
		MaxMessages:       cfg.Queue.Max_Messages,
		VisibilityTimeout: cfg.Queue.Visibility_Timeout_Seconds,
	}, lg)
	if err != nil {
		lg.Error("failed to build queue client", logging.KVErr(err))
		return 1
	}

	ing := ingestor.New(store, pub, ingestor.Config{
		Decode: decode.Config{
			MaxObjectBytes:   cfg.Decode.Max_Object_Bytes,
			MaxInflatedBytes: cfg.Decode.Max_Inflated_Bytes,
			MaxLineBytes:     cfg.Decode.Max_Line_Bytes,
		},
		Transform: transform.Config{
			RSSIMin:             cfg.Filter.RSSI_Min,
			RSSIMax:             cfg.Filter.RSSI_Max,
			MaxLocationAccuracy: cfg.Filter.Max_Location_Accuracy_Meters,
			ConnectedWeight:     cfg.Filter.Connected_Weight,
			ScanWeight:          cfg.Filter.Scan_Weight,
			LowLinkSpeedWeight:  cfg.Filter.Low_Link_Speed_Weight,
			MobileHotspot: validator.MobileHotspotConfig{
				Enabled:      cfg.MobileHotspot.Enabled,
				OUIBlacklist: cfg.OUIBlacklist(),
				Action:       model.HotspotAction(cfg.MobileHotspot.Action),
			},
		},
	}, lg)

	rcv := receiver.New(receiver.Config{
		Concurrency:      cfg.Queue.Concurrency,
		ShutdownDeadline: cfg.ShutdownDeadline(),
	}, q, ing, lg)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		lg.Info("received shutdown signal")
		cancel()
	}()

	reportDone := make(chan struct{})
	go func() {
		defer close(reportDone)
		reportMetrics(ctx, reg, rcv, pub)
	}()

	lg.Info("ingestd running", logging.NewKV("queue", cfg.Queue.Queue_URL), logging.NewKV("stream", cfg.Publish.Stream_Name))
	if err := rcv.Run(ctx); err != nil {
		lg.Error("receiver exited with error", logging.KVErr(err))
	}
	<-reportDone

	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.ShutdownDeadline())
	defer closeCancel()
	if err := pub.Close(closeCtx, cfg.ShutdownDeadline()); err != nil {
		lg.Error("failed to flush publisher on shutdown", logging.KVErr(err))
	}

	return 0
}

// reportMetrics folds the receiver's and publisher's counter snapshots
// into the Prometheus registry every second until ctx is cancelled.
// Each component's Counters are cumulative, so only the delta since the
// last tick is added to the registry's monotonic counters.
func reportMetrics(ctx context.Context, reg *metrics.Registry, rcv *receiver.Receiver, pub *publish.Publisher) {
	var lastRcv receiver.Counters
	var lastPub publish.Counters

	tick := func() {
		rc := rcv.Counters()
		metrics.AddN(reg.MessagesReceived, rc.MessagesReceived-lastRcv.MessagesReceived)
		metrics.AddN(reg.MessagesProcessed, rc.MessagesProcessed-lastRcv.MessagesProcessed)
		metrics.AddN(reg.MessagesDeleted, rc.MessagesDeleted-lastRcv.MessagesDeleted)
		metrics.AddN(reg.MessagesFailed, rc.MessagesFailed-lastRcv.MessagesFailed)
		metrics.AddN(reg.ShutdownAbandoned, rc.ShutdownAbandoned-lastRcv.ShutdownAbandoned)
		lastRcv = rc

		pc := pub.Counters()
		metrics.AddN(reg.PublishBatchSuccess, pc.BatchSuccess-lastPub.BatchSuccess)
		metrics.AddN(reg.PublishPartialFailures, pc.PartialFailures-lastPub.PartialFailures)
		metrics.AddN(reg.PublishPermanentErrors, pc.PermanentErrors-lastPub.PermanentErrors)
		metrics.AddN(reg.PublishRetriableErrors, pc.RetriableErrors-lastPub.RetriableErrors)
		metrics.AddN(reg.PublishDroppedAfterRetries, pc.DroppedAfterRetries-lastPub.DroppedAfterRetries)
		metrics.AddN(reg.PublishRecordTooLarge, pc.RecordTooLarge-lastPub.RecordTooLarge)
		lastPub = pc
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			tick()
			return
		case <-ticker.C:
			tick()
		}
	}
}
