// Package ingestor wires the pipeline's per-object orchestration:
// validate the upload event, stream the object from S3, decode it into
// ScanBundles, transform each into Measurements, and publish them,
// mirroring gravwell's ProcessContext (s3Ingester/bucket.go) as the
// single per-object entry point called by the receiver's workers.
package ingestor

import (
	"context"
	"errors"
	"time"

	"github.com/rezhaque35/wifi-location-data-pipeline/internal/decode"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/logging"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/model"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/objectstore"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/publish"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/queue"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/transform"
)

// Config carries every tunable the three inner stages need.
type Config struct {
	Decode    decode.Config
	Transform transform.Config
}

// Counters tallies per-object outcomes for the process-wide metrics
// registry.
type Counters struct {
	ObjectsProcessed int
	ObjectsFailed    int
	BundlesDecoded   int
	MeasurementsSent int
	DecodeCounters   decode.Counters
	RejectCounters   transform.Counters
}

// ObjectGetter streams one S3 object; satisfied by *objectstore.Store.
type ObjectGetter interface {
	Get(ctx context.Context, bucket, key string) (*objectstore.Object, error)
}

// MeasurementPublisher accepts one Measurement for delivery; satisfied
// by *publish.Publisher.
type MeasurementPublisher interface {
	Publish(ctx context.Context, m model.Measurement) error
}

// Ingestor is the per-object orchestrator: one instance is shared
// across all receiver workers (its dependencies are safe for
// concurrent use).
type Ingestor struct {
	store ObjectGetter
	pub   MeasurementPublisher
	cfg   Config
	lg    *logging.Logger
}

// New builds an Ingestor.
func New(store ObjectGetter, pub MeasurementPublisher, cfg Config, lg *logging.Logger) *Ingestor {
	return &Ingestor{store: store, pub: pub, cfg: cfg, lg: lg}
}

// Process implements receiver.Processor: it validates and handles every
// UploadEvent bundled into one queue message, returning poisonous=true
// when the message's envelope or events could never succeed (so the
// receiver deletes it rather than retrying forever).
func (i *Ingestor) Process(ctx context.Context, m queue.Message) (poisonous bool, err error) {
	if len(m.Events) == 0 {
		return true, errors.New("message carried no decodable upload events")
	}

	var firstErr error
	anySucceeded := false
	anyFailed := false
	for _, ev := range m.Events {
		if verr := ev.Validate(time.Now()); verr != nil {
			i.lg.Warn("rejecting invalid upload event", logging.NewKV("bucket", ev.Bucket), logging.NewKV("key", ev.ObjectKey), logging.KVErr(verr))
			if firstErr == nil {
				firstErr = verr
			}
			continue
		}
		if perr := i.processOne(ctx, ev); perr != nil {
			i.lg.Error("failed to process object", logging.NewKV("bucket", ev.Bucket), logging.NewKV("key", ev.ObjectKey), logging.KVErr(perr))
			if firstErr == nil {
				firstErr = perr
			}
			anyFailed = true
			continue
		}
		anySucceeded = true
	}

	if firstErr == nil {
		return false, nil
	}
	if !anySucceeded && !anyFailed {
		// every event in this message failed validation: the message is
		// not going to succeed on redelivery either, so treat it as poison
		// rather than spin forever. A fetch/decode/publish failure is left
		// for redelivery instead.
		return true, firstErr
	}
	return false, firstErr
}

func (i *Ingestor) processOne(ctx context.Context, ev model.UploadEvent) error {
	obj, err := i.store.Get(ctx, ev.Bucket, ev.ObjectKey)
	if err != nil {
		return err
	}
	defer obj.Body.Close()

	dec, err := decode.NewDecoder(obj.Body, obj.Size, i.cfg.Decode)
	if err != nil {
		return err
	}

	pctx := model.NewProcessingContext(ev.StreamName(), ev.ObjectKey, time.Now())
	counters := transform.Counters{}
	var pubErr error

	for dec.Next() {
		bundle := dec.Bundle()
		if terr := transform.Transform(bundle, pctx, i.cfg.Transform, time.Now(), counters, func(meas model.Measurement) {
			if perr := i.pub.Publish(ctx, meas); perr != nil {
				i.lg.Error("failed to publish measurement", logging.NewKV("bssid", meas.BSSID), logging.KVErr(perr))
				if pubErr == nil {
					pubErr = perr
				}
			}
		}); terr != nil {
			i.lg.Warn("skipping unparseable bundle within object", logging.NewKV("key", ev.ObjectKey), logging.KVErr(terr))
		}
	}
	if err := dec.Err(); err != nil {
		return err
	}
	if pubErr != nil {
		return pubErr
	}

	if sum := counters[transform.RejectMissingWifiOrLocation] +
		counters[transform.RejectBSSID] +
		counters[transform.RejectRSSI] +
		counters[transform.RejectLocation] +
		counters[transform.RejectTimestamp] +
		counters[transform.RejectSSID] +
		counters[transform.RejectHotspotExcluded]; sum > 0 {
		i.lg.Info("object completed with filtered records", logging.NewKV("key", ev.ObjectKey), logging.NewKV("filtered", sum))
	}

	return nil
}
