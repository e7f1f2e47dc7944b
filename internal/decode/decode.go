// Package decode implements the streaming line/base64/gzip/JSON decoder:
// given a byte stream and the declared object size, it yields a lazy
// sequence of decoded ScanBundle objects, in the idiom of gravwell's
// own bufio.Scanner line-reader (bucket.go processLinesContext) combined
// with its klauspost/compress gzip preprocessor
// (ingest/processors/gzip.go).
package decode

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"

	"github.com/rezhaque35/wifi-location-data-pipeline/internal/model"
)

const (
	defaultMaxLineBytes    = 16 * 1024 * 1024
	defaultScannerBufStart = 64 * 1024
)

var (
	// ErrPayloadTooLarge is returned up front when the declared object
	// size exceeds the configured cap.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrInflationBomb is fatal for the whole object: the cumulative
	// inflated byte budget was exceeded.
	ErrInflationBomb = errors.New("inflated payload exceeds configured cap")
)

// Config carries the Decoder's size caps, all sourced from the process
// Config.
type Config struct {
	MaxObjectBytes   int64
	MaxInflatedBytes int64
	MaxLineBytes     int
}

func (c Config) withDefaults() Config {
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = defaultMaxLineBytes
	}
	return c
}

// Counters tallies the per-line skip reasons, readable through
// Decoder.Counters. Nothing in the pipeline forwards them to the
// process-wide metrics registry.
type Counters struct {
	MalformedBase64 int
	MalformedGzip   int
	ParseErrors     int
	InvalidUTF8     int
}

// Decoder is a bufio.Scanner-style iterator: call Next() until it
// returns false, then check Err() to distinguish EOF from a fatal
// error.
type Decoder struct {
	sc       *bufio.Scanner
	cfg      Config
	budget   int64 // remaining inflated-byte budget
	current  *model.ScanBundle
	fatalErr error
	counters Counters
}

// NewDecoder validates the declared object size up front and prepares
// a line-oriented scanner over r.
func NewDecoder(r io.Reader, objectSize int64, cfg Config) (*Decoder, error) {
	cfg = cfg.withDefaults()
	if cfg.MaxObjectBytes > 0 && objectSize > cfg.MaxObjectBytes {
		return nil, ErrPayloadTooLarge
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, defaultScannerBufStart), cfg.MaxLineBytes)
	return &Decoder{
		sc:     sc,
		cfg:    cfg,
		budget: cfg.MaxInflatedBytes,
	}, nil
}

// Next advances to the next successfully decoded bundle, skipping and
// counting malformed lines along the way. It returns false at end of
// stream or on a fatal error (check Err()).
func (d *Decoder) Next() bool {
	for d.sc.Scan() {
		line := d.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		bundle, err := d.decodeLine(line)
		if err != nil {
			if errors.Is(err, ErrInflationBomb) {
				d.fatalErr = err
				return false
			}
			continue // already counted inside decodeLine
		}
		d.current = bundle
		return true
	}
	if err := d.sc.Err(); err != nil {
		d.fatalErr = err
	}
	return false
}

// Bundle returns the bundle decoded by the most recent successful Next.
func (d *Decoder) Bundle() *model.ScanBundle { return d.current }

// Err returns the fatal error that stopped iteration, if any.
func (d *Decoder) Err() error { return d.fatalErr }

// Counters returns the cumulative per-line skip counts.
func (d *Decoder) Counters() Counters { return d.counters }

func (d *Decoder) decodeLine(line []byte) (*model.ScanBundle, error) {
	if !utf8.Valid(line) {
		d.counters.InvalidUTF8++
		return nil, errors.New("invalid utf-8")
	}

	raw := make([]byte, base64.StdEncoding.DecodedLen(len(line)))
	n, err := base64.StdEncoding.Decode(raw, line)
	if err != nil {
		d.counters.MalformedBase64++
		return nil, err
	}
	raw = raw[:n]

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		d.counters.MalformedGzip++
		return nil, err
	}
	defer zr.Close()

	var inflated []byte
	if d.cfg.MaxInflatedBytes > 0 {
		lr := &io.LimitedReader{R: zr, N: d.budget + 1}
		inflated, err = io.ReadAll(lr)
		if err != nil {
			d.counters.MalformedGzip++
			return nil, err
		}
		if int64(len(inflated)) > d.budget {
			return nil, ErrInflationBomb
		}
		d.budget -= int64(len(inflated))
	} else {
		inflated, err = io.ReadAll(zr)
		if err != nil {
			d.counters.MalformedGzip++
			return nil, err
		}
	}

	var wire wireScanBundle
	if err := json.Unmarshal(inflated, &wire); err != nil {
		d.counters.ParseErrors++
		return nil, err
	}
	return wire.toModel(), nil
}
