package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/krobus00/market-feed-service/internal/config"
	"github.com/krobus00/market-feed-service/internal/constant"
	"github.com/krobus00/market-feed-service/internal/entity"
	"github.com/krobus00/market-feed-service/internal/store"
	"github.com/sirupsen/logrus"
)

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// FileSink mirrors the latest candle to a single file, overwriting the
// previous contents on every update. Consumers of the file (e.g. an MT5
// expert advisor polling it) always see exactly one bucket.
type FileSink struct {
	cfg   config.FileOutputConfig
	store *store.CandleStore

	lastVersion uint64
}

func NewFileSink(cfg config.FileOutputConfig, candleStore *store.CandleStore) *FileSink {
	return &FileSink{
		cfg:   cfg,
		store: candleStore,
	}
}

// Run consumes store updates until ctx is cancelled. Write failures are
// logged and retried on the next update; they never stop ingestion.
func (s *FileSink) Run(ctx context.Context) {
	logrus.WithFields(logrus.Fields{
		"path":   s.cfg.Path,
		"format": s.cfg.Format,
	}).Info("file sink started")

	updates := s.store.Subscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			snapshot := s.store.Snapshot()
			if snapshot.Candle == nil || snapshot.Version == s.lastVersion {
				continue
			}

			if err := s.Write(*snapshot.Candle); err != nil {
				logrus.WithError(err).Error("file sink write failed")
				continue
			}

			s.lastVersion = snapshot.Version
		}
	}
}

// Write serializes the candle and replaces the output file atomically, so a
// reader never observes a half-written file. Writing the same candle twice
// produces byte-identical content.
func (s *FileSink) Write(candle entity.Candle) error {
	payload, err := s.encode(candle)
	if err != nil {
		return fmt.Errorf("encode candle: %w", err)
	}

	dir := filepath.Dir(s.cfg.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.cfg.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.cfg.Path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", s.cfg.Path, err)
	}

	return nil
}

func (s *FileSink) encode(candle entity.Candle) ([]byte, error) {
	switch s.cfg.Format {
	case constant.OutputFormatCSV:
		var buf bytes.Buffer
		writer := csv.NewWriter(&buf)

		row := []string{
			strconv.FormatInt(candle.OpenTime.UnixMilli(), 10),
			candle.OpenPrice.String(),
			candle.HighPrice.String(),
			candle.LowPrice.String(),
			candle.ClosePrice.String(),
			candle.Volume.String(),
		}

		if err := writer.Write(csvHeader); err != nil {
			return nil, err
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
		writer.Flush()

		return buf.Bytes(), writer.Error()
	default:
		return json.Marshal(candle)
	}
}
