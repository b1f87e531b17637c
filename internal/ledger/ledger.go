package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"time"

	"polymarket-trade-bot-go/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var header = []string{
	"timestamp",
	"token_id",
	"side",
	"entry_price",
	"exit_price",
	"size",
	"holding_time_seconds",
	"pnl",
	"pnl_pct",
	"slippage",
}

// Appender records one closed trade. Implemented by CSV and Recorder.
type Appender interface {
	Append(rec models.TradeRecord) error
}

// CSV is an append-only trade history file. The file is created with a header
// on first use; prior rows are never rewritten. Each call opens, appends and
// closes the file, so there is no buffering across calls and a crash can
// affect at most the most recent row.
type CSV struct {
	path   string
	logger *zap.Logger
}

// NewCSV creates a ledger writing to path.
func NewCSV(path string, logger *zap.Logger) *CSV {
	return &CSV{path: path, logger: logger}
}

// Append writes one trade record row, creating the file with its header first
// if it does not exist yet.
func (l *CSV) Append(rec models.TradeRecord) error {
	writeHeader := false
	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		writeHeader = true
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open trade history %s: %w", l.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("failed to write trade history header: %w", err)
		}
		l.logger.Info("Created trade history file", zap.String("path", l.path))
	}

	row := []string{
		rec.Timestamp.Format(time.RFC3339),
		rec.TokenID,
		string(rec.Side),
		fmt.Sprintf("%.6f", rec.EntryPrice),
		fmt.Sprintf("%.6f", rec.ExitPrice),
		fmt.Sprintf("%.6f", rec.Size),
		fmt.Sprintf("%.2f", rec.HoldingTime.Seconds()),
		fmt.Sprintf("%.6f", rec.PnL),
		fmt.Sprintf("%.6f", rec.PnLPct),
		fmt.Sprintf("%.6f", rec.Slippage),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to append trade record: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush trade record: %w", err)
	}
	return nil
}

// Recorder wraps the CSV ledger and mirrors each record into the database for
// status queries. The CSV file is authoritative: a database failure is logged
// and does not fail the append.
type Recorder struct {
	csv    *CSV
	db     *gorm.DB
	logger *zap.Logger
}

// NewRecorder creates a Recorder. db may be nil, in which case only the CSV
// ledger is written.
func NewRecorder(csv *CSV, db *gorm.DB, logger *zap.Logger) *Recorder {
	return &Recorder{csv: csv, db: db, logger: logger}
}

// Append writes the record to the CSV ledger and then mirrors it to the
// database.
func (r *Recorder) Append(rec models.TradeRecord) error {
	if err := r.csv.Append(rec); err != nil {
		return err
	}

	if r.db != nil {
		row := rec.Row()
		if err := r.db.Create(&row).Error; err != nil {
			r.logger.Error("Failed to mirror trade record to database",
				zap.String("token_id", rec.TokenID), zap.Error(err))
		}
	}
	return nil
}
