package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"emberhold.gg/internal/game/trade"
)

// JSONLZstdWriter appends JSON lines to hourly-rotated zstd files.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// TradeAudit writes completed trades and rollback failures to separate
// compressed JSONL streams. Implements trade.AuditSink; write errors are
// logged, never surfaced to the trade path.
type TradeAudit struct {
	trades    *JSONLZstdWriter
	reconcile *JSONLZstdWriter
	logger    *stdlog.Logger
}

func NewTradeAudit(dataDir string, logger *stdlog.Logger) *TradeAudit {
	return &TradeAudit{
		trades:    NewJSONLZstdWriter(filepath.Join(dataDir, "trades"), "trades"),
		reconcile: NewJSONLZstdWriter(filepath.Join(dataDir, "reconcile"), "reconcile"),
		logger:    logger,
	}
}

func (a *TradeAudit) TradeCompleted(e trade.AuditEntry) {
	if err := a.trades.Write(e); err != nil && a.logger != nil {
		a.logger.Printf("trade audit write: %v", err)
	}
}

func (a *TradeAudit) RollbackFailed(e trade.ReconcileEntry) {
	// Echo to the console too: this is the record an operator reconciles by
	// hand, it must not go unnoticed.
	if a.logger != nil {
		a.logger.Printf("RECONCILE %s/%s cause=%s failed=%v", e.InitiatorID, e.TargetID, e.Cause, e.Failed)
	}
	if err := a.reconcile.Write(e); err != nil && a.logger != nil {
		a.logger.Printf("reconcile write: %v", err)
	}
}

func (a *TradeAudit) Close() error {
	err1 := a.trades.Close()
	err2 := a.reconcile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
