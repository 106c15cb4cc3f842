package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantleap/polyflux/internal/domain"
)

// Archive implements domain.Archiver by querying the stores for old records,
// serializing them to JSONL, and uploading the result to cold storage.
//
// Deletion of archived records from the primary store is intentionally NOT
// performed here; that is a separate, explicit step after the archive has
// been verified.
type Archive struct {
	writer    domain.BlobWriter
	trades    domain.TradeStore
	watchlist domain.WatchlistStore
	audit     domain.AuditStore
}

// NewArchive creates an Archive over the given stores. audit may be nil.
func NewArchive(writer domain.BlobWriter, trades domain.TradeStore, watchlist domain.WatchlistStore, audit domain.AuditStore) *Archive {
	return &Archive{
		writer:    writer,
		trades:    trades,
		watchlist: watchlist,
		audit:     audit,
	}
}

// ArchiveTrades uploads all resolved trades before the cutoff as JSONL at
// archive/trades/YYYY-MM.jsonl and returns the record count.
func (a *Archive) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))
	a.auditLog(ctx, "archive.trades", path, count, before)
	return count, nil
}

// ArchiveNotifications uploads watchlist notifications created before the
// cutoff as JSONL at archive/notifications/YYYY-MM.jsonl. The retained list
// is capped, so this snapshots what has not yet been trimmed away.
func (a *Archive) ArchiveNotifications(ctx context.Context, before time.Time) (int64, error) {
	all, err := a.watchlist.ListNotifications(ctx, domain.MaxNotifications)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive notifications query: %w", err)
	}

	var old []domain.Notification
	for _, n := range all {
		if n.CreatedAt.Before(before) {
			old = append(old, n)
		}
	}
	if len(old) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(old)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive notifications marshal: %w", err)
	}

	path := archivePath("notifications", before)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive notifications upload: %w", err)
	}

	count := int64(len(old))
	a.auditLog(ctx, "archive.notifications", path, count, before)
	return count, nil
}

func (a *Archive) auditLog(ctx context.Context, event, path string, count int64, before time.Time) {
	if a.audit == nil {
		return
	}
	_ = a.audit.Log(ctx, event, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	})
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time, e.g. archive/trades/2025-01.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archive)(nil)
