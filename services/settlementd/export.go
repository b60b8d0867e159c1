package settlementd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// AuditReport names the files written by ExportAuthorizations.
type AuditReport struct {
	CSVPath     string
	ParquetPath string
	Count       int
}

// AuthorizationsSince lists authorizations issued at or after since, oldest
// first.
func (s *Store) AuthorizationsSince(ctx context.Context, since time.Time) ([]Authorization, error) {
	var rows []Authorization
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", since.UTC()).
		Order("created_at ASC, account ASC, nonce ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list authorizations: %w", err)
	}
	return rows, nil
}

// ExportAuthorizations writes every authorization issued since the cutoff to
// CSV and Parquet files under dir.
func ExportAuthorizations(ctx context.Context, store *Store, since time.Time, dir string) (*AuditReport, error) {
	rows, err := store.AuthorizationsSince(ctx, since)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create dir: %w", err)
	}
	name := "authorizations-" + store.nowFn().UTC().Format("20060102T150405Z")
	report := &AuditReport{
		CSVPath:     filepath.Join(dir, name+".csv"),
		ParquetPath: filepath.Join(dir, name+".parquet"),
		Count:       len(rows),
	}
	if err := writeAuditCSV(report.CSVPath, rows); err != nil {
		return nil, err
	}
	if err := writeAuditParquet(report.ParquetPath, rows); err != nil {
		return nil, err
	}
	return report, nil
}

var auditHeader = []string{"id", "account", "nonce", "campaign_ids", "campaign_count", "digest", "signature", "created_at"}

func writeAuditCSV(path string, rows []Authorization) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(auditHeader); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for i := range rows {
		ids, err := rows[i].Campaigns()
		if err != nil {
			return err
		}
		record := []string{
			rows[i].ID.String(),
			rows[i].Account,
			strconv.FormatUint(rows[i].Nonce, 10),
			joinIDs(ids),
			strconv.Itoa(len(ids)),
			rows[i].Digest,
			rows[i].Signature,
			rows[i].CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

type auditRow struct {
	ID            string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Account       string `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Nonce         int64  `parquet:"name=nonce, type=INT64"`
	CampaignIDs   string `parquet:"name=campaign_ids, type=BYTE_ARRAY, convertedtype=UTF8"`
	CampaignCount int32  `parquet:"name=campaign_count, type=INT32"`
	Digest        string `parquet:"name=digest, type=BYTE_ARRAY, convertedtype=UTF8"`
	Signature     string `parquet:"name=signature, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt     string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func writeAuditParquet(path string, rows []Authorization) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(auditRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		ids, err := rows[i].Campaigns()
		if err != nil {
			pw.WriteStop()
			file.Close()
			return err
		}
		row := &auditRow{
			ID:            rows[i].ID.String(),
			Account:       rows[i].Account,
			Nonce:         int64(rows[i].Nonce),
			CampaignIDs:   joinIDs(ids),
			CampaignCount: int32(len(ids)),
			Digest:        rows[i].Digest,
			Signature:     rows[i].Signature,
			CreatedAt:     rows[i].CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("export: write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("export: finalize parquet: %w", err)
	}
	return file.Close()
}

func joinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ";")
}
