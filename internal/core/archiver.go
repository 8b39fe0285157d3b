package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"grovecore/internal/blob"
)

// Archiver freezes the derived ledger into monthly snapshots. The frozen
// rows are written to the persistent store so period reads stay cheap, and
// exported as JSON and CSV artifacts to the configured blob backend.
type Archiver struct {
	service *Service
	blobs   blob.Store
}

// NewArchiver constructs an archiver over the service's store and the given
// blob backend. A nil blob store skips artifact export.
func NewArchiver(service *Service, blobs blob.Store) *Archiver {
	return &Archiver{service: service, blobs: blobs}
}

// ArchiveResult reports what an Archive call produced.
type ArchiveResult struct {
	Period    string      `json:"period"`
	Rows      int         `json:"rows"`
	Artifacts []blob.Info `json:"artifacts,omitempty"`
}

// Archive freezes the current ledger under the given YYYY-MM period.
// Re-archiving a period overwrites its previous snapshot and artifacts, so
// the operation is safe to retry.
func (a *Archiver) Archive(ctx context.Context, period string) (res ArchiveResult, err error) {
	ctx, done := a.service.begin(ctx, "archive_snapshot")
	defer func() { done(err) }()

	if _, parseErr := time.Parse("2006-01", period); parseErr != nil {
		err = fmt.Errorf("invalid period %q, want YYYY-MM: %w", period, parseErr)
		return ArchiveResult{}, err
	}

	archivedAt := a.service.now()
	var frozen []SnapshotRow
	_, err = a.service.store.RunInTransaction(ctx, func(tx Transaction) error {
		for _, row := range tx.Snapshot().Ledger() {
			frozen = append(frozen, SnapshotRow{Period: period, Group: row.Group, Counts: row.Counts, ArchivedAt: archivedAt})
		}
		return tx.PutSnapshot(period, frozen)
	})
	if err != nil {
		return ArchiveResult{}, err
	}
	res = ArchiveResult{Period: period, Rows: len(frozen)}
	if a.blobs == nil {
		return res, nil
	}
	artifacts, exportErr := a.export(ctx, period, frozen)
	if exportErr != nil {
		err = exportErr
		return ArchiveResult{}, err
	}
	res.Artifacts = artifacts
	return res, nil
}

func (a *Archiver) export(ctx context.Context, period string, rows []SnapshotRow) ([]blob.Info, error) {
	prefix := fmt.Sprintf("snapshots/%s/", period)
	existing, err := a.blobs.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	for _, obj := range existing {
		if _, err := a.blobs.Delete(ctx, obj.Key); err != nil {
			return nil, fmt.Errorf("delete %s: %w", obj.Key, err)
		}
	}

	jsonData, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, err
	}
	csvData, err := encodeLedgerCSV(rows)
	if err != nil {
		return nil, err
	}
	archiveID := uuid.NewString()
	meta := map[string]string{"archive_id": archiveID, "period": period}

	var infos []blob.Info
	jsonInfo, err := a.blobs.Put(ctx, prefix+"ledger.json", bytes.NewReader(jsonData), blob.PutOptions{ContentType: "application/json", Metadata: meta})
	if err != nil {
		return nil, fmt.Errorf("put ledger.json: %w", err)
	}
	infos = append(infos, jsonInfo)
	csvInfo, err := a.blobs.Put(ctx, prefix+"ledger.csv", bytes.NewReader(csvData), blob.PutOptions{ContentType: "text/csv", Metadata: meta})
	if err != nil {
		return nil, fmt.Errorf("put ledger.csv: %w", err)
	}
	infos = append(infos, csvInfo)
	return infos, nil
}

var ledgerCSVHeader = []string{
	"zone_id", "species_id", "size_label", "height_label", "grade_id",
	"total", "available", "prep", "reserved", "dig_ordered", "dug",
	"shipped", "planted", "rehab", "dead", "cancelled",
}

func encodeLedgerCSV(rows []SnapshotRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ledgerCSVHeader); err != nil {
		return nil, err
	}
	for _, row := range rows {
		c := row.Counts
		record := []string{
			row.Group.ZoneID, row.Group.SpeciesID, row.Group.SizeLabel, row.Group.HeightLabel, row.Group.GradeID,
			strconv.Itoa(c.Total), strconv.Itoa(c.Available), strconv.Itoa(c.Prep), strconv.Itoa(c.Reserved),
			strconv.Itoa(c.DigOrdered), strconv.Itoa(c.Dug), strconv.Itoa(c.Shipped), strconv.Itoa(c.Planted),
			strconv.Itoa(c.Rehab), strconv.Itoa(c.Dead), strconv.Itoa(c.Cancelled),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
