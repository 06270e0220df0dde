package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// multipartThreshold is the payload size above which uploads switch to the
// multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// EpochSource is the ledger view the archiver reads.
type EpochSource interface {
	ListEpochsByStatus(ctx context.Context, statuses ...domain.EpochStatus) ([]domain.Epoch, error)
	ListEpochBets(ctx context.Context, asset string, epochID uint64) ([]domain.Bet, error)
}

// ObjectChecker reports whether an object is already stored.
type ObjectChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Record is one JSONL line of an epoch archive. The first line carries the
// epoch, every following line one bet.
type Record struct {
	Kind  string        `json:"kind"`
	Epoch *domain.Epoch `json:"epoch,omitempty"`
	Bet   *domain.Bet   `json:"bet,omitempty"`
}

// EpochArchiver implements domain.Archiver. It copies terminal epochs and
// their bets to object storage. The ledger keeps its rows.
type EpochArchiver struct {
	writer  domain.BlobWriter
	objects ObjectChecker
	source  EpochSource
	audit   domain.AuditStore
	prefix  string
	logger  *slog.Logger
}

// NewEpochArchiver creates an EpochArchiver. audit may be nil.
func NewEpochArchiver(writer domain.BlobWriter, objects ObjectChecker, source EpochSource, audit domain.AuditStore, prefix string, logger *slog.Logger) *EpochArchiver {
	if prefix == "" {
		prefix = "archive"
	}
	return &EpochArchiver{
		writer:  writer,
		objects: objects,
		source:  source,
		audit:   audit,
		prefix:  prefix,
		logger:  logger.With(slog.String("component", "epoch_archiver")),
	}
}

// ArchiveEpochs uploads every Settled or Invalid epoch that reached its
// terminal state before the cutoff. Epochs already in the bucket are
// skipped, so repeated runs only upload what is new. It returns the number
// of epochs uploaded.
func (a *EpochArchiver) ArchiveEpochs(ctx context.Context, before time.Time) (int64, error) {
	epochs, err := a.source.ListEpochsByStatus(ctx, domain.StatusSettled, domain.StatusInvalid)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive epochs query: %w", err)
	}

	var count int64
	for _, e := range epochs {
		if e.SettledAt >= before.Unix() {
			continue
		}
		key := EpochPath(a.prefix, e.Asset, e.ID)
		exists, err := a.objects.Exists(ctx, key)
		if err != nil {
			return count, err
		}
		if exists {
			continue
		}

		bets, err := a.source.ListEpochBets(ctx, e.Asset, e.ID)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive epoch %s/%d bets: %w", e.Asset, e.ID, err)
		}
		buf, err := marshalEpoch(e, bets)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive epoch %s/%d marshal: %w", e.Asset, e.ID, err)
		}
		if err := a.upload(ctx, key, buf); err != nil {
			return count, err
		}
		count++

		if a.audit != nil {
			if err := a.audit.Log(ctx, "archive.epoch", map[string]any{
				"path":   key,
				"asset":  e.Asset,
				"epoch":  e.ID,
				"status": string(e.Status),
				"bets":   len(bets),
			}); err != nil {
				a.logger.WarnContext(ctx, "audit archive entry",
					slog.String("path", key),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return count, nil
}

func (a *EpochArchiver) upload(ctx context.Context, key string, buf []byte) error {
	if len(buf) > multipartThreshold {
		return a.writer.PutMultipart(ctx, key, bytes.NewReader(buf), minPartSize)
	}
	return a.writer.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson")
}

// EpochPath builds the object key of one epoch archive:
//
//	archive/epochs/BTCUSD/5821040.jsonl
func EpochPath(prefix, asset string, epochID uint64) string {
	return path.Join(prefix, "epochs", asset, strconv.FormatUint(epochID, 10)+".jsonl")
}

func marshalEpoch(e domain.Epoch, bets []domain.Bet) ([]byte, error) {
	records := make([]Record, 0, len(bets)+1)
	records = append(records, Record{Kind: "epoch", Epoch: &e})
	for i := range bets {
		records = append(records, Record{Kind: "bet", Bet: &bets[i]})
	}
	return marshalJSONL(records)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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

// ReadEpochArchive loads an archived epoch and its bets back from storage.
func ReadEpochArchive(ctx context.Context, r domain.BlobReader, prefix, asset string, epochID uint64) (domain.Epoch, []domain.Bet, error) {
	if prefix == "" {
		prefix = "archive"
	}
	body, err := r.Get(ctx, EpochPath(prefix, asset, epochID))
	if err != nil {
		return domain.Epoch{}, nil, err
	}
	defer body.Close()
	return decodeEpoch(body)
}

func decodeEpoch(body io.Reader) (domain.Epoch, []domain.Bet, error) {
	var (
		epoch    domain.Epoch
		hasEpoch bool
		bets     []domain.Bet
	)
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return domain.Epoch{}, nil, fmt.Errorf("s3blob: decode archive line: %w", err)
		}
		switch {
		case rec.Kind == "epoch" && rec.Epoch != nil:
			epoch, hasEpoch = *rec.Epoch, true
		case rec.Kind == "bet" && rec.Bet != nil:
			bets = append(bets, *rec.Bet)
		}
	}
	if err := sc.Err(); err != nil {
		return domain.Epoch{}, nil, fmt.Errorf("s3blob: read archive: %w", err)
	}
	if !hasEpoch {
		return domain.Epoch{}, nil, fmt.Errorf("s3blob: archive has no epoch record: %w", domain.ErrNotFound)
	}
	return epoch, bets, nil
}
