package s3blob

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// ArchiveLookup serves archived epochs back to API readers once the ledger
// no longer holds them.
type ArchiveLookup struct {
	reader domain.BlobReader
	prefix string
}

// NewArchiveLookup creates an ArchiveLookup over the archive written under
// prefix.
func NewArchiveLookup(reader domain.BlobReader, prefix string) *ArchiveLookup {
	if prefix == "" {
		prefix = "archive"
	}
	return &ArchiveLookup{reader: reader, prefix: prefix}
}

// ArchivedEpoch returns an archived epoch and its bets. A missing archive
// yields domain.ErrNotFound.
func (l *ArchiveLookup) ArchivedEpoch(ctx context.Context, asset string, epochID uint64) (domain.Epoch, []domain.Bet, error) {
	return ReadEpochArchive(ctx, l.reader, l.prefix, asset, epochID)
}

// ArchivedEpochIDs lists the archived epoch ids of asset, newest first.
func (l *ArchiveLookup) ArchivedEpochIDs(ctx context.Context, asset string) ([]uint64, error) {
	dir := path.Join(l.prefix, "epochs", asset) + "/"
	infos, err := l.reader.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("s3blob: list archive %s: %w", asset, err)
	}
	ids := make([]uint64, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimPrefix(info.Path, dir)
		if strings.Contains(name, "/") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(name, ".jsonl"), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids, nil
}
