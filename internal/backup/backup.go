// Package backup exports the database to a JSON snapshot and restores it.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/vrsandeep/vidl/internal/db"
	"github.com/vrsandeep/vidl/internal/models"
	"github.com/vrsandeep/vidl/internal/store"
)

const (
	// Format identifies a vidl snapshot document.
	Format = "vidl-snapshot"
	// Version is the snapshot layout written by Export.
	Version = "1.0.0"
	// SupportedVersions is the range of layouts Import accepts.
	SupportedVersions = "^1"
)

var (
	// ErrUnsupportedSnapshot is returned for documents Import cannot read.
	ErrUnsupportedSnapshot = errors.New("unsupported snapshot")
)

// Mode selects how Import treats existing data.
type Mode int

const (
	// ModeMerge adds channels and videos that are missing by natural key.
	ModeMerge Mode = iota
	// ModeReplace deletes everything and restores the snapshot with its ids.
	ModeReplace
)

func (m Mode) String() string {
	if m == ModeReplace {
		return "replace"
	}
	return "merge"
}

// Snapshot is the JSON document written by Export.
type Snapshot struct {
	Format        string            `json:"format"`
	Version       string            `json:"version"`
	SchemaVersion uint              `json:"schema_version"`
	ExportedAt    time.Time         `json:"exported_at"`
	Channels      []SnapshotChannel `json:"channels"`
}

// SnapshotChannel is a channel with its videos nested.
type SnapshotChannel struct {
	models.Channel
	Videos []models.Video `json:"videos"`
}

// Export writes a consistent snapshot of every channel and video to w.
func Export(ctx context.Context, st *store.Store, w io.Writer) (*Snapshot, error) {
	schema, err := db.SchemaVersion(st.DB())
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	dumps, err := st.DumpAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read database: %w", err)
	}

	snap := &Snapshot{
		Format:        Format,
		Version:       Version,
		SchemaVersion: schema,
		ExportedAt:    time.Now().UTC(),
		Channels:      make([]SnapshotChannel, 0, len(dumps)),
	}
	for _, d := range dumps {
		ch := d.Channel
		ch.UpdateStartedAt = nil
		videos := d.Videos
		if videos == nil {
			videos = []models.Video{}
		}
		snap.Channels = append(snap.Channels, SnapshotChannel{Channel: ch, Videos: videos})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	return snap, nil
}

// Read decodes and validates a snapshot without touching the database.
func Read(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedSnapshot, err)
	}
	if snap.Format != Format {
		return nil, fmt.Errorf("%w: format %q", ErrUnsupportedSnapshot, snap.Format)
	}
	if err := checkVersion(snap.Version); err != nil {
		return nil, err
	}
	// Migrations start at 1, so 0 means the tag is missing.
	if snap.SchemaVersion == 0 {
		return nil, fmt.Errorf("%w: missing schema_version", ErrUnsupportedSnapshot)
	}
	return &snap, nil
}

func checkVersion(version string) error {
	v, err := semver.NewVersion(strings.TrimPrefix(version, "v"))
	if err != nil {
		return fmt.Errorf("%w: invalid version %q: %v", ErrUnsupportedSnapshot, version, err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: version %s does not satisfy %s", ErrUnsupportedSnapshot, v, SupportedVersions)
	}
	return nil
}

// Import restores a snapshot read from r in one transaction. A snapshot
// taken from a newer schema than the database's is rejected.
func Import(ctx context.Context, st *store.Store, r io.Reader, mode Mode) (store.RestoreStats, error) {
	snap, err := Read(r)
	if err != nil {
		return store.RestoreStats{}, err
	}
	schema, err := db.SchemaVersion(st.DB())
	if err != nil {
		return store.RestoreStats{}, fmt.Errorf("read schema version: %w", err)
	}
	if snap.SchemaVersion > schema {
		return store.RestoreStats{}, fmt.Errorf("%w: schema version %d is newer than database schema %d",
			ErrUnsupportedSnapshot, snap.SchemaVersion, schema)
	}

	dumps := make([]store.ChannelDump, 0, len(snap.Channels))
	for _, ch := range snap.Channels {
		if _, err := models.ParseService(string(ch.Service)); err != nil {
			return store.RestoreStats{}, fmt.Errorf("%w: channel %s: %v", ErrUnsupportedSnapshot, ch.RemoteID, err)
		}
		dumps = append(dumps, store.ChannelDump{Channel: ch.Channel, Videos: ch.Videos})
	}
	return st.RestoreSnapshot(ctx, dumps, mode == ModeReplace)
}
