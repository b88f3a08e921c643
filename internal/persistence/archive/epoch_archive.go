package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gridnav.ai/internal/persistence/snapshot"
)

type EpochArchiveMeta struct {
	Epoch        int    `json:"epoch"`
	BoardID      string `json:"board_id"`
	BoardVersion uint64 `json:"board_version"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Entities     int    `json:"entities"`
	Snapshot     string `json:"snapshot"`
	CreatedAt    string `json:"created_at"`
	EveryVersion uint64 `json:"every_versions"`
}

// ArchiveEpochSnapshot copies the first snapshot at or past each multiple of
// every board versions into `boardDir/archives/epoch_<NNN>/`. It returns
// (epoch, archivedPath, archived=true) when a copy was made.
func ArchiveEpochSnapshot(boardDir, snapshotPath string, snap snapshot.BoardSnapshotV1, every uint64) (epoch int, archivedPath string, archived bool, err error) {
	if every == 0 {
		return 0, "", false, nil
	}
	epoch = int(snap.Header.BoardVersion / every)
	if epoch <= 0 {
		return 0, "", false, nil
	}

	archiveDir := filepath.Join(boardDir, "archives", fmt.Sprintf("epoch_%03d", epoch))
	if _, err := os.Stat(archiveDir); err == nil {
		return 0, "", false, nil
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := EpochArchiveMeta{
		Epoch:        epoch,
		BoardID:      snap.Header.BoardID,
		BoardVersion: snap.Header.BoardVersion,
		Width:        snap.Width,
		Height:       snap.Height,
		Entities:     len(snap.Entities),
		Snapshot:     filepath.Base(dst),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
		EveryVersion: every,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return epoch, dst, true, nil
}

// PruneSnapshots deletes all but the keep newest `<version>.snap.zst` files in
// boardDir/snapshots. Archived copies are not touched.
func PruneSnapshots(boardDir string, keep int) (removed int, err error) {
	if keep <= 0 {
		return 0, nil
	}
	dir := filepath.Join(boardDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	type entry struct {
		name    string
		version uint64
	}
	var snaps []entry
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSuffix(e.Name(), ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		snaps = append(snaps, entry{name: e.Name(), version: v})
	}
	if len(snaps) <= keep {
		return 0, nil
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].version > snaps[j].version })
	for _, s := range snaps[keep:] {
		if err := os.Remove(filepath.Join(dir, s.name)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
