package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"gridnav.ai/internal/persistence/archive"
	"gridnav.ai/internal/persistence/indexdb"
	persistlog "gridnav.ai/internal/persistence/log"
	"gridnav.ai/internal/persistence/objmirror"
	"gridnav.ai/internal/persistence/snapshot"
	"gridnav.ai/internal/sim/footprint"
	"gridnav.ai/internal/sim/grid"
	"gridnav.ai/internal/sim/mapload"
	"gridnav.ai/internal/sim/planner"
	"gridnav.ai/internal/sim/tuning"
	"gridnav.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		boardID    = flag.String("board", "board_1", "board id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		mapPath    = flag.String("map", "", "map image (overrides board.map in tuning)")
		resourceFP = flag.String("resource_footprint", "rect:2x2", "footprint of resources placed from the map")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite record index")
		watch      = flag.Bool("watch_tuning", true, "reload tuning.yaml when it changes")
		logLevel   = flag.String("log_level", "info", "logrus level")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		snapEvery  = flag.Duration("snapshot_every", time.Minute, "write a snapshot at this interval when the board changed")
		keepSnaps  = flag.Int("keep_snapshots", 10, "snapshots kept in the data dir (0 = keep all)")
		archEvery  = flag.Uint64("archive_every", 1000, "archive the first snapshot of every N board versions (0 = off)")
	)
	flag.Parse()

	lvl, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("log level: %v", err)
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	boardDir := filepath.Join(*dataDir, "boards", *boardID)
	_ = os.MkdirAll(boardDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Fatalf("load tuning: %v", err)
		}
		log.WithField("path", tp).Info("tuning not found; using defaults")
		tune = tuning.Defaults()
	}

	var recs []planner.Recorder
	if tune.QueryLog {
		rl := persistlog.NewRecordLogger(boardDir)
		defer rl.Close()
		recs = append(recs, rl)
	}
	idx, err := openRuntimeIndex(boardDir, *disableDB || !tune.IndexDB)
	if err != nil {
		log.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		recs = append(recs, idx)
		if err := idx.UpsertTuning(tune); err != nil {
			log.WithError(err).Warn("index backend: upsert tuning")
		}
	}

	board, err := buildBoard(tune, *configDir, *mapPath, *resourceFP)
	if err != nil {
		log.Fatalf("board: %v", err)
	}
	p := planner.New(*boardID, board, planner.ConfigFromTuning(tune), log.StandardLogger(), recs...)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(boardDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			log.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.BoardID != "" && snap.Header.BoardID != *boardID {
			log.Fatalf("snapshot board id mismatch: flag=%s snap=%s", *boardID, snap.Header.BoardID)
		}
		if err := p.Restore(snap); err != nil {
			log.Fatalf("restore snapshot: %v", err)
		}
		log.WithFields(log.Fields{"snapshot": filepath.Base(snapshotToLoad), "version": p.Version()}).Info("resumed from snapshot")
	}

	ctx, cancel := signalContext()
	defer cancel()

	if *watch {
		if _, err := os.Stat(tp); err == nil {
			w, err := tuning.NewWatcher(tp)
			if err != nil {
				log.WithError(err).Warn("tuning watcher disabled")
			} else {
				defer w.Close()
				go followTuning(ctx, w, p, idx)
			}
		}
	}

	mirror, err := openMirror(*dataDir)
	if err != nil {
		log.Fatalf("mirror: %v", err)
	}
	defer mirror.Close()

	snaps := &snapshotWriter{planner: p, boardDir: boardDir, index: idx, mirror: mirror, keep: *keepSnaps, archiveEvery: *archEvery}

	go func() {
		t := time.NewTicker(*snapEvery)
		defer t.Stop()
		last := p.Version()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if v := p.Version(); v != last {
					if err := snaps.write(); err != nil {
						log.WithError(err).Error("snapshot write")
						continue
					}
					last = v
				}
			}
		}
	}()

	s := &server{planner: p, ws: ws.NewServer(p, log.StandardLogger()), index: idx, mirror: mirror}
	s.routes()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	w, h := p.Board().Size()
	log.WithFields(log.Fields{"addr": *addr, "board": *boardID, "size": fmt.Sprintf("%dx%d", w, h)}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("ListenAndServe: %v", err)
	}
	if err := snaps.write(); err != nil {
		log.WithError(err).Error("final snapshot")
	}
}

// buildBoard loads the configured map image, or returns an open board of the
// configured size when there is none.
func buildBoard(tune tuning.Tuning, configDir, mapFlag, resourceFP string) (*grid.Grid, error) {
	path := strings.TrimSpace(mapFlag)
	if path == "" {
		path = strings.TrimSpace(tune.Board.Map)
		if path != "" && !filepath.IsAbs(path) {
			path = filepath.Join(configDir, path)
		}
	}
	if path == "" {
		return grid.New(tune.Board.Width, tune.Board.Height), nil
	}
	pal, err := mapload.ParsePalette(tune.Palette)
	if err != nil {
		return nil, err
	}
	m, err := mapload.Load(path, pal)
	if err != nil {
		return nil, err
	}
	fp, err := footprint.Parse(resourceFP)
	if err != nil {
		return nil, err
	}
	placed, skipped, err := m.PlaceResources(fp)
	if err != nil {
		return nil, err
	}
	w, h := m.Grid.Size()
	log.WithFields(log.Fields{
		"map":       m.Name,
		"size":      fmt.Sprintf("%dx%d", w, h),
		"starts":    len(m.Starts),
		"resources": placed,
		"skipped":   skipped,
	}).Info("map loaded")
	return m.Grid, nil
}

func followTuning(ctx context.Context, w *tuning.Watcher, p *planner.Planner, idx *indexdb.SQLiteIndex) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-w.Updates:
			if !ok {
				return
			}
			p.SetConfig(planner.ConfigFromTuning(t))
			if idx != nil {
				if err := idx.UpsertTuning(t); err != nil {
					log.WithError(err).Warn("index backend: upsert tuning")
				}
			}
			log.WithFields(log.Fields{
				"cardinal":       t.CardinalCost,
				"diagonal":       t.DiagonalCost,
				"max_expansions": t.MaxExpansions,
				"workers":        t.Workers,
			}).Info("tuning reloaded")
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("tuning reload rejected")
		}
	}
}

type snapshotWriter struct {
	mu sync.Mutex

	planner      *planner.Planner
	boardDir     string
	index        *indexdb.SQLiteIndex
	mirror       *objmirror.Mirror
	keep         int
	archiveEvery uint64
}

// write stores the current board, archives epoch boundaries and prunes old
// snapshots. Archive and prune failures are logged, not returned.
func (sw *snapshotWriter) write() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	snap := sw.planner.Snapshot()
	path := filepath.Join(sw.boardDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.BoardVersion))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return err
	}
	if sw.index != nil {
		sw.index.RecordSnapshot(path, snap)
	}
	sw.mirror.Enqueue(path)
	entry := log.WithFields(log.Fields{"path": path, "version": snap.Header.BoardVersion})
	entry.Debug("snapshot written")

	if epoch, archived, ok, err := archive.ArchiveEpochSnapshot(sw.boardDir, path, snap, sw.archiveEvery); err != nil {
		entry.WithError(err).Warn("archive snapshot")
	} else if ok {
		entry.WithFields(log.Fields{"epoch": epoch, "archived": archived}).Info("snapshot archived")
		sw.mirror.Enqueue(archived)
	}
	if n, err := archive.PruneSnapshots(sw.boardDir, sw.keep); err != nil {
		entry.WithError(err).Warn("prune snapshots")
	} else if n > 0 {
		entry.WithField("removed", n).Debug("snapshots pruned")
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// latestSnapshot picks the snapshot with the highest board version.
func latestSnapshot(boardDir string) string {
	dir := filepath.Join(boardDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestVersion uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || v > bestVersion {
			bestVersion = v
			best = filepath.Join(dir, name)
		}
	}
	return best
}
