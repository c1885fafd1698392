package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/internal/version"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

// Store persists pipeline artifacts as JSON files under a root directory:
//
//	{root}/batch/{YYYY-MM-DD}.json
//	{root}/filtered/{YYYY-MM-DD}.json
//	{root}/entries/{YYYY-MM-DD}_{group}.json
//	{root}/reentry_blocks/{YYYY-MM-DD}.json
//	{root}/snapshots/{YYYY-MM-DD}.json
//	{root}/positions.json
//
// Every write replaces the whole file atomically, so re-running a stage
// overwrites its artifact deterministically.
type Store struct {
	root   string
	mu     sync.Mutex
	logger *logger.Logger
}

const (
	batchDir   = "batch"
	filtered   = "filtered"
	entriesDir = "entries"
	reentryDir = "reentry_blocks"
	snapshots  = "snapshots"
	positions  = "positions.json"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// PositionsFile is the on-disk shape of the held position table.
type PositionsFile struct {
	SchemaVersion string               `json:"schema_version"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Positions     []types.HeldPosition `json:"positions"`
}

// ReentryBlocks lists symbols that must not be re-entered on a trading date.
type ReentryBlocks struct {
	SchemaVersion string   `json:"schema_version"`
	TradeDate     string   `json:"trade_date"`
	Symbols       []string `json:"symbols"`
}

// New creates a store rooted at dir, creating the folder structure.
func New(dir string, log *logger.Logger) (*Store, error) {
	for _, sub := range []string{batchDir, filtered, entriesDir, reentryDir, snapshots} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeArtifactWriteFailed, err, "failed to create %s", sub)
		}
	}

	return &Store{root: dir, logger: log.Component("store")}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) BatchPath(date string) string {
	return filepath.Join(s.root, batchDir, date+".json")
}

func (s *Store) FilteredPath(date string) string {
	return filepath.Join(s.root, filtered, date+".json")
}

func (s *Store) EntriesPath(date string, group types.EntryGroup) string {
	return filepath.Join(s.root, entriesDir, date+"_"+string(group)+".json")
}

func (s *Store) ReentryPath(date string) string {
	return filepath.Join(s.root, reentryDir, date+".json")
}

func (s *Store) SnapshotPath(date string) string {
	return filepath.Join(s.root, snapshots, date+".json")
}

func (s *Store) PositionsPath() string {
	return filepath.Join(s.root, positions)
}

// SaveBatch writes the batch result for its trade date.
func (s *Store) SaveBatch(result types.BatchResult) error {
	result.SchemaVersion = version.SchemaVersion

	return s.write(s.BatchPath(result.TradeDate), result)
}

// LoadBatch reads the batch result for a trade date.
func (s *Store) LoadBatch(date string) (types.BatchResult, error) {
	var result types.BatchResult
	if err := s.read(s.BatchPath(date), &result); err != nil {
		return types.BatchResult{}, err
	}

	return result, version.CheckArtifact(result.SchemaVersion)
}

func (s *Store) HasBatch(date string) bool {
	return exists(s.BatchPath(date))
}

// ListBatchDates returns all trade dates with a batch result, oldest first.
func (s *Store) ListBatchDates() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, batchDir))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read batch directory", err)
	}

	var dates []string

	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".json")
		if entry.IsDir() || name == entry.Name() || !datePattern.MatchString(name) {
			continue
		}

		dates = append(dates, name)
	}

	sort.Strings(dates)

	return dates, nil
}

// LatestBatch returns the batch result with the most recent trade date.
func (s *Store) LatestBatch() (types.BatchResult, error) {
	dates, err := s.ListBatchDates()
	if err != nil {
		return types.BatchResult{}, err
	}

	if len(dates) == 0 {
		return types.BatchResult{}, errors.New(errors.ErrCodeArtifactNotFound, "no batch result stored")
	}

	return s.LoadBatch(dates[len(dates)-1])
}

// LatestBatchBefore returns the most recent batch result strictly before date.
func (s *Store) LatestBatchBefore(date string) (types.BatchResult, error) {
	dates, err := s.ListBatchDates()
	if err != nil {
		return types.BatchResult{}, err
	}

	for i := len(dates) - 1; i >= 0; i-- {
		if dates[i] < date {
			return s.LoadBatch(dates[i])
		}
	}

	return types.BatchResult{}, errors.Newf(errors.ErrCodeArtifactNotFound, "no batch result before %s", date)
}

// SaveFiltered writes the gap filter output for its trade date.
func (s *Store) SaveFiltered(result types.GapFilterResult) error {
	result.SchemaVersion = version.SchemaVersion

	return s.write(s.FilteredPath(result.TradeDate), result)
}

func (s *Store) LoadFiltered(date string) (types.GapFilterResult, error) {
	var result types.GapFilterResult
	if err := s.read(s.FilteredPath(date), &result); err != nil {
		return types.GapFilterResult{}, err
	}

	return result, version.CheckArtifact(result.SchemaVersion)
}

func (s *Store) HasFiltered(date string) bool {
	return exists(s.FilteredPath(date))
}

// SaveEntries writes an entry stage report.
func (s *Store) SaveEntries(report types.EntryReport) error {
	report.SchemaVersion = version.SchemaVersion

	return s.write(s.EntriesPath(report.TradeDate, report.Group), report)
}

func (s *Store) LoadEntries(date string, group types.EntryGroup) (types.EntryReport, error) {
	var report types.EntryReport
	if err := s.read(s.EntriesPath(date, group), &report); err != nil {
		return types.EntryReport{}, err
	}

	return report, version.CheckArtifact(report.SchemaVersion)
}

func (s *Store) HasEntries(date string, group types.EntryGroup) bool {
	return exists(s.EntriesPath(date, group))
}

// SaveSnapshot writes the end of day position snapshot for its trade date.
func (s *Store) SaveSnapshot(snapshot types.DailySnapshot) error {
	snapshot.SchemaVersion = version.SchemaVersion

	return s.write(s.SnapshotPath(snapshot.TradeDate), snapshot)
}

func (s *Store) LoadSnapshot(date string) (types.DailySnapshot, error) {
	var snapshot types.DailySnapshot
	if err := s.read(s.SnapshotPath(date), &snapshot); err != nil {
		return types.DailySnapshot{}, err
	}

	return snapshot, version.CheckArtifact(snapshot.SchemaVersion)
}

func (s *Store) HasSnapshot(date string) bool {
	return exists(s.SnapshotPath(date))
}

// SavePositions replaces the held position table.
func (s *Store) SavePositions(held []types.HeldPosition, at time.Time) error {
	sorted := append([]types.HeldPosition(nil), held...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	return s.write(s.PositionsPath(), PositionsFile{
		SchemaVersion: version.SchemaVersion,
		UpdatedAt:     at,
		Positions:     sorted,
	})
}

// LoadPositions reads the held position table. A missing file is an empty table.
func (s *Store) LoadPositions() ([]types.HeldPosition, error) {
	var file PositionsFile

	err := s.read(s.PositionsPath(), &file)
	if errors.HasCode(err, errors.ErrCodeArtifactNotFound) {
		return []types.HeldPosition{}, nil
	}

	if err != nil {
		return nil, err
	}

	if err := version.CheckArtifact(file.SchemaVersion); err != nil {
		return nil, err
	}

	return file.Positions, nil
}

// LoadReentryBlocks returns the blocked symbols for a date. A missing file means none.
func (s *Store) LoadReentryBlocks(date string) ([]string, error) {
	var blocks ReentryBlocks

	err := s.read(s.ReentryPath(date), &blocks)
	if errors.HasCode(err, errors.ErrCodeArtifactNotFound) {
		return []string{}, nil
	}

	if err != nil {
		return nil, err
	}

	return blocks.Symbols, nil
}

// AddReentryBlock records that symbol was exited on date and must not be re-entered that day.
func (s *Store) AddReentryBlock(date, symbol string) error {
	current, err := s.LoadReentryBlocks(date)
	if err != nil {
		return err
	}

	for _, existing := range current {
		if existing == symbol {
			return nil
		}
	}

	current = append(current, symbol)
	sort.Strings(current)

	return s.write(s.ReentryPath(date), ReentryBlocks{
		SchemaVersion: version.SchemaVersion,
		TradeDate:     date,
		Symbols:       current,
	})
}

// IsReentryBlocked reports whether symbol was exited on date.
func (s *Store) IsReentryBlocked(date, symbol string) (bool, error) {
	blocked, err := s.LoadReentryBlocks(date)
	if err != nil {
		return false, err
	}

	for _, b := range blocked {
		if b == symbol {
			return true, nil
		}
	}

	return false, nil
}

func (s *Store) write(path string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := WriteJSONAtomic(path, v); err != nil {
		return err
	}

	s.logger.Debug("Artifact written", zap.String("path", path))

	return nil
}

func (s *Store) read(path string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ReadJSON(path, v)
}

// WriteJSONAtomic writes v as indented JSON to a temp file and renames it into place.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(errors.ErrCodeArtifactWriteFailed, err, "failed to encode %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(errors.ErrCodeArtifactWriteFailed, err, "failed to create directory for %s", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(errors.ErrCodeArtifactWriteFailed, err, "failed to create temp file for %s", path)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return errors.Wrapf(errors.ErrCodeArtifactWriteFailed, err, "failed to write %s", path)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return errors.Wrapf(errors.ErrCodeArtifactWriteFailed, err, "failed to close %s", path)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)

		return errors.Wrapf(errors.ErrCodeArtifactWriteFailed, err, "failed to replace %s", path)
	}

	return nil
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return errors.Newf(errors.ErrCodeArtifactNotFound, "artifact not found: %s", path)
	}

	if err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to read %s", path)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(errors.ErrCodeArtifactCorrupt, err, "failed to decode %s", path)
	}

	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}
