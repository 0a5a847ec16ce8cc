package queuestore

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/indexq/internal/common/compress"
	"github.com/G-Research/indexq/internal/common/util"
	"github.com/G-Research/indexq/internal/indexq/model"
)

const (
	TodoDir       = "todo"
	DoneDir       = "done"
	LockFileName  = "index.lock"
	JSONExtension = ".json"

	// Upper bound (inclusive) of the random disambiguator embedded in file names.
	maxSuffix = 10000
	// Attempts made to find a free file name before giving up.
	maxNameAttempts = 100
	tmpPrefix       = "."
	tmpSuffix       = ".tmp"
)

// Store owns the on-disk layout of a single queue:
//
//	{root}/{name}/todo/
//	{root}/{name}/done/
//	{root}/{name}/index.lock
//
// Batch files are written once and never modified afterwards; they are only moved or deleted.
type Store struct {
	name       string
	queueDir   string
	todoDir    string
	doneDir    string
	compressor compress.Compressor
	clock      clock.PassiveClock
	random     *rand.Rand
}

// New creates the queue directories under root if they do not exist. When compressed is true,
// files written by the store are gzip compressed and carry a .json.gz extension.
func New(root string, name string, compressed bool) (*Store, error) {
	if name == "" {
		return nil, errors.New("queue name must not be empty")
	}
	var compressor compress.Compressor = &compress.NoOpCompressor{}
	if compressed {
		gz, err := compress.NewGzipCompressor(0)
		if err != nil {
			return nil, err
		}
		compressor = gz
	}
	queueDir := filepath.Join(root, name)
	s := &Store{
		name:       name,
		queueDir:   queueDir,
		todoDir:    filepath.Join(queueDir, TodoDir),
		doneDir:    filepath.Join(queueDir, DoneDir),
		compressor: compressor,
		clock:      clock.RealClock{},
		random:     util.NewThreadsafeRand(time.Now().UnixNano()),
	}
	for _, dir := range []string{s.queueDir, s.todoDir, s.doneDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.WithMessagef(err, "creating queue directory %s", dir)
		}
	}
	return s, nil
}

func (s *Store) Name() string     { return s.name }
func (s *Store) QueueDir() string { return s.queueDir }
func (s *Store) TodoDir() string  { return s.todoDir }
func (s *Store) DoneDir() string  { return s.doneDir }
func (s *Store) LockPath() string { return filepath.Join(s.queueDir, LockFileName) }

// Compressed reports whether newly written batch files are compressed.
func (s *Store) Compressed() bool {
	return s.compressor.Extension() != ""
}

// GenerateFileName returns {name}_{year}-{month}-{day}-{hour}-{minute}-{second}-{random}.json[.gz].
// Uniqueness is not guaranteed; Write retries on collision.
func (s *Store) GenerateFileName() string {
	t := s.clock.Now()
	return fmt.Sprintf("%s_%d-%d-%d-%d-%d-%d-%d%s%s",
		s.name,
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(),
		util.IntnInclusive(s.random, maxSuffix),
		JSONExtension,
		s.compressor.Extension(),
	)
}

// Write persists content as a new batch file in todo and returns its path.
// The content is staged in a hidden temporary file and then linked into place, so a consumer
// never observes a partially written batch and an existing file is never overwritten.
func (s *Store) Write(content []byte) (string, error) {
	payload, err := s.compressor.Compress(content)
	if err != nil {
		return "", errors.WithMessage(err, "compressing batch")
	}

	tmp, err := os.CreateTemp(s.todoDir, tmpPrefix+s.name+"-*"+tmpSuffix)
	if err != nil {
		return "", errors.WithStack(err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warnf("Failed to remove staging file %s", tmpPath)
		}
	}()
	if _, err := tmp.Write(payload); err != nil {
		util.CloseResource(tmpPath, tmp)
		return "", errors.WithStack(err)
	}
	if err := tmp.Sync(); err != nil {
		util.CloseResource(tmpPath, tmp)
		return "", errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.WithStack(err)
	}

	var path string
	err = retry.Do(
		func() error {
			path = filepath.Join(s.todoDir, s.GenerateFileName())
			return os.Link(tmpPath, path)
		},
		retry.RetryIf(os.IsExist),
		retry.Attempts(maxNameAttempts),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(0),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", errors.WithMessage(err, "linking batch file into todo")
	}
	log.Infof("Writing new file to %s", path)
	return path, nil
}

// Read returns the uncompressed contents of a batch file, detecting compression from its extension.
func (s *Store) Read(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	b, err := compress.DecompressorFor(path).Decompress(raw)
	if err != nil {
		return nil, errors.WithMessagef(err, "decompressing %s", path)
	}
	return b, nil
}

// ReadRecords reads and parses a batch file.
func (s *Store) ReadRecords(path string) ([]model.Record, error) {
	b, err := s.Read(path)
	if err != nil {
		return nil, err
	}
	records, err := model.UnmarshalRecords(b)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing %s", path)
	}
	return records, nil
}

// List returns the batch files in dir sorted by modification time, oldest first.
// This approximates creation order; it is not a logical sequence number.
func (s *Store) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	type file struct {
		path    string
		modTime time.Time
	}
	files := make([]file, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsBatchFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				// Completed by someone else while we were listing.
				continue
			}
			return nil, errors.WithStack(err)
		}
		files = append(files, file{path: filepath.Join(dir, entry.Name()), modTime: info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// IsBatchFile reports whether name looks like a batch file written by a Store.
func IsBatchFile(name string) bool {
	if strings.HasPrefix(name, tmpPrefix) {
		return false
	}
	return strings.HasSuffix(name, JSONExtension) || strings.HasSuffix(name, JSONExtension+compress.GzipExtension)
}
