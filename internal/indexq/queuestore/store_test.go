package queuestore

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/G-Research/indexq/internal/common/util"
	"github.com/G-Research/indexq/internal/indexq/model"
)

var fileNameRegex = regexp.MustCompile(`^testq_\d{4}-\d{1,2}-\d{1,2}-\d{1,2}-\d{1,2}-\d{1,2}-\d{1,5}\.json(\.gz)?$`)

func TestNew_CreatesLayout(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, "testq", false)
	require.NoError(t, err)

	for _, dir := range []string{s.QueueDir(), s.TodoDir(), s.DoneDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(root, "testq", "todo"), s.TodoDir())
	assert.Equal(t, filepath.Join(root, "testq", "done"), s.DoneDir())
	assert.Equal(t, filepath.Join(root, "testq", "index.lock"), s.LockPath())

	// Opening an existing queue is fine
	_, err = New(root, "testq", true)
	assert.NoError(t, err)
}

func TestNew_EmptyName(t *testing.T) {
	_, err := New(t.TempDir(), "", false)
	assert.Error(t, err)
}

func TestGenerateFileName(t *testing.T) {
	tests := map[string]struct {
		compressed bool
		expected   string
	}{
		"plain":      {false, ".json"},
		"compressed": {true, ".json.gz"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := New(t.TempDir(), "testq", tc.compressed)
			require.NoError(t, err)
			s.clock = clock.NewFakePassiveClock(time.Date(2022, time.March, 4, 5, 6, 7, 0, time.Local))
			s.random = util.NewThreadsafeRand(1)

			fileName := s.GenerateFileName()
			assert.Regexp(t, fileNameRegex, fileName)
			assert.Regexp(t, `^testq_2022-3-4-5-6-7-\d+`+regexp.QuoteMeta(tc.expected)+`$`, fileName)
		})
	}
}

func TestWrite_CollisionsGetDistinctNames(t *testing.T) {
	s, err := New(t.TempDir(), "testq", false)
	require.NoError(t, err)
	// Same second for every write, so only the random suffix disambiguates
	s.clock = clock.NewFakePassiveClock(time.Date(2022, time.March, 4, 5, 6, 7, 0, time.Local))

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		path, err := s.Write([]byte(`[]`))
		require.NoError(t, err)
		assert.False(t, seen[path], "duplicate path %s", path)
		seen[path] = true
	}
	paths, err := s.List(s.TodoDir())
	require.NoError(t, err)
	assert.Len(t, paths, 200)
}

func TestWrite_LeavesNoStagingFiles(t *testing.T) {
	s, err := New(t.TempDir(), "testq", false)
	require.NoError(t, err)
	_, err = s.Write([]byte(`[{"a":1}]`))
	require.NoError(t, err)

	entries, err := os.ReadDir(s.TodoDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, fileNameRegex, entries[0].Name())
}

func TestWriteRead_RoundTrip(t *testing.T) {
	records := []model.Record{{"id": "1", "value": "a"}, {"id": "2", "value": "b"}}
	for _, compressed := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "compressed"}[compressed], func(t *testing.T) {
			s, err := New(t.TempDir(), "testq", compressed)
			require.NoError(t, err)

			b, err := model.MarshalRecords(records)
			require.NoError(t, err)
			path, err := s.Write(b)
			require.NoError(t, err)
			assert.Equal(t, compressed, filepath.Ext(path) == ".gz")

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			if compressed {
				assert.NotEqual(t, b, raw)
			} else {
				assert.Equal(t, b, raw)
			}

			read, err := s.ReadRecords(path)
			require.NoError(t, err)
			assert.Equal(t, records, read)
		})
	}
}

func TestRead_Missing(t *testing.T) {
	s, err := New(t.TempDir(), "testq", false)
	require.NoError(t, err)
	_, err = s.Read(filepath.Join(s.TodoDir(), "nope.json"))
	assert.Error(t, err)
}

func TestList_SortedByModTime(t *testing.T) {
	s, err := New(t.TempDir(), "testq", false)
	require.NoError(t, err)

	base := time.Now().Add(-time.Hour)
	names := []string{"testq_c.json", "testq_a.json.gz", "testq_b.json"}
	for i, name := range names {
		path := filepath.Join(s.TodoDir(), name)
		require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))
		mtime := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
	// Ignored entries
	require.NoError(t, os.WriteFile(filepath.Join(s.TodoDir(), "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.TodoDir(), ".testq-1.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(s.TodoDir(), "sub.json"), 0o755))

	paths, err := s.List(s.TodoDir())
	require.NoError(t, err)
	expected := make([]string, len(names))
	for i, name := range names {
		expected[i] = filepath.Join(s.TodoDir(), name)
	}
	assert.Equal(t, expected, paths)
}

func TestList_Empty(t *testing.T) {
	s, err := New(t.TempDir(), "testq", false)
	require.NoError(t, err)
	paths, err := s.List(s.DoneDir())
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestIsBatchFile(t *testing.T) {
	tests := map[string]bool{
		"q_1.json":     true,
		"q_1.json.gz":  true,
		"q_1.gz":       false,
		".q-123.tmp":   false,
		".hidden.json": false,
		"index.lock":   false,
	}
	for name, expected := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, expected, IsBatchFile(name))
		})
	}
}
