package indexq

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/indexq/internal/common/compress"
	"github.com/G-Research/indexq/internal/common/indexqerrors"
	"github.com/G-Research/indexq/internal/common/util"
	"github.com/G-Research/indexq/internal/indexq/metrics"
)

// RotateFunc picks a subdirectory of done for a completed file.
type RotateFunc func(path string) (string, error)

// RotateByDate files completed batches under done/YYYY-MM-DD.
func RotateByDate(c clock.PassiveClock) RotateFunc {
	return func(string) (string, error) {
		return c.Now().Format("2006-01-02"), nil
	}
}

// Complete moves a processed file from todo to done and returns its new path. If rotate is given, the file is
// placed in the subdirectory of done it names. When the queue compresses on completion and the file is not
// already compressed, it is streamed through gzip into done and the original removed afterwards; a crash
// between those two steps leaves the file in both places.
//
// Complete is not idempotent: completing a path twice fails with ErrNotFound.
func (q *Queue) Complete(path string, rotate RotateFunc) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", errors.WithStack(&indexqerrors.ErrNotFound{Path: path})
		}
		return "", errors.WithStack(err)
	}

	destDir := q.store.DoneDir()
	if rotate != nil {
		sub, err := rotate(path)
		if err != nil {
			return "", errors.WithStack(&indexqerrors.ErrRotationFailure{Path: path, Cause: err})
		}
		if !isLocalPath(sub) {
			return "", errors.WithStack(&indexqerrors.ErrRotationFailure{
				Path:  path,
				Cause: errors.Errorf("subdirectory %q is not inside the done directory", sub),
			})
		}
		destDir = filepath.Join(destDir, sub)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return "", errors.WithStack(err)
		}
	}

	if q.compressOnComplete && !compress.IsCompressed(path) {
		dest := filepath.Join(destDir, filepath.Base(path)+compress.GzipExtension)
		if err := compressFile(path, dest); err != nil {
			return "", err
		}
		if err := os.Remove(path); err != nil {
			return "", errors.WithMessagef(err, "removing %s after compressing it to %s", path, dest)
		}
		log.Infof("Completed %s, compressed to %s", path, dest)
		q.metrics.RecordCompletion(metrics.CompleteModeCompress)
		return dest, nil
	}

	dest := filepath.Join(destDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		if os.IsNotExist(err) {
			// Completed concurrently by someone else
			return "", errors.WithStack(&indexqerrors.ErrNotFound{Path: path})
		}
		return "", errors.WithStack(err)
	}
	log.Infof("Completed %s, moved to %s", path, dest)
	q.metrics.RecordCompletion(metrics.CompleteModeMove)
	return dest, nil
}

func compressFile(src string, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.WithStack(&indexqerrors.ErrNotFound{Path: src})
		}
		return errors.WithStack(err)
	}
	defer util.CloseResource(src, in)

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.WithStack(err)
	}
	compressor, err := compress.NewGzipCompressor(0)
	if err != nil {
		util.CloseResource(dest, out)
		return err
	}
	if _, err := compressor.CompressStream(out, in); err != nil {
		util.CloseResource(dest, out)
		return errors.WithMessagef(err, "compressing %s", src)
	}
	if err := out.Sync(); err != nil {
		util.CloseResource(dest, out)
		return errors.WithStack(err)
	}
	return errors.WithStack(out.Close())
}

func isLocalPath(sub string) bool {
	if sub == "" || filepath.IsAbs(sub) {
		return false
	}
	clean := filepath.Clean(sub)
	return clean != "." && clean != ".." && !strings.HasPrefix(clean, ".."+string(filepath.Separator))
}
