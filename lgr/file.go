package lgr

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abyssdigger/toolbox/internal/diag"
)

// RotatingFileSink appends lines to <dir>/<prefix><unixnano><suffix>. The
// file is created on the first message; once it grows past the size limit
// it is closed and the next message opens a new one. Only the newest
// maxFiles files are kept, the oldest ones are deleted first.
type RotatingFileSink struct {
	mtx       sync.Mutex
	dir       string
	prefix    string
	suffix    string
	maxSize   int64
	maxFiles  int
	groups    GroupResolver
	now       func() time.Time
	remove    func(string) error
	diag      *zap.Logger
	file      *os.File
	size      int64
	lastStamp int64
	msgbuf    bytes.Buffer
}

// FileOption customizes a RotatingFileSink.
type FileOption func(*RotatingFileSink)

func WithFilePrefix(prefix string) FileOption {
	return func(fs *RotatingFileSink) {
		if prefix != "" {
			fs.prefix = prefix
		}
	}
}

func WithFileSuffix(suffix string) FileOption {
	return func(fs *RotatingFileSink) {
		if suffix != "" {
			fs.suffix = suffix
		}
	}
}

func WithMaxFileSize(size int64) FileOption {
	return func(fs *RotatingFileSink) {
		if size > 0 {
			fs.maxSize = size
		}
	}
}

func WithMaxFiles(n int) FileOption {
	return func(fs *RotatingFileSink) {
		if n > 0 {
			fs.maxFiles = n
		}
	}
}

// WithFileGroups adds the group marker ("[Group]" or "[SDK]") before the module.
func WithFileGroups(r GroupResolver) FileOption {
	return func(fs *RotatingFileSink) { fs.groups = r }
}

// WithFileClock replaces time.Now for line timestamps and file names.
func WithFileClock(now func() time.Time) FileOption {
	return func(fs *RotatingFileSink) {
		if now != nil {
			fs.now = now
		}
	}
}

// WithFileDiag sets where failures that do not lose the line are reported,
// such as old files that could not be pruned.
func WithFileDiag(l *zap.Logger) FileOption {
	return func(fs *RotatingFileSink) { fs.diag = l }
}

// NewRotatingFileSink creates dir if needed. No file is opened until the
// first message.
func NewRotatingFileSink(dir string, opts ...FileOption) (*RotatingFileSink, error) {
	if dir == "" {
		return nil, errors.New("lgr: log directory is not set")
	}
	fs := &RotatingFileSink{
		dir:      dir,
		prefix:   DEFAULT_FILE_PREFIX,
		suffix:   DEFAULT_FILE_SUFFIX,
		maxSize:  DEFAULT_FILE_MAX_SIZE,
		maxFiles: DEFAULT_FILE_MAX_FILES,
		now:      time.Now,
		remove:   os.Remove,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(fs)
		}
	}
	fs.diag = diag.Or(fs.diag)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lgr: create log directory: %w", err)
	}
	return fs, nil
}

func (fs *RotatingFileSink) Accept(module, message string) error {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	now := fs.now()
	if fs.file == nil {
		if err := fs.openFile(now); err != nil {
			return err
		}
	}
	fs.buildLine(now, module, message)
	n, err := fs.msgbuf.WriteTo(fs.file)
	fs.size += n
	if err != nil {
		return fmt.Errorf("lgr: write log file %s: %w", fs.file.Name(), err)
	}
	if fs.size > fs.maxSize {
		return fs.closeFile()
	}
	return nil
}

func (fs *RotatingFileSink) buildLine(now time.Time, module, message string) {
	fs.msgbuf.Reset()
	fs.msgbuf.WriteByte('[')
	fs.msgbuf.WriteString(now.Format(FILE_TIME_FORMAT))
	fs.msgbuf.WriteString("] ")
	if fs.groups != nil {
		if g, ok := fs.groups.GroupOf(module); ok {
			fs.msgbuf.WriteString(g.TagPrefix())
		} else {
			fs.msgbuf.WriteString("[" + SDK_GROUP_PREFIX + "]")
		}
		fs.msgbuf.WriteByte(' ')
	}
	fs.msgbuf.WriteByte('[')
	fs.msgbuf.WriteString(module)
	fs.msgbuf.WriteString("] ")
	fs.msgbuf.WriteString(message)
	fs.msgbuf.WriteByte('\n')
}

// openFile creates a new log file and prunes the old ones so that at most
// maxFiles files exist including the new one. A failed prune is reported and
// does not stop the line from being written.
func (fs *RotatingFileSink) openFile(now time.Time) error {
	stamp := now.UnixNano()
	if stamp <= fs.lastStamp {
		stamp = fs.lastStamp + 1
	}
	fs.lastStamp = stamp
	name := filepath.Join(fs.dir, fs.prefix+strconv.FormatInt(stamp, 10)+fs.suffix)
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("lgr: open log file: %w", err)
	}
	fs.file = f
	fs.size = 0
	if err := fs.prune(); err != nil {
		fs.diag.Warn("old log files are not pruned", zap.String("dir", fs.dir), zap.Error(err))
	}
	return nil
}

func (fs *RotatingFileSink) closeFile() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	fs.size = 0
	return err
}

type stampedFile struct {
	path  string
	stamp int64
}

func (fs *RotatingFileSink) listFiles() ([]stampedFile, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, err
	}
	var files []stampedFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, fs.prefix) || !strings.HasSuffix(name, fs.suffix) {
			continue
		}
		stamp, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, fs.prefix), fs.suffix), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, stampedFile{filepath.Join(fs.dir, name), stamp})
	}
	slices.SortFunc(files, func(a, b stampedFile) int {
		switch {
		case a.stamp < b.stamp:
			return -1
		case a.stamp > b.stamp:
			return 1
		}
		return 0
	})
	return files, nil
}

func (fs *RotatingFileSink) prune() error {
	files, err := fs.listFiles()
	if err != nil {
		return fmt.Errorf("lgr: list log files: %w", err)
	}
	var errs []error
	for i := 0; i < len(files)-fs.maxFiles; i++ {
		if err := fs.remove(files[i].path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Files returns the log files of this sink, oldest first.
func (fs *RotatingFileSink) Files() []string {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	files, _ := fs.listFiles()
	res := make([]string, 0, len(files))
	for _, f := range files {
		res = append(res, f.path)
	}
	return res
}

// CurrentFile is the path of the open file, "" if none is open.
func (fs *RotatingFileSink) CurrentFile() string {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	if fs.file == nil {
		return ""
	}
	return fs.file.Name()
}

// Cleanup closes the current file.
func (fs *RotatingFileSink) Cleanup() error {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	return fs.closeFile()
}
