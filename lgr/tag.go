package lgr

import (
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TagSink writes messages to a zap logger under a short tag derived from the
// module name. The zap level follows the module's inferred level (or an
// explicit mapping). Tags are computed once per module and cached.
type TagSink struct {
	backend    *zap.Logger
	prefix     string
	maxTagLen  int
	tagMapping map[string]string
	lvlMapping map[string]LogLevel
	groups     GroupResolver
	stackTrace bool
	threadInfo bool
	cacheMtx   sync.Mutex
	tagCache   map[string]string
}

// TagOption customizes a TagSink.
type TagOption func(*TagSink)

func WithTagPrefix(prefix string) TagOption {
	return func(ts *TagSink) {
		if prefix != "" {
			ts.prefix = prefix
		}
	}
}

func WithMaxTagLength(n int) TagOption {
	return func(ts *TagSink) {
		if n > 0 {
			ts.maxTagLen = n
		}
	}
}

// WithTagMapping overrides the tag of specific modules.
func WithTagMapping(m map[string]string) TagOption {
	return func(ts *TagSink) { ts.tagMapping = m }
}

// WithLevelMapping overrides the inferred level of specific modules.
func WithLevelMapping(m map[string]LogLevel) TagOption {
	return func(ts *TagSink) { ts.lvlMapping = m }
}

// WithTagGroups tags grouped modules as "[Group]_module" and the rest as
// "SDK_module". A nil resolver keeps the prefix based tags.
func WithTagGroups(r GroupResolver) TagOption {
	return func(ts *TagSink) { ts.groups = r }
}

func WithStackTrace(on bool) TagOption {
	return func(ts *TagSink) { ts.stackTrace = on }
}

func WithThreadInfo(on bool) TagOption {
	return func(ts *TagSink) { ts.threadInfo = on }
}

// NewTagSink writes to backend (a no-op logger if nil).
func NewTagSink(backend *zap.Logger, opts ...TagOption) *TagSink {
	if backend == nil {
		backend = zap.NewNop()
	}
	ts := &TagSink{
		backend:   backend,
		prefix:    DEFAULT_TAG_PREFIX,
		maxTagLen: DEFAULT_MAX_TAG_LENGTH,
		tagCache:  map[string]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts
}

func (ts *TagSink) Accept(module, message string) error {
	ce := ts.backend.Check(zapLevel(ts.level(module)), ts.fullMessage(message))
	if ce != nil {
		ce.Write(zap.String("tag", ts.Tag(module)))
	}
	return nil
}

// Cleanup drops the tag cache.
func (ts *TagSink) Cleanup() error {
	ts.cacheMtx.Lock()
	defer ts.cacheMtx.Unlock()
	clear(ts.tagCache)
	return nil
}

// Tag returns the (cached) tag of the module.
func (ts *TagSink) Tag(module string) string {
	ts.cacheMtx.Lock()
	defer ts.cacheMtx.Unlock()
	if tag, ok := ts.tagCache[module]; ok {
		return tag
	}
	tag := truncate(ts.buildTag(module), ts.maxTagLen)
	ts.tagCache[module] = tag
	return tag
}

func (ts *TagSink) buildTag(module string) string {
	if tag, ok := ts.tagMapping[module]; ok {
		return tag
	}
	if ts.groups != nil {
		if g, ok := ts.groups.GroupOf(module); ok {
			return g.TagPrefix() + "_" + module
		}
		return SDK_GROUP_PREFIX + "_" + module
	}
	return ts.prefix + "_" + module
}

func (ts *TagSink) level(module string) LogLevel {
	if lvl, ok := ts.lvlMapping[module]; ok {
		return normLevel(lvl)
	}
	return LevelOf(module)
}

func (ts *TagSink) fullMessage(message string) string {
	if !ts.threadInfo && !ts.stackTrace {
		return message
	}
	var sb strings.Builder
	if ts.threadInfo {
		sb.WriteString("[goroutine " + strconv.FormatUint(goroutineID(), 10) + "] ")
	}
	sb.WriteString(message)
	if ts.stackTrace {
		if stack := formatFrames(callerFrames(DEFAULT_STACK_DEPTH)); stack != "" {
			sb.WriteByte('\n')
			sb.WriteString(stack)
		}
	}
	return sb.String()
}

func zapLevel(lvl LogLevel) zapcore.Level {
	switch lvl {
	case LVL_UNKNOWN, LVL_TRACE, LVL_DEBUG:
		return zapcore.DebugLevel
	case LVL_WARN:
		return zapcore.WarnLevel
	case LVL_ERROR, LVL_FATAL, LVL_UNMASKABLE:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
