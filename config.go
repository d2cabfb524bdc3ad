package toolbox

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"go.uber.org/zap/zapcore"

	"github.com/abyssdigger/toolbox/lgr"
	"github.com/abyssdigger/toolbox/task"
)

const ENV_PREFIX = "TOOLBOX_"

// Config is the whole toolbox configuration. Omitted blocks take their
// defaults; inside a present block every omitted attribute is zero.
type Config struct {
	Log    *LogConfig    `hcl:"log,block"`
	Task   *task.Config  `hcl:"task,block"`
	Diag   *DiagConfig   `hcl:"diagnostics,block"`
	SQLite *SQLiteConfig `hcl:"sqlite,block"`
	Remote *RemoteConfig `hcl:"remote,block"`
}

type LogConfig struct {
	Console     bool     `hcl:"console,optional"`
	Tag         bool     `hcl:"tag,optional"`
	File        bool     `hcl:"file,optional"`
	Dir         string   `hcl:"dir,optional"`
	FilePrefix  string   `hcl:"file_prefix,optional"`
	MaxFileSize int64    `hcl:"max_file_size,optional"`
	MaxFiles    int      `hcl:"max_files,optional"`
	TagPrefix   string   `hcl:"tag_prefix,optional"`
	StackTrace  bool     `hcl:"stack_trace,optional"`
	ThreadInfo  bool     `hcl:"thread_info,optional"`
	GroupTags   bool     `hcl:"group_tags,optional"`
	Modules     []string `hcl:"modules,optional"` // registered and enabled at start
	Filter      string   `hcl:"filter,optional"`  // Starlark file with accept(module, message) for the console
}

// DiagConfig drives the internal diagnostic logger.
type DiagConfig struct {
	Level      string `hcl:"level,optional"`
	File       string `hcl:"file,optional"`
	MaxSizeMB  int    `hcl:"max_size_mb,optional"`
	MaxBackups int    `hcl:"max_backups,optional"`
}

type SQLiteConfig struct {
	Dir string `hcl:"dir"`
}

// RemoteConfig streams log lines to a socket.io server.
type RemoteConfig struct {
	URL         string `hcl:"url"`
	Namespace   string `hcl:"namespace,optional"`
	Event       string `hcl:"event,optional"`
	Insecure    bool   `hcl:"insecure,optional"`
	TimeoutMS   int    `hcl:"timeout_ms,optional"`
	Retries     int    `hcl:"retries,optional"`
	QueueLength int    `hcl:"queue_length,optional"`
}

func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Console:     true,
		FilePrefix:  lgr.DEFAULT_FILE_PREFIX,
		MaxFileSize: lgr.DEFAULT_FILE_MAX_SIZE,
		MaxFiles:    lgr.DEFAULT_FILE_MAX_FILES,
		TagPrefix:   lgr.DEFAULT_TAG_PREFIX,
	}
}

func DefaultConfig() Config {
	tc := task.DefaultConfig()
	return Config{
		Log:  DefaultLogConfig(),
		Task: &tc,
		Diag: &DiagConfig{Level: "info"},
	}
}

// LoadConfig reads an HCL (or HCL JSON) file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return Config{}, fmt.Errorf("toolbox: load config %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}

// ParseConfig decodes src; filename selects the syntax by its suffix
// (".hcl" or ".json") and appears in error messages.
func ParseConfig(filename string, src []byte) (Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, src, nil, &cfg); err != nil {
		return Config{}, fmt.Errorf("toolbox: parse config %s: %w", filename, err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Log == nil {
		c.Log = def.Log
	}
	if c.Task == nil {
		c.Task = def.Task
	}
	if c.Diag == nil {
		c.Diag = def.Diag
	}
	return c
}

// ApplyEnv overrides c from TOOLBOX_* environment variables:
//
//	TOOLBOX_LOG_DIR            enables the file sink in the directory
//	TOOLBOX_LOG_CONSOLE        bool
//	TOOLBOX_LOG_MODULES        comma separated, added to the enabled modules
//	TOOLBOX_PREFER_COROUTINES  bool
//	TOOLBOX_ENABLE_LOGGING     bool, task manager log lines
//	TOOLBOX_DIAG_LEVEL         debug, info, warn, error
//	TOOLBOX_DIAG_FILE          diagnostics file path
//	TOOLBOX_SQLITE_DIR         enables the SQLite sink
//	TOOLBOX_REMOTE_URL         enables the socket.io sink
//
// Malformed values are reported together and leave their field untouched.
func (c Config) ApplyEnv() (Config, error) {
	c = c.withDefaults()
	log, tc, dc := *c.Log, *c.Task, *c.Diag
	var errs []error
	setBool := func(key string, dst *bool) {
		v, ok := getEnv(key)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", ENV_PREFIX, key, err))
			return
		}
		*dst = b
	}

	if v, ok := getEnv("LOG_DIR"); ok && v != "" {
		log.Dir = v
		log.File = true
	}
	setBool("LOG_CONSOLE", &log.Console)
	if v, ok := getEnv("LOG_MODULES"); ok {
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				log.Modules = append(log.Modules, m)
			}
		}
	}
	setBool("PREFER_COROUTINES", &tc.PreferCoroutines)
	setBool("ENABLE_LOGGING", &tc.EnableLogging)
	if v, ok := getEnv("DIAG_LEVEL"); ok {
		if _, err := zapcore.ParseLevel(v); err != nil {
			errs = append(errs, fmt.Errorf("%sDIAG_LEVEL: %w", ENV_PREFIX, err))
		} else {
			dc.Level = v
		}
	}
	if v, ok := getEnv("DIAG_FILE"); ok {
		dc.File = v
	}
	if v, ok := getEnv("SQLITE_DIR"); ok && v != "" {
		c.SQLite = &SQLiteConfig{Dir: v}
	}
	if v, ok := getEnv("REMOTE_URL"); ok && v != "" {
		rc := RemoteConfig{}
		if c.Remote != nil {
			rc = *c.Remote
		}
		rc.URL = v
		c.Remote = &rc
	}
	c.Log, c.Task, c.Diag = &log, &tc, &dc
	return c, errors.Join(errs...)
}

func getEnv(key string) (string, bool) {
	return os.LookupEnv(ENV_PREFIX + key)
}

// lgrConfig maps the log block onto the dispatcher configuration. The console
// sink is installed by the toolbox itself when a filter is set.
func (lc *LogConfig) lgrConfig() lgr.Config {
	return lgr.Config{
		EnableConsole:    lc.Console && lc.Filter == "",
		EnableTag:        lc.Tag,
		EnableFile:       lc.File,
		LogDir:           lc.Dir,
		FilePrefix:       lc.FilePrefix,
		MaxFileSize:      lc.MaxFileSize,
		MaxFiles:         lc.MaxFiles,
		TagPrefix:        lc.TagPrefix,
		EnableStackTrace: lc.StackTrace,
		EnableThreadInfo: lc.ThreadInfo,
		GroupTags:        lc.GroupTags,
	}
}
