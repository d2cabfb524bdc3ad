// Package lgr is a module-gated logger. Every named module owns one bit of a
// 31-bit mask; a message reaches the registered sinks only while its module
// bit is enabled. Sinks are pluggable (console, tag, rotating file, buffered,
// conditional, composite, async, retry, plus the sqlsink and remotesink
// subpackages) and a failing sink never blocks the others.
package lgr

/*
Package-wide constants, enums and helpers:
  - default sizes and limits
  - log levels inferred from module names and their name/color maps
  - ANSI color fragments
  - error messages and sentinel errors
  - panic description helper
*/

import (
	"errors"
	"strings"
)

type basetype byte // underlying byte-sized representation of enums

type LogLevel basetype // level inferred from a module name

// LevelMap is a fixed-size array with one entry per log level. Used for
// level names and colors.
type LevelMap [_LVL_MAX_for_checks_only]string

const (
	// Log level values. The trailing _LVL_MAX_for_checks_only is used as an
	// exclusive upper bound for normalization checks.
	LVL_UNKNOWN LogLevel = iota
	LVL_TRACE
	LVL_DEBUG
	LVL_INFO
	LVL_WARN
	LVL_ERROR
	LVL_FATAL
	LVL_UNMASKABLE
	_LVL_MAX_for_checks_only
)

const (
	MAX_MODULES    = 31  // bits 1<<0 .. 1<<30
	MAX_OUTPUTS    = 10  // registered sinks limit
	MAX_EXCEPTIONS = 100 // dispatch is switched off after this many sink failures

	DEFAULT_TAG_PREFIX     = "KToolBoxSDK"
	DEFAULT_MAX_TAG_LENGTH = 23
	DEFAULT_FILE_PREFIX    = "logger_"
	DEFAULT_FILE_SUFFIX    = ".txt"
	DEFAULT_FILE_MAX_SIZE  = 5 * 1024 * 1024
	DEFAULT_FILE_MAX_FILES = 3
	DEFAULT_BUFFER_SIZE    = 1000
	DEFAULT_FLUSH_INTERVAL = 5000 // ms
	DEFAULT_MSG_BUFF       = 32   // AsyncSink channel capacity
	DEFAULT_STACK_DEPTH    = 3

	FILE_TIME_FORMAT = "2006-01-02 15:04:05.000"
	SDK_GROUP_PREFIX = "SDK"
)

const (
	// ANSI colored text fragments prefix/suffix used when colors are requested.
	// For a colored piece of text the sequence will be:
	// ANSI_COL_PRFX + colorSpec + ANSI_COL_SUFX + text + ANSI_COL_RESET
	ANSI_COL_PRFX  = "\033["
	ANSI_COL_SUFX  = "m"
	ANSI_COL_RESET = ANSI_COL_PRFX + "0" + ANSI_COL_SUFX
)

const (
	_ERROR_MESSAGE_NOT_INITIALIZED   = "lgr: dispatcher is not initialized"
	_ERROR_MESSAGE_BLANK_MODULE      = "lgr: module name is blank"
	_ERROR_MESSAGE_MODULES_EXHAUSTED = "lgr: all 31 module bits are taken"
	_ERROR_MESSAGE_NIL_SINK          = "lgr: sink is nil"
	_ERROR_MESSAGE_OUTPUTS_FULL      = "lgr: outputs limit reached"
	_ERROR_MESSAGE_INCOMPARABLE_SINK = "lgr: sink type is not comparable"
	_ERROR_MESSAGE_CATEGORY_CONFLICT = "lgr: category already belongs to another group"
	_ERROR_MESSAGE_UNKNOWN_GROUP     = "lgr: group is not registered"
	_ERROR_MESSAGE_BLANK_GROUP       = "lgr: group name is blank"
	_ERROR_MESSAGE_SINK_STOPPED      = "lgr: sink is stopped"
	_ERROR_UNKNOWN_PANIC_TEXT        = "[no panic description]"
)

var (
	ErrNotInitialized   = errors.New(_ERROR_MESSAGE_NOT_INITIALIZED)
	ErrBlankModuleName  = errors.New(_ERROR_MESSAGE_BLANK_MODULE)
	ErrModulesExhausted = errors.New(_ERROR_MESSAGE_MODULES_EXHAUSTED)
	ErrNilSink          = errors.New(_ERROR_MESSAGE_NIL_SINK)
	ErrOutputsFull      = errors.New(_ERROR_MESSAGE_OUTPUTS_FULL)
	ErrIncomparableSink = errors.New(_ERROR_MESSAGE_INCOMPARABLE_SINK)
	ErrCategoryConflict = errors.New(_ERROR_MESSAGE_CATEGORY_CONFLICT)
	ErrUnknownGroup     = errors.New(_ERROR_MESSAGE_UNKNOWN_GROUP)
	ErrBlankGroupName   = errors.New(_ERROR_MESSAGE_BLANK_GROUP)
	ErrSinkStopped      = errors.New(_ERROR_MESSAGE_SINK_STOPPED)
)

/////////////////////////////////////////////////////////////////////////////////////////

// Level names are also the module suffixes used by Dispatcher.Debug/Info/...
var LevelFullNames = &LevelMap{
	"UNKNOWN",    //LVL_UNKNOWN
	"TRACE",      //LVL_TRACE
	"DEBUG",      //LVL_DEBUG
	"INFO",       //LVL_INFO
	"WARN",       //LVL_WARN
	"ERROR",      //LVL_ERROR
	"FATAL",      //LVL_FATAL
	"UNMASKABLE", //LVL_UNMASKABLE
}

// Predefined ANSI color map for a terminal with black background
var LevelColorOnBlackMap = &LevelMap{
	"9;90",     //LVL_UNKNOWN
	"2;90",     //LVL_TRACE
	"0;90",     //LVL_DEBUG
	"0;97",     //LVL_INFO
	"0;33",     //LVL_WARN
	"0;91",     //LVL_ERROR
	"101;1;33", //LVL_FATAL
	"107;1;31", //LVL_UNMASKABLE
}

// Generic byte normalization helper.
func norm_byte[T ~byte](val, overlimit, def T) T {
	if val < overlimit {
		return val
	} else {
		return def
	}
}

// Ensures a provided LogLevel is within the valid range
func normLevel(level LogLevel) LogLevel {
	return norm_byte(level, _LVL_MAX_for_checks_only, LVL_UNKNOWN)
}

func (lvl LogLevel) String() string {
	return LevelFullNames[normLevel(lvl)]
}

// LevelOf infers the level of a module from its name, case-insensitively:
// ERROR, WARN, DEBUG, VERBOSE (or TRACE), anything else is INFO.
func LevelOf(module string) LogLevel {
	upper := strings.ToUpper(module)
	switch {
	case strings.Contains(upper, "ERROR"):
		return LVL_ERROR
	case strings.Contains(upper, "WARN"):
		return LVL_WARN
	case strings.Contains(upper, "DEBUG"):
		return LVL_DEBUG
	case strings.Contains(upper, "VERBOSE"), strings.Contains(upper, "TRACE"):
		return LVL_TRACE
	}
	return LVL_INFO
}

// LevelModule returns the conventional module name for a level of a base
// module, e.g. LevelModule("Net", LVL_WARN) == "Net_WARN".
func LevelModule(module string, level LogLevel) string {
	return module + "_" + normLevel(level).String()
}

// Converts a panic value into a compact readable string (used when
// translating panics into errors or fallback messages)
func panicDesc(panic any) (errtext string) {
	switch v := panic.(type) {
	case string:
		errtext = ": `" + v + "`"
	case error:
		errtext = ": (error) `" + v.Error() + "`"
	default:
		errtext = " " + _ERROR_UNKNOWN_PANIC_TEXT
	}
	return errtext
}

// panicErr wraps a recovered panic into an error
func panicErr(where string, r any) error {
	return errors.New(where + panicDesc(r))
}
