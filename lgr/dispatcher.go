package lgr

/*
Dispatcher is the entry point of the package. It owns the module registry,
the output registry, the enabled-modules mask and the group registry.

Lifecycle is a one-way switch: New creates an uninitialized dispatcher,
Initialize flips it (once, by compare-and-set) and installs the default sinks.
Logging before Initialize is a programming error: the *_with_err variants
return ErrNotInitialized, the plain variants panic with it.

The logging hot path takes no locks: module lookup reads an immutable
snapshot, the mask is an atomic word and the sinks list is copy-on-write.
*/

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/abyssdigger/toolbox/internal/diag"
)

// Config selects the default sinks installed by Initialize.
type Config struct {
	EnableConsole    bool   // ConsoleSink on the console writer
	EnableTag        bool   // TagSink on the tag backend
	EnableFile       bool   // RotatingFileSink in LogDir
	LogDir           string // required by EnableFile
	FilePrefix       string
	MaxFileSize      int64
	MaxFiles         int
	TagPrefix        string
	EnableStackTrace bool // tag sink appends a short caller stack
	EnableThreadInfo bool // tag sink prefixes the goroutine id
	GroupTags        bool // tag and file sinks mark messages with their group
}

func DefaultConfig() Config {
	return Config{
		EnableConsole: true,
		FilePrefix:    DEFAULT_FILE_PREFIX,
		MaxFileSize:   DEFAULT_FILE_MAX_SIZE,
		MaxFiles:      DEFAULT_FILE_MAX_FILES,
		TagPrefix:     DEFAULT_TAG_PREFIX,
	}
}

// Dispatcher routes (module, message) pairs to sinks when the module is
// registered and enabled.
type Dispatcher struct {
	modules     *ModuleRegistry
	outputs     *OutputRegistry
	groups      *groupRegistry
	enabled     atomic.Uint32
	initialized atomic.Bool
	config      atomic.Pointer[Config]
	console     io.Writer
	tagBackend  *zap.Logger
	diag        *zap.Logger
}

// Option customizes a Dispatcher built by New.
type Option func(*Dispatcher)

// WithDiagLogger sets the logger used for internal diagnostics (sink
// failures, rejected registrations, formatting problems).
func WithDiagLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.diag = l
		}
	}
}

// WithFallback sends internal diagnostics to the writer (os.Stderr by default).
func WithFallback(w io.Writer) Option {
	return func(d *Dispatcher) { d.diag = diag.New(w) }
}

// WithConsole sets the writer of the default console sink (os.Stdout by default).
func WithConsole(w io.Writer) Option {
	return func(d *Dispatcher) {
		if w != nil {
			d.console = w
		}
	}
}

// WithTagBackend sets the zap logger behind the default tag sink.
func WithTagBackend(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.tagBackend = l
		}
	}
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{console: os.Stdout}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.diag == nil {
		d.diag = diag.New(os.Stderr)
	}
	if d.tagBackend == nil {
		d.tagBackend = d.diag
	}
	d.modules = NewModuleRegistry(d.diag)
	d.outputs = NewOutputRegistry(d.diag)
	d.groups = newGroupRegistry()
	return d
}

// Initialize switches the dispatcher on and installs the default sinks
// selected by cfg. Only the first call has any effect; it returns false for
// every later call.
func (d *Dispatcher) Initialize(cfg Config) bool {
	if !d.initialized.CompareAndSwap(false, true) {
		return false
	}
	d.config.Store(&cfg)
	var resolver GroupResolver
	if cfg.GroupTags {
		resolver = d
	}
	if cfg.EnableConsole {
		d.addDefault(NewConsoleSink(d.console))
	}
	if cfg.EnableTag {
		d.addDefault(NewTagSink(d.tagBackend,
			WithTagPrefix(cfg.TagPrefix),
			WithStackTrace(cfg.EnableStackTrace),
			WithThreadInfo(cfg.EnableThreadInfo),
			WithTagGroups(resolver),
		))
	}
	if cfg.EnableFile {
		fs, err := NewRotatingFileSink(cfg.LogDir,
			WithFilePrefix(cfg.FilePrefix),
			WithMaxFileSize(cfg.MaxFileSize),
			WithMaxFiles(cfg.MaxFiles),
			WithFileGroups(resolver),
			WithFileDiag(d.diag),
		)
		if err != nil {
			d.diag.Error("default file output is not created", zap.String("dir", cfg.LogDir), zap.Error(err))
		} else {
			d.addDefault(fs)
		}
	}
	return true
}

func (d *Dispatcher) addDefault(s Sink) {
	if err := d.outputs.Add(s); err != nil {
		d.diag.Error("default output is not added", zap.Error(err))
	}
}

func (d *Dispatcher) IsInitialized() bool {
	return d.initialized.Load()
}

// Config returns the configuration passed to Initialize (zero value before).
func (d *Dispatcher) Config() Config {
	if c := d.config.Load(); c != nil {
		return *c
	}
	return Config{}
}

/////////////////////////////////////////////////////////////////////////////////////
// Logging

// Log_with_err delivers the message to every sink if the module is
// registered and enabled. Unknown and disabled modules are silently skipped.
func (d *Dispatcher) Log_with_err(module, message string) error {
	if !d.initialized.Load() {
		return ErrNotInitialized
	}
	bit, ok := d.modules.Bit(module)
	if !ok || d.enabled.Load()&bit == 0 {
		return nil
	}
	d.outputs.DispatchToAll(module, message)
	return nil
}

// Log is Log_with_err that panics with ErrNotInitialized before Initialize.
func (d *Dispatcher) Log(module, message string) {
	if err := d.Log_with_err(module, message); err != nil {
		panic(err)
	}
}

// Logf_with_err formats the message only if the module would be delivered.
// Bad verbs and panicking arguments are reported to the diagnostics logger;
// the text fmt produced for them is still delivered.
func (d *Dispatcher) Logf_with_err(module, format string, args ...any) error {
	if !d.initialized.Load() {
		return ErrNotInitialized
	}
	if !d.IsEnabled(module) {
		return nil
	}
	message, err := safeSprintf(format, args...)
	if err != nil {
		d.diag.Warn("log message formatting failed", zap.String("module", module), zap.String("format", format), zap.Error(err))
	}
	return d.Log_with_err(module, message)
}

func (d *Dispatcher) Logf(module, format string, args ...any) {
	if err := d.Logf_with_err(module, format, args...); err != nil {
		panic(err)
	}
}

// LogErr_with_err logs message followed by the error text and a stack: the
// error's own one when it prints one with %+v, the caller's otherwise.
func (d *Dispatcher) LogErr_with_err(module string, err error, message string) error {
	if !d.initialized.Load() {
		return ErrNotInitialized
	}
	if !d.IsEnabled(module) {
		return nil
	}
	return d.Log_with_err(module, errorText(err, message))
}

func (d *Dispatcher) LogErr(module string, err error, message string) {
	if e := d.LogErr_with_err(module, err, message); e != nil {
		panic(e)
	}
}

// Level shortcuts log to "<module>_<LEVEL>", e.g. Warn("Net", ...) logs to
// the "Net_WARN" module.

func (d *Dispatcher) Debug(module, message string) { d.Log(LevelModule(module, LVL_DEBUG), message) }
func (d *Dispatcher) Info(module, message string)  { d.Log(LevelModule(module, LVL_INFO), message) }
func (d *Dispatcher) Warn(module, message string)  { d.Log(LevelModule(module, LVL_WARN), message) }
func (d *Dispatcher) Error(module, message string) { d.Log(LevelModule(module, LVL_ERROR), message) }

func safeSprintf(format string, args ...any) (s string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = format
			err = panicErr("panic formatting message", r)
		}
	}()
	s = fmt.Sprintf(format, args...)
	if strings.Contains(s, "%!") && !strings.Contains(format, "%!") {
		err = errors.New("bad format verb or argument count")
	}
	return s, err
}

func errorText(err error, message string) string {
	var sb strings.Builder
	sb.WriteString(message)
	if err == nil {
		return sb.String()
	}
	sb.WriteByte('\n')
	plain := err.Error()
	verbose := fmt.Sprintf("%+v", err)
	sb.WriteString(verbose)
	if verbose == plain {
		if stack := formatFrames(callerFrames(_MAX_STACK_FRAMES)); stack != "" {
			sb.WriteByte('\n')
			sb.WriteString(stack)
		}
	}
	return sb.String()
}

/////////////////////////////////////////////////////////////////////////////////////
// Modules

// RegisterModules registers every name, returning the joined errors of the
// rejected ones.
func (d *Dispatcher) RegisterModules(names ...string) error {
	var errs []error
	for _, name := range names {
		if _, err := d.modules.Register(name); err != nil {
			errs = append(errs, fmt.Errorf("module `%s`: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// EnableModules sets the bits of the registered modules. Unknown names are
// reported to diagnostics and skipped.
func (d *Dispatcher) EnableModules(names ...string) *Dispatcher {
	d.updateMask(d.bitsOf(names), true)
	return d
}

// DisableModules clears the bits of the registered modules. Unknown names
// are reported to diagnostics and skipped.
func (d *Dispatcher) DisableModules(names ...string) *Dispatcher {
	d.updateMask(d.bitsOf(names), false)
	return d
}

func (d *Dispatcher) bitsOf(names []string) (bits uint32) {
	for _, name := range names {
		bit, ok := d.modules.Bit(name)
		if !ok {
			d.diag.Warn("module is not registered", zap.String("module", name))
			continue
		}
		bits |= bit
	}
	return bits
}

func (d *Dispatcher) updateMask(bits uint32, set bool) {
	if bits == 0 {
		return
	}
	for {
		old := d.enabled.Load()
		next := old &^ bits
		if set {
			next = old | bits
		}
		if d.enabled.CompareAndSwap(old, next) {
			return
		}
	}
}

func (d *Dispatcher) IsEnabled(name string) bool {
	bit, ok := d.modules.Bit(name)
	return ok && d.enabled.Load()&bit != 0
}

func (d *Dispatcher) EnabledMask() uint32 {
	return d.enabled.Load()
}

func (d *Dispatcher) Modules() *ModuleRegistry {
	return d.modules
}

/////////////////////////////////////////////////////////////////////////////////////
// Outputs

func (d *Dispatcher) AddOutput(s Sink) error {
	return d.outputs.Add(s)
}

func (d *Dispatcher) RemoveOutput(s Sink) bool {
	return d.outputs.Remove(s)
}

func (d *Dispatcher) ClearOutputs() *Dispatcher {
	d.outputs.Clear()
	return d
}

func (d *Dispatcher) Outputs() *OutputRegistry {
	return d.outputs
}

/////////////////////////////////////////////////////////////////////////////////////
// Groups

// RegisterGroup registers (or updates) a group and attaches categories to
// it. The categories are registered as modules but not enabled. A category
// already owned by another group makes the call fail with ErrCategoryConflict.
func (d *Dispatcher) RegisterGroup(g Group, categories ...string) error {
	if g.Name == "" {
		d.diag.Error("group registration rejected", zap.Error(ErrBlankGroupName))
		return ErrBlankGroupName
	}
	d.groups.register(g)
	return d.AddGroupCategories(g.Name, categories...)
}

// AddGroupCategories registers the categories as modules and attaches them
// to the group. Nothing is changed when a category conflicts, is blank or
// does not fit into the remaining module bits.
func (d *Dispatcher) AddGroupCategories(group string, categories ...string) error {
	err := d.groups.check(group, categories)
	if err == nil {
		err = d.modules.fits(categories)
	}
	if err == nil {
		err = d.RegisterModules(categories...)
	}
	if err == nil {
		err = d.groups.addCategories(group, categories)
	}
	if err != nil {
		d.diag.Error("group categories rejected", zap.String("group", group), zap.Error(err))
	}
	return err
}

func (d *Dispatcher) EnableGroup(group string) error {
	return d.switchGroup(group, true)
}

func (d *Dispatcher) DisableGroup(group string) error {
	return d.switchGroup(group, false)
}

func (d *Dispatcher) switchGroup(group string, on bool) error {
	categories, ok := d.groups.categories(group)
	if !ok {
		d.diag.Warn("group is not registered", zap.String("group", group))
		return ErrUnknownGroup
	}
	d.updateMask(d.bitsOf(categories), on)
	return nil
}

func (d *Dispatcher) EnableAllGroups() *Dispatcher {
	for _, g := range d.groups.list() {
		d.switchGroup(g.Name, true)
	}
	return d
}

// GroupOf returns the group owning the category.
func (d *Dispatcher) GroupOf(category string) (Group, bool) {
	return d.groups.groupOf(category)
}

func (d *Dispatcher) Groups() []Group {
	return d.groups.list()
}

func (d *Dispatcher) GroupCategories(group string) []string {
	categories, _ := d.groups.categories(group)
	return categories
}

func (d *Dispatcher) GroupStats() string {
	return d.groups.stats()
}

// LogIn logs to a category of a registered group; an unknown group is
// reported to diagnostics and the message is dropped.
func (d *Dispatcher) LogIn(group, category, message string) {
	if !d.groups.has(group) {
		d.diag.Warn("group is not registered", zap.String("group", group), zap.String("category", category))
		return
	}
	d.Log(category, message)
}

/////////////////////////////////////////////////////////////////////////////////////
// Stats

// Stats is a point-in-time snapshot of the dispatcher state.
type Stats struct {
	Initialized    bool
	Modules        int
	EnabledMask    uint32
	EnabledModules []string
	Outputs        int
	Exceptions     int64
	Groups         int
}

func (d *Dispatcher) Stats() Stats {
	mask := d.enabled.Load()
	st := Stats{
		Initialized: d.initialized.Load(),
		Modules:     d.modules.Count(),
		EnabledMask: mask,
		Outputs:     d.outputs.Count(),
		Exceptions:  d.outputs.Exceptions(),
		Groups:      len(d.groups.list()),
	}
	for _, name := range d.modules.Names() {
		if bit, _ := d.modules.Bit(name); mask&bit != 0 {
			st.EnabledModules = append(st.EnabledModules, name)
		}
	}
	return st
}

func (s Stats) String() string {
	return "Logger Stats:" +
		"\n  Initialized: " + strconv.FormatBool(s.Initialized) +
		"\n  Registered Modules: " + strconv.Itoa(s.Modules) +
		"\n  Enabled Mask: 0x" + strconv.FormatUint(uint64(s.EnabledMask), 16) +
		"\n  Enabled Modules: " + strings.Join(s.EnabledModules, ", ") +
		"\n  Outputs: " + strconv.Itoa(s.Outputs) +
		"\n  Exceptions: " + strconv.FormatInt(s.Exceptions, 10) +
		"\n  Groups: " + strconv.Itoa(s.Groups)
}
