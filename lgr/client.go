package lgr

/*
ModuleClient is a lightweight handle bound to one base module name. Level
helpers log to "<module>_<LEVEL>" modules, so callers switch levels on and
off through the regular module mask:

	net := d.Client("Net")
	d.RegisterModules("Net_INFO", "Net_ERROR")
	d.EnableModules("Net_ERROR")
	net.Info("connected")            // dropped, Net_INFO is disabled
	net.Error("handshake failed")    // delivered to Net_ERROR

The client implements io.Writer, so it can be used with fmt.Fprintf:

	fmt.Fprintf(net.Lvl(LVL_WARN), "retry #%d", n)

Lvl mutates the client, so a client shared between goroutines should not be
used with Lvl/Write concurrently.
*/

// ModuleClient logs on behalf of one base module.
type ModuleClient struct {
	dispatcher *Dispatcher
	module     string
	curLevel   LogLevel // level used by Write / fmt.Fprintf helpers
}

// Client returns a client for the base module. The client does not register
// any module by itself.
func (d *Dispatcher) Client(module string) *ModuleClient {
	return &ModuleClient{dispatcher: d, module: module, curLevel: LVL_INFO}
}

func (mc *ModuleClient) Module() string {
	return mc.module
}

// ModuleFor returns the module name used for the level.
func (mc *ModuleClient) ModuleFor(level LogLevel) string {
	return LevelModule(mc.module, level)
}

// Log_with_err logs to the level module and returns delivery preconditions
// errors (ErrNotInitialized).
func (mc *ModuleClient) Log_with_err(level LogLevel, s string) error {
	return mc.dispatcher.Log_with_err(mc.ModuleFor(level), s)
}

// Log is the non-error variant; it panics before the dispatcher is initialized.
func (mc *ModuleClient) Log(level LogLevel, s string) {
	mc.dispatcher.Log(mc.ModuleFor(level), s)
}

func (mc *ModuleClient) Trace(s string) { mc.Log(LVL_TRACE, s) }
func (mc *ModuleClient) Debug(s string) { mc.Log(LVL_DEBUG, s) }
func (mc *ModuleClient) Info(s string)  { mc.Log(LVL_INFO, s) }
func (mc *ModuleClient) Warn(s string)  { mc.Log(LVL_WARN, s) }
func (mc *ModuleClient) Error(s string) { mc.Log(LVL_ERROR, s) }

// Err logs an error value with its stack at ERROR level.
func (mc *ModuleClient) Err(err error, message string) {
	mc.dispatcher.LogErr(mc.ModuleFor(LVL_ERROR), err, message)
}

// Lvl sets the client's current level (used by Write/fmt.Fprintf) and returns
// the same client for convenient chaining.
func (mc *ModuleClient) Lvl(level LogLevel) *ModuleClient {
	mc.curLevel = normLevel(level)
	return mc
}

// Write implements io.Writer. It forwards p as one message at the client's
// current level; a single trailing newline is dropped. On success it returns
// len(p), on failure 0 and the error.
func (mc *ModuleClient) Write(p []byte) (n int, err error) {
	if p == nil {
		return 0, nil
	}
	s := string(p)
	if l := len(s); l > 0 && s[l-1] == '\n' {
		s = s[:l-1]
	}
	if err = mc.Log_with_err(mc.curLevel, s); err != nil {
		return 0, err
	}
	return len(p), nil
}
