package lgr

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/abyssdigger/toolbox/internal/diag"
)

const STARLARK_PREDICATE_FUNC = "accept"

// StarlarkPredicate compiles a Starlark script defining
//
//	def accept(module, message): ...
//
// into a Predicate. The script may call level_of(module), which returns the
// inferred level name ("ERROR", "WARN", ...). A script error at call time
// rejects the message and is reported to diagLogger.
func StarlarkPredicate(filename string, src any, diagLogger *zap.Logger) (Predicate, error) {
	dl := diag.Or(diagLogger)
	thread := &starlark.Thread{Name: "predicate-loader"}
	predeclared := starlark.StringDict{
		"level_of": starlark.NewBuiltin("level_of", starlarkLevelOf),
	}
	globals, err := starlark.ExecFile(thread, filename, src, predeclared)
	if err != nil {
		return nil, fmt.Errorf("lgr: load predicate script: %w", err)
	}
	fn, ok := globals[STARLARK_PREDICATE_FUNC].(starlark.Callable)
	if !ok {
		return nil, errors.New("lgr: predicate script does not define " + STARLARK_PREDICATE_FUNC + "(module, message)")
	}
	return func(module, message string) bool {
		// Thread is not safe for concurrent use, globals are frozen by ExecFile.
		th := &starlark.Thread{Name: "predicate"}
		res, err := starlark.Call(th, fn, starlark.Tuple{starlark.String(module), starlark.String(message)}, nil)
		if err != nil {
			dl.Warn("predicate script failed", zap.String("script", filename), zap.String("module", module), zap.Error(err))
			return false
		}
		return bool(res.Truth())
	}, nil
}

func starlarkLevelOf(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var module string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &module); err != nil {
		return nil, err
	}
	return starlark.String(LevelOf(module).String()), nil
}
