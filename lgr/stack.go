package lgr

import (
	"bytes"
	"runtime"
	"strconv"
	"strings"
)

const _MAX_STACK_FRAMES = 32

// callerFrames collects up to depth frames above the caller, skipping frames
// of this package and of the Go runtime.
func callerFrames(depth int) []runtime.Frame {
	pcs := make([]uintptr, _MAX_STACK_FRAMES)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	res := make([]runtime.Frame, 0, depth)
	for len(res) < depth {
		frame, more := frames.Next()
		if !isInternalFrame(frame.Function) {
			res = append(res, frame)
		}
		if !more {
			break
		}
	}
	return res
}

func isInternalFrame(function string) bool {
	if strings.HasPrefix(function, "runtime.") {
		return true
	}
	// github.com/abyssdigger/toolbox/lgr.(*Dispatcher).Log and friends,
	// but not the subpackages or tests.
	pkg := function
	if slash := strings.LastIndexByte(pkg, '/'); slash >= 0 {
		pkg = pkg[slash+1:]
	}
	return strings.HasPrefix(pkg, "lgr.") && !strings.Contains(pkg, ".Test")
}

// formatFrames renders frames one per line: "\tat function(file:line)"
func formatFrames(frames []runtime.Frame) string {
	var sb strings.Builder
	for i, f := range frames {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("\tat ")
		sb.WriteString(f.Function)
		sb.WriteByte('(')
		sb.WriteString(f.File)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(f.Line))
		sb.WriteByte(')')
	}
	return sb.String()
}

// goroutineID parses the id out of the "goroutine N [running]:" header of
// runtime.Stack. Returns 0 if the header cannot be parsed.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
