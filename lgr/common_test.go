package lgr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_normLevel(t *testing.T) {
	for lvl := LVL_UNKNOWN; lvl < _LVL_MAX_for_checks_only; lvl++ {
		assert.Equal(t, lvl, normLevel(lvl))
	}
	assert.Equal(t, LVL_UNKNOWN, normLevel(_LVL_MAX_for_checks_only))
	assert.Equal(t, LVL_UNKNOWN, normLevel(LogLevel(255)))
	assert.Equal(t, "UNKNOWN", LogLevel(200).String())
	assert.Equal(t, "WARN", LVL_WARN.String())
}

func Test_LevelModule(t *testing.T) {
	assert.Equal(t, "Net_WARN", LevelModule("Net", LVL_WARN))
	assert.Equal(t, "Net_UNKNOWN", LevelModule("Net", LogLevel(99)))
	assert.Equal(t, LVL_WARN, LevelOf(LevelModule("Net", LVL_WARN)))
}

func Test_panicDesc(t *testing.T) {
	assert.Equal(t, ": `"+testlogstr+"`", panicDesc(testlogstr))
	assert.Equal(t, ": (error) `boom`", panicDesc(errors.New("boom")))
	assert.Equal(t, " "+_ERROR_UNKNOWN_PANIC_TEXT, panicDesc(42))
	assert.EqualError(t, panicErr("sink", "x"), "sink: `x`")
}
