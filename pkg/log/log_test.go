package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferLogger(t *testing.T, format string) (*zap.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	lg, _, err := InitLoggerWithWriteSyncer(&Config{Level: "debug", Format: format, DisableTimestamp: true}, zapcore.AddSync(buf))
	require.NoError(t, err)
	return lg, buf
}

func TestInitLoggerJSON(t *testing.T) {
	lg, buf := newBufferLogger(t, "json")
	lg.Info("encoded record", FieldVersion(3), FieldMode(false), FieldPosition(9))
	require.NoError(t, lg.Sync())

	out := buf.String()
	assert.Contains(t, out, `"msg":"encoded record"`)
	assert.Contains(t, out, `"version":3`)
	assert.Contains(t, out, `"mode":"writing"`)
	assert.Contains(t, out, `"position":9`)
	assert.NotContains(t, out, `"ts"`)
}

func TestInitLoggerText(t *testing.T) {
	lg, buf := newBufferLogger(t, "text")
	lg.Debug("decoded record", FieldMode(true), FieldLayout("u16,str"))

	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "decoded record")
	assert.Contains(t, out, `"mode": "reading"`)
}

func TestInitLoggerBadLevel(t *testing.T) {
	_, _, err := InitLoggerWithWriteSyncer(&Config{Level: "loud"}, zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestInitTestLogger(t *testing.T) {
	lg, props, err := InitTestLogger(t, &Config{Level: "info"})
	require.NoError(t, err)
	lg.Info("visible in test output")
	assert.Equal(t, zapcore.InfoLevel, props.Level.Level())
}

func TestCtxFields(t *testing.T) {
	lg, buf := newBufferLogger(t, "json")
	_, props, err := InitLoggerWithWriteSyncer(&Config{Level: "debug"}, zapcore.AddSync(buf))
	require.NoError(t, err)

	oldL, oldP := L(), _globalP.Load().(*ZapProperties)
	ReplaceGlobals(lg, props)
	replaceLeveledLoggers(lg)
	defer func() {
		ReplaceGlobals(oldL, oldP)
		replaceLeveledLoggers(oldL)
	}()

	ctx := WithModule(context.Background(), "framer")
	ctx = WithFields(ctx, zap.Int("frames", 2))
	Ctx(ctx).Info("frame stream closed")

	out := buf.String()
	assert.Contains(t, out, `"module":"framer"`)
	assert.Contains(t, out, `"frames":2`)
	assert.NotNil(t, Ctx(nil))
	assert.NotNil(t, Ctx(context.Background()))
}

func TestBinderFallback(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	lg, buf := newBufferLogger(t, "json")
	b.SetLogger(&MLogger{Logger: lg})
	b.Logger().With(FieldComponent("transcoder")).Info("bound")
	assert.Contains(t, buf.String(), `"component":"transcoder"`)
}

func TestRatedLogging(t *testing.T) {
	lg, buf := newBufferLogger(t, "json")
	ml := (&MLogger{Logger: lg}).WithRateGroup("test.rated", 0.0001, 1)

	assert.True(t, ml.RatedWarn(1, "first"))
	assert.False(t, ml.RatedWarn(1, "second"))
	assert.Contains(t, buf.String(), "first")
	assert.NotContains(t, buf.String(), "second")
	assert.True(t, R().CheckCredit(1))
}

func TestLeveledLoggersSkipDisabledLevels(t *testing.T) {
	errOut := &bytes.Buffer{}
	lg, _, err := InitLoggerWithWriteSyncer(&Config{Level: "info"}, zapcore.AddSync(&bytes.Buffer{}),
		zap.ErrorOutput(zapcore.AddSync(errOut)))
	require.NoError(t, err)

	oldL := L()
	replaceLeveledLoggers(lg)
	defer replaceLeveledLoggers(oldL)

	assert.Empty(t, errOut.String())
	warnL, ok := _globalLevelLogger.Load(zapcore.WarnLevel)
	require.True(t, ok)
	assert.False(t, warnL.(*zap.Logger).Core().Enabled(zapcore.InfoLevel))
}
