package shutdown

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeOutputs struct {
	calls int
	err   error
}

func (f *fakeOutputs) FailClosed() error {
	f.calls++
	return f.err
}

func captureExit(t *testing.T) *int {
	t.Helper()
	code := -1
	orig := ExitFunc
	ExitFunc = func(c int) { code = c }
	t.Cleanup(func() { ExitFunc = orig })
	return &code
}

func TestShutdown(t *testing.T) {
	code := captureExit(t)
	out := &fakeOutputs{}

	Shutdown(out, false)
	assert.Equal(t, 1, out.calls)
	assert.Equal(t, 0, *code)
}

func TestShutdown_SafeModeSkipsOutputs(t *testing.T) {
	code := captureExit(t)
	out := &fakeOutputs{}

	Shutdown(out, true)
	assert.Equal(t, 0, out.calls)
	assert.Equal(t, 0, *code)
}

func TestShutdownWithError_FailClosedError(t *testing.T) {
	code := captureExit(t)
	out := &fakeOutputs{err: errors.New("line busy")}

	ShutdownWithError(out, false, errors.New("boom"), "Fatal")
	assert.Equal(t, 1, out.calls)
	assert.Equal(t, 1, *code)
}
