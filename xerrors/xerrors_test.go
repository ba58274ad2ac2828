package xerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))

	base := errors.New("base error")
	wrapped := Wrap(base, "context")
	require.Error(t, wrapped)
	assert.Equal(t, "context: base error", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)
}

func TestWrapf(t *testing.T) {
	assert.NoError(t, Wrapf(nil, "lock %s", "/a"))

	wrapped := Wrapf(ErrNotFound, "lock %s", "/a")
	assert.Equal(t, "lock /a: not found", wrapped.Error())
	assert.ErrorIs(t, wrapped, ErrNotFound)
}

type codedErr struct{}

func (codedErr) Error() string     { return "coded" }
func (codedErr) ErrorCode() string { return "SELF_CODED" }

func TestGetCode(t *testing.T) {
	assert.NoError(t, WithCode(nil, "CODE"))

	coded := WithCode(errors.New("lock busy"), "LOCK_BUSY")
	assert.Equal(t, "[LOCK_BUSY] lock busy", coded.Error())
	assert.Equal(t, "LOCK_BUSY", GetCode(coded))

	// 包装后依然可以取出错误码
	assert.Equal(t, "LOCK_BUSY", GetCode(Wrap(coded, "acquire")))

	// 实现 Coder 的错误类型
	assert.Equal(t, "SELF_CODED", GetCode(Wrap(codedErr{}, "outer")))

	assert.Empty(t, GetCode(errors.New("plain")))
	assert.Empty(t, GetCode(nil))
}

func TestMust(t *testing.T) {
	assert.Equal(t, 42, Must(42, nil))
	assert.Panics(t, func() { Must(0, errors.New("boom")) })
}

func TestCombine(t *testing.T) {
	assert.NoError(t, Combine(nil, nil))

	e1 := errors.New("first")
	assert.Same(t, e1, Combine(nil, e1))

	e2 := errors.New("second")
	combined := Combine(e1, nil, e2)
	require.Error(t, combined)
	assert.Equal(t, "first (and 1 more errors)", combined.Error())
	assert.ErrorIs(t, combined, e1)
	assert.ErrorIs(t, combined, e2)
}
