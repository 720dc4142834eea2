package logutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopIfNil(t *testing.T) {
	assert.Same(t, Noop(), NoopIfNil(nil))

	l := slog.Default()
	assert.Same(t, l, NoopIfNil(l))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "***", Mask(""))
	assert.Equal(t, "***", Mask("12345678"))
	assert.Equal(t, "EAAB***wxyz", Mask("EAABcdefghijklmnopwxyz"))
}
