package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestFromContext(t *testing.T) {
	l := zaptest.NewLogger(t)
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))

	assert.Same(t, zap.L(), FromContext(context.Background()))
	assert.Equal(t, context.Background(), WithContext(context.Background(), nil))
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := t.TempDir() + "/logs/app.log"
	t.Setenv("LOG_FILE", path)

	l, err := NewLogger("orders", "test")
	assert.NoError(t, err)
	l.Info("hello")
	_ = l.Sync()
	assert.FileExists(t, path)
}
