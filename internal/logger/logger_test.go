package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")
	defer InitWithWriter(&buf, "DEBUG", "text")

	Info("should not appear")
	require.Empty(t, buf.String())

	Warn("should appear")
	require.Contains(t, buf.String(), "should appear")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "json")
	defer InitWithWriter(&buf, "DEBUG", "text")

	Info("hello", "k", "v")
	require.True(t, strings.Contains(buf.String(), `"msg":"hello"`))
	require.True(t, strings.Contains(buf.String(), `"k":"v"`))
}

func TestContextFieldsInjected(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "text")
	defer InitWithWriter(&buf, "DEBUG", "text")

	ctx := WithContext(context.Background(), &LogContext{TSIH: 7, Initiator: "iqn.test:init1"})
	InfoCtx(ctx, "logged in")

	out := buf.String()
	require.Contains(t, out, "tsih=7")
	require.Contains(t, out, "initiator=iqn.test:init1")
}
