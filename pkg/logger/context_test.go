package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestContextRoundTrip(t *testing.T) {
	l := zap.NewNop().With(zap.String("request_id", "test"))
	ctx := WithContext(context.Background(), l)

	if got := FromContext(ctx); got != l {
		t.Fatalf("FromContext did not return the stored logger")
	}
	if got := FromContext(context.Background()); got == nil {
		t.Fatalf("FromContext on a bare context returned nil")
	}
}
