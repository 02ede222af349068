package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func localEnv(overrides map[string]string) map[string]string {
	environ := map[string]string{
		"OMS_HTTP_ADDR":    "127.0.0.1:0",
		"OMS_GRPC_ADDR":    "127.0.0.1:0",
		"OMS_METRICS_ADDR": "127.0.0.1:0",
		"OMS_LOG_LEVEL":    "error",
	}
	for k, v := range overrides {
		environ[k] = v
	}
	return environ
}

func TestRun_InvalidConfig(t *testing.T) {
	testCases := []struct {
		name    string
		environ map[string]string
		wantErr string
	}{
		{name: "unknown storage driver", environ: localEnv(map[string]string{"OMS_STORAGE_DRIVER": "sqlite"}), wantErr: "unsupported storage driver"},
		{name: "bad duration", environ: localEnv(map[string]string{"OMS_SHUTDOWN_TIMEOUT": "later"}), wantErr: "parse config"},
		{name: "redis backend without url", environ: localEnv(map[string]string{"OMS_IDEMPOTENCY_BACKEND": "redis"}), wantErr: "OMS_REDIS_URL"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := run(context.Background(), tc.environ)
			require.Error(t, err)
			require.Contains(t, err.Error(), "некорректная конфигурация")
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRun_StopsCleanlyOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, localEnv(map[string]string{"OMS_SHUTDOWN_TIMEOUT": "2s"}))
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after context cancellation")
	}
}
