package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port
}

func TestRun_CancellationIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			return fmt.Errorf("ctx err: %w", ctx.Err())
		})
	}()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
}

func TestRun_FailureStopsEverything(t *testing.T) {
	boom := errors.New("boom")

	err := run(context.Background(),
		func(ctx context.Context) error {
			<-ctx.Done()
			return fmt.Errorf("ctx err: %w", ctx.Err())
		},
		func(context.Context) error {
			return boom
		},
	)

	assert.ErrorIs(t, err, boom)
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer

	cmd := (&command{}).Cmd()
	cmd.AddCommand(versionCmd)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "dev dev\n", out.String())
}

func TestRootCommand_InvalidConfigIsStartupError(t *testing.T) {
	t.Setenv("SCRAPE_INTERVAL", "0")

	cmd := (&command{}).Cmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()

	var startupErr *StartupError
	require.True(t, errors.As(err, &startupErr))
	assert.Equal(t, "config", startupErr.Op)
}

func TestRootCommand_BoundPortIsStartupError(t *testing.T) {
	taken, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer taken.Close()

	cmd := (&command{}).Cmd()
	cmd.SetArgs([]string{
		"--metrics-port", fmt.Sprint(taken.Addr().(*net.TCPAddr).Port),
	})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err = cmd.Execute()

	var startupErr *StartupError
	require.True(t, errors.As(err, &startupErr))
	assert.Equal(t, "exporter listen", startupErr.Op)
}

func TestRootCommand_ExportsQueues(t *testing.T) {
	rabbit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "monitoring" || pass != "s3cret" || r.URL.Path != "/api/queues" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		_, _ = io.WriteString(w,
			`[{"vhost":"/","name":"q1","messages":5,"messages_ready":3,"messages_unacknowledged":2}]`)
	}))
	defer rabbit.Close()

	rabbitURL, err := url.Parse(rabbit.URL)
	require.NoError(t, err)

	metricsPort := freePort(t)

	cmd := (&command{}).Cmd()
	cmd.SetArgs([]string{
		"--rabbitmq-host", rabbitURL.Hostname(),
		"--rabbitmq-port", rabbitURL.Port(),
		"--rabbitmq-user", "monitoring",
		"--rabbitmq-password", "s3cret",
		"--metrics-port", fmt.Sprint(metricsPort),
		"--scrape-interval", "60",
		"--log-level", "error",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(ctx)
	}()

	metricsURL := fmt.Sprintf("http://127.0.0.1:%d/metrics", metricsPort)
	expected := fmt.Sprintf(
		`rabbitmq_individual_queue_messages{host="%s",name="q1",vhost="/"} 5`,
		rabbitURL.Hostname(),
	)

	client := &http.Client{Timeout: time.Second}

	require.Eventually(t, func() bool {
		resp, err := client.Get(metricsURL)
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}

		return strings.Contains(string(body), expected)
	}, 10*time.Second, 50*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("command did not stop")
	}
}

func TestRootCommand_RootTelemetryPathDoesNotPanic(t *testing.T) {
	t.Setenv("TELEMETRY_PATH", "/")

	taken, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer taken.Close()

	cmd := (&command{}).Cmd()
	cmd.SetArgs([]string{
		"--metrics-port", fmt.Sprint(taken.Addr().(*net.TCPAddr).Port),
	})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	require.NotPanics(t, func() {
		err = cmd.Execute()
	})

	var startupErr *StartupError
	require.True(t, errors.As(err, &startupErr))
	assert.Equal(t, "exporter listen", startupErr.Op)
}
