package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/statekit/pkg/httpserver"
	"github.com/dmitrymomot/statekit/pkg/queue"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

const definition = "testdata/document.yaml"

func testConfig() Config {
	return Config{
		Store:            backendMemory,
		Locks:            backendMemory,
		Queue:            backendMemory,
		LogLevel:         "error",
		LogFormat:        "text",
		MetricsNamespace: "statekit",
		IDColumn:         "id",
		Machine:          statemachine.Config{LockTTL: time.Minute},
		Tasks: queue.Config{
			Queue:              queue.DefaultQueueName,
			KeyPrefix:          "test:queue:",
			MaxRetries:         3,
			PollInterval:       10 * time.Millisecond,
			LockTimeout:        time.Minute,
			MaxConcurrentTasks: 1,
		},
	}
}

func newTestApp(t *testing.T, cfg Config, opts ...appOption) *app {
	t.Helper()
	a, err := newApp(context.Background(), cfg, slog.New(slog.DiscardHandler), definition, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func draft(id string) target {
	return target{EntityType: "document", EntityID: id, State: map[string]string{"status": "draft"}}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "postgres store", mutate: func(c *Config) { c.Store = backendPostgres }},
		{name: "redis backends", mutate: func(c *Config) { c.Locks, c.Queue = backendRedis, backendRedis }},
		{name: "unknown store", mutate: func(c *Config) { c.Store = "sqlite" }, wantErr: "STATEKIT_STORE"},
		{name: "redis store", mutate: func(c *Config) { c.Store = backendRedis }, wantErr: "STATEKIT_STORE"},
		{name: "mongo locks", mutate: func(c *Config) { c.Locks = backendMongo }, wantErr: "STATEKIT_LOCKS"},
		{name: "postgres queue", mutate: func(c *Config) { c.Queue = backendPostgres }, wantErr: "STATEKIT_QUEUE"},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "STATEKIT_LOG_LEVEL"},
		{name: "bad format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "STATEKIT_LOG_FORMAT"},
		{name: "bad table pair", mutate: func(c *Config) { c.Tables = []string{"document"} }, wantErr: "STATEKIT_PG_TABLES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigTables(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Tables = []string{"document=documents", " invoice = invoices"}
	tables, err := cfg.tables()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"document": "documents", "invoice": "invoices"}, tables)
}

func TestConfigNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cfg := testConfig()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"

	cfg.newLogger(&buf).Debug("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"component":"statekit"`)
}

func TestRunValidate(t *testing.T) {
	t.Parallel()

	t.Run("prints the process tree", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		require.NoError(t, runValidate(&out, definition))

		got := out.String()
		assert.Contains(t, got, "process document (field status)\n")
		assert.Contains(t, got, "  Transition: publish to published from [submitted] in_progress=publishing failed=failed next=archive\n")
		assert.Contains(t, got, "  Action: touch from [draft, submitted, published]\n")
		assert.Contains(t, got, "  process document-archive (field status)\n")
		assert.Contains(t, got, "    Transition: archive to archived from [published]\n")
		assert.Contains(t, got, "is valid")
	})

	t.Run("reports unknown commands", func(t *testing.T) {
		t.Parallel()

		err := runValidate(io.Discard, "testdata/invalid.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does_not_exist")
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		assert.Error(t, runValidate(io.Discard, "testdata/missing.yaml"))
	})
}

func TestRunActions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("lists actions for the current state", func(t *testing.T) {
		t.Parallel()

		a := newTestApp(t, testConfig())
		tg := draft("1")
		tg.Caller = "alice"

		var out bytes.Buffer
		require.NoError(t, runActions(ctx, &out, a, tg))
		assert.Equal(t, "document: break, submit, touch\n", out.String())
	})

	t.Run("nested process actions", func(t *testing.T) {
		t.Parallel()

		a := newTestApp(t, testConfig())
		tg := target{EntityType: "document", EntityID: "2", Process: "document", State: map[string]string{"status": "published"}}

		var out bytes.Buffer
		require.NoError(t, runActions(ctx, &out, a, tg))
		assert.Equal(t, "document: archive, touch\n", out.String())
	})

	t.Run("no actions", func(t *testing.T) {
		t.Parallel()

		a := newTestApp(t, testConfig())
		tg := target{EntityType: "document", EntityID: "3", State: map[string]string{"status": "archived"}}

		var out bytes.Buffer
		require.NoError(t, runActions(ctx, &out, a, tg))
		assert.Equal(t, "document: -\n", out.String())
	})

	t.Run("unknown process", func(t *testing.T) {
		t.Parallel()

		a := newTestApp(t, testConfig())
		tg := draft("4")
		tg.Process = "invoice"

		err := runActions(ctx, io.Discard, a, tg)
		assert.ErrorIs(t, err, statemachine.ErrProcessNotRegistered)
	})
}

func TestRunPerform(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("foreground transition", func(t *testing.T) {
		t.Parallel()

		a := newTestApp(t, testConfig())
		req := performRequest{target: draft("1"), Action: "submit"}
		req.Caller = "alice"

		var out bytes.Buffer
		require.NoError(t, runPerform(ctx, &out, a, req))
		assert.Contains(t, out.String(), "tr_id=")
		assert.Contains(t, out.String(), "status=submitted\n")
	})

	t.Run("next transition chains into nested process", func(t *testing.T) {
		t.Parallel()

		a := newTestApp(t, testConfig())
		req := performRequest{
			target: target{EntityType: "document", EntityID: "2", State: map[string]string{"status": "submitted"}},
			Action: "publish",
		}

		var out bytes.Buffer
		require.NoError(t, runPerform(ctx, &out, a, req))
		assert.Contains(t, out.String(), "status=archived\n")

		fields, ok := a.memory.Fields(req.ref())
		require.True(t, ok)
		assert.Equal(t, "archived", fields["status"])
	})

	t.Run("failed side effect moves to failed state", func(t *testing.T) {
		t.Parallel()

		a := newTestApp(t, testConfig())
		req := performRequest{target: draft("3"), Action: "break"}

		var out bytes.Buffer
		require.NoError(t, runPerform(ctx, &out, a, req))
		assert.Contains(t, out.String(), "status=failed\n")
	})

	t.Run("background transition drains the memory queue", func(t *testing.T) {
		t.Parallel()

		a := newTestApp(t, testConfig())
		req := performRequest{
			target:     target{EntityType: "document", EntityID: "4", State: map[string]string{"status": "submitted"}},
			Action:     "publish",
			Background: true,
		}

		var out bytes.Buffer
		require.NoError(t, runPerform(ctx, &out, a, req))
		assert.Contains(t, out.String(), "processed 1 queued task(s)\n")
		assert.Contains(t, out.String(), "status=archived\n")
	})

	t.Run("action with data", func(t *testing.T) {
		t.Parallel()

		a := newTestApp(t, testConfig())
		req := performRequest{target: draft("5"), Action: "touch", Data: map[string]string{"reason": "review"}}

		var out bytes.Buffer
		require.NoError(t, runPerform(ctx, &out, a, req))
		assert.Contains(t, out.String(), "status=draft\n")
	})

	t.Run("undeclared action", func(t *testing.T) {
		t.Parallel()

		a := newTestApp(t, testConfig())
		req := performRequest{target: draft("6"), Action: "delete"}

		err := runPerform(ctx, io.Discard, a, req)
		assert.True(t, statemachine.IsNotAllowedError(err))
	})

	t.Run("action not available in current state", func(t *testing.T) {
		t.Parallel()

		a := newTestApp(t, testConfig())
		req := performRequest{target: draft("7"), Action: "archive"}

		err := runPerform(ctx, io.Discard, a, req)
		assert.True(t, statemachine.IsNotAllowedError(err))
	})
}

func TestRunWorker(t *testing.T) {
	t.Parallel()

	t.Run("requires the redis queue", func(t *testing.T) {
		t.Parallel()

		a := newTestApp(t, testConfig())
		err := runWorker(context.Background(), a)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "STATEKIT_QUEUE")
	})

	t.Run("resumes queued transitions and serves probes", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		cfg := testConfig()
		cfg.Locks = backendRedis
		cfg.Queue = backendRedis
		a := newTestApp(t, cfg, withRedisClient(client))

		req := performRequest{
			target:     target{EntityType: "document", EntityID: "1", State: map[string]string{"status": "submitted"}},
			Action:     "publish",
			Background: true,
		}
		var out bytes.Buffer
		require.NoError(t, runPerform(context.Background(), &out, a, req))
		assert.Contains(t, out.String(), "status=publishing\n")
		assert.NotContains(t, out.String(), "processed")

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() {
			done <- runWorker(ctx, a, httpserver.WithListener(ln), httpserver.WithShutdownTimeout(time.Second))
		}()

		require.Eventually(t, func() bool {
			fields, _ := a.memory.Fields(req.ref())
			return fields["status"] == "archived"
		}, 5*time.Second, 20*time.Millisecond)

		resp, err := http.Get("http://" + ln.Addr().String() + "/readyz")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, resp.Body.Close())

		resp, err = http.Get("http://" + ln.Addr().String() + "/metrics")
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		assert.Contains(t, string(body), "statekit_transition_started_total")

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
	})
}
