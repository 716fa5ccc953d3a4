/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLogger keeps every message for assertions.
type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) SetLevel(LogLevel) {}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, level+": "+msg)
}

func (l *recordingLogger) Debug(msg string, _ ...interface{}) { l.record("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...interface{})  { l.record("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...interface{})  { l.record("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...interface{}) { l.record("error", msg) }

func (l *recordingLogger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

func sqliteConfig() *ConnectionConfig {
	cfg := DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg.MaxOpenConns = 1
	cfg.HealthCheckInterval = 0
	return cfg
}

func TestEnvPrefix(t *testing.T) {
	assert.Equal(t, "DB_MAIN_", EnvPrefix("main"))
	assert.Equal(t, "DB_AUDIT_LOG_", EnvPrefix("audit-log"))
	assert.Equal(t, "DB_BLOG2_", EnvPrefix("Blog2"))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DB_MAIN_TYPE", "mysql")
	t.Setenv("DB_MAIN_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_MAIN_CONN_MAX_LIFETIME", "90s")
	t.Setenv("DB_OTHER_HOST", "elsewhere")

	cfg := DefaultConnectionConfig()
	cfg.Host = "localhost"
	require.NoError(t, ApplyEnv("main", cfg))
	assert.Equal(t, "mysql", cfg.Type)
	assert.Equal(t, 7, cfg.MaxOpenConns)
	assert.Equal(t, 90*time.Second, cfg.ConnMaxLifetime)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 10, cfg.MaxIdleConns)

	t.Setenv("DB_MAIN_PORT", "not-a-port")
	assert.Error(t, ApplyEnv("main", cfg))
}

func TestFactory_CreateFromConfig(t *testing.T) {
	f := NewDatabaseFactory()

	_, err := f.CreateFromConfig("main", nil)
	assert.Error(t, err)

	bad := DefaultConnectionConfig()
	bad.Type = "oracle"
	_, err = f.CreateFromConfig("main", bad)
	assert.ErrorContains(t, err, "unsupported database type")

	_, err = f.CreateFromConfig("main", sqliteConfig())
	require.NoError(t, err)
	_, err = f.CreateFromConfig("main", sqliteConfig())
	assert.ErrorContains(t, err, "already exists")

	assert.Nil(t, f.GetDB("main"))
	require.NoError(t, f.InitializeDatabase(t.Context()))
	t.Cleanup(func() { _ = f.Close() })
	assert.NotNil(t, f.GetDB("main"))
	assert.Equal(t, []string{"main"}, f.Names())
}

func TestFactory_HealthAndStats(t *testing.T) {
	f := NewDatabaseFactory()
	log := &recordingLogger{}
	_, err := f.CreateFromConfig("b", sqliteConfig())
	require.NoError(t, err)
	_, err = f.CreateFromConfig("a", sqliteConfig())
	require.NoError(t, err)
	f.SetLogger(log)
	require.NoError(t, f.InitializeDatabase(t.Context()))

	status := f.GetHealthStatus(t.Context(), "a")
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.Equal(t, 1, status.MaxOpenConns)

	missing := f.GetHealthStatus(t.Context(), "zzz")
	assert.False(t, missing.Healthy)
	assert.Contains(t, missing.LastError, `"zzz"`)

	assert.Equal(t, 1, f.GetStats("b").MaxOpenConns)
	assert.Equal(t, &DBStats{}, f.GetStats("zzz"))

	require.NoError(t, f.Close())
	after := f.GetHealthStatus(t.Context(), "a")
	assert.False(t, after.Healthy)
	assert.Equal(t, "Database not initialized", after.LastError)
	assert.Contains(t, log.Messages(), "info: Database connection closed")
}

func TestManager_Lifecycle(t *testing.T) {
	m := NewDatabaseManager("life", sqliteConfig())
	assert.Error(t, m.Ping(t.Context()))

	require.NoError(t, m.Connect(t.Context()))
	require.NoError(t, m.Connect(t.Context()))
	require.NoError(t, m.Ping(t.Context()))
	require.NotNil(t, m.GetSQLDB())

	require.NoError(t, m.Reconnect(t.Context()))
	require.NoError(t, m.Ping(t.Context()))

	require.NoError(t, m.Disconnect())
	require.NoError(t, m.Disconnect())
	assert.Nil(t, m.GetDB())
}

func TestManager_FromDB(t *testing.T) {
	m := NewDatabaseManager("src", sqliteConfig())
	require.NoError(t, m.Connect(t.Context()))

	wrapped := NewManagerFromDB("wrapped", m.GetDB())
	require.NoError(t, wrapped.Connect(t.Context()))
	assert.True(t, wrapped.HealthCheck(t.Context()).Healthy)

	f := NewDatabaseFactory()
	require.NoError(t, f.Register(wrapped))
	assert.Error(t, f.Register(wrapped))
	assert.Same(t, m.GetDB(), f.GetDB("wrapped"))
	require.NoError(t, f.Close())
}

func TestManager_ConnectFailure(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.Type = "postgres"
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	cfg.DBName = "none"
	cfg.SSLMode = "disable"
	cfg.ConnectTimeout = 2 * time.Second

	m := NewDatabaseManager("down", cfg)
	err := m.Connect(t.Context())
	require.Error(t, err)
	is, kind := IsSqlError(err)
	assert.True(t, is)
	assert.Equal(t, ConnectionErr, kind)
	assert.False(t, m.HealthCheck(t.Context()).Connected)
}
