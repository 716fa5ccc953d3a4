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

package utils

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel(" DEBUG "))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("verbose"))
}

func TestLoggerRegistry(t *testing.T) {
	l := NewLogger("REGISTRY_TEST")
	assert.True(t, SetLoggerLevel("REGISTRY_TEST", "error"))
	assert.Equal(t, logrus.ErrorLevel, l.GetLevel())
	assert.False(t, SetLoggerLevel("NO_SUCH_LOGGER", "error"))

	other := NewDiscardLogger()
	RegisterLogger("REGISTRY_TEST_2", other)
	SetAllLoggersLevel(logrus.WarnLevel)
	defer SetAllLoggersLevel(logrus.DebugLevel)
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
	assert.Equal(t, logrus.WarnLevel, other.GetLevel())
}

func TestConsoleFormatter(t *testing.T) {
	color.NoColor = true
	f := &ConsoleFormatter{LoggerName: "DATABASE_LAYER", NameWidth: 8}
	entry := logrus.NewEntry(NewDiscardLogger()).WithField("rows", 3)
	entry.Message = "Changes saved"
	entry.Level = logrus.InfoLevel
	entry.Time = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	out, err := f.Format(entry)
	require.NoError(t, err)
	line := string(out)
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "DATABASE")
	assert.NotContains(t, line, "DATABASE_LAYER")
	assert.Contains(t, line, "Changes saved rows=3")
}

func TestJSONLogFormatter(t *testing.T) {
	f := &JSONLogFormatter{LoggerName: "DATABASE"}
	entry := logrus.NewEntry(NewDiscardLogger()).WithField("error", errors.New("boom"))
	entry.Message = "Failed to save changes"
	entry.Level = logrus.ErrorLevel

	out, err := f.Format(entry)
	require.NoError(t, err)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &rec))
	assert.Equal(t, "error", rec["level"])
	assert.Equal(t, "DATABASE", rec["model"])
	assert.Equal(t, "Failed to save changes", rec["message"])
	assert.Equal(t, map[string]interface{}{"error": "boom"}, rec["fields"])
}

func TestElapsed(t *testing.T) {
	assert.True(t, strings.HasSuffix(Elapsed(time.Now()), "ms"))
}
