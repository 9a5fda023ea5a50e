// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/failurelog"
	"github.com/AleutianAI/AleutianRelay/services/relay/prosthetic"
)

func newFailureEngine(t *testing.T) (*gin.Engine, *failurelog.Log) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	log := failurelog.NewLog(func() string { return root })

	r := gin.New()
	r.GET("/api/failures", HandleGetFailures(log))
	r.GET("/api/failures/patterns", HandleGetPatterns(log))
	r.POST("/api/failures/resolve", HandleResolveFailures(log))
	r.POST("/api/failures/clear", HandleClearOldFailures(log))
	return r, log
}

func seedFailure(t *testing.T, log *failurelog.Log, modelID, rawError string) datatypes.FailureEntry {
	t.Helper()
	entry, err := log.LogFailure(failurelog.LogParams{
		ModelID:  modelID,
		Category: datatypes.CategoryTool,
		RawError: rawError,
		Query:    "open the config file",
	})
	require.NoError(t, err)
	return entry
}

func TestHandleGetFailures(t *testing.T) {
	r, log := newFailureEngine(t)
	seedFailure(t, log, "qwen2.5:7b", "tool_not_called: answered in prose")
	seedFailure(t, log, "llama3.1:8b", "wrong tool selected")

	t.Run("lists all entries", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/failures", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Failures []datatypes.FailureEntry `json:"failures"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Len(t, body.Failures, 2)
	})

	t.Run("filters by model", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/failures?model_id=qwen2.5:7b", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Failures []datatypes.FailureEntry `json:"failures"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Failures, 1)
		assert.Equal(t, "qwen2.5:7b", body.Failures[0].ModelID)
	})

	t.Run("rejects a malformed resolved flag", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/failures?resolved=maybe", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects a malformed since", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/failures?since=yesterday", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleGetPatterns(t *testing.T) {
	r, log := newFailureEngine(t)
	for i := 0; i < 4; i++ {
		seedFailure(t, log, "qwen2.5:7b", "tool_not_called: answered in prose")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/failures/patterns?threshold=3", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Patterns []datatypes.FailurePattern `json:"patterns"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Patterns, 1)
	assert.Equal(t, "TOOL_SUPPRESSION", body.Patterns[0].ID)
	assert.Equal(t, 4, body.Patterns[0].Count)
}

func TestHandleResolveFailures(t *testing.T) {
	r, log := newFailureEngine(t)
	entry := seedFailure(t, log, "qwen2.5:7b", "tool_not_called")

	t.Run("marks entries resolved", func(t *testing.T) {
		body := fmt.Sprintf(`{"ids": [%d], "prosthetic_id": "TOOL_SUPPRESSION"}`, entry.ID)
		req := httptest.NewRequest(http.MethodPost, "/api/failures/resolve", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"resolved":1`)
	})

	t.Run("rejects a body without ids", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/failures/resolve", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleClearOldFailures(t *testing.T) {
	r, _ := newFailureEngine(t)

	t.Run("rejects negative days", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/failures/clear?days=-1", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("fresh entries survive the default window", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/failures/clear", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"removed":0`)
	})
}

func TestProstheticHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := prosthetic.NewStore(t.TempDir())

	r := gin.New()
	r.GET("/api/prosthetics/:modelId", HandleGetProsthetic(store))
	r.PUT("/api/prosthetics/:modelId", HandlePutProsthetic(store))
	r.DELETE("/api/prosthetics/:modelId", HandleDeleteProsthetic(store))

	t.Run("missing prosthetic is 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/prosthetics/qwen2.5:7b", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("put then get round trips", func(t *testing.T) {
		body := `{"text": "Only call a tool when needed.", "level": 2}`
		req := httptest.NewRequest(http.MethodPut, "/api/prosthetics/qwen2.5:7b", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/prosthetics/qwen2.5:7b", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var p prosthetic.Prosthetic
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
		assert.Equal(t, 2, p.Level)
		assert.Equal(t, "qwen2.5:7b", p.ModelID)
	})

	t.Run("rejects an out-of-range level", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/prosthetics/m", strings.NewReader(`{"text": "x", "level": 9}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delete removes the fragment", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/prosthetics/qwen2.5:7b", nil))
		require.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/prosthetics/qwen2.5:7b", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
