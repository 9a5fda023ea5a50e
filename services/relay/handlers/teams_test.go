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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/router"
	"github.com/AleutianAI/AleutianRelay/services/relay/teams"
)

func newTeamEngine(t *testing.T) (*gin.Engine, *teams.Store, *router.Router) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	store := teams.NewStore(func() string { return root })
	rt := router.New(nil, nil, nil, nil, router.Config{})

	r := gin.New()
	r.GET("/api/teams", HandleListTeams(store))
	r.GET("/api/teams/active", HandleActiveTeam(store))
	r.POST("/api/teams", HandleCreateTeam(store))
	r.PUT("/api/teams/:teamId", HandleUpdateTeam(store))
	r.DELETE("/api/teams/:teamId", HandleDeleteTeam(store))
	r.POST("/api/teams/:teamId/activate", HandleActivateTeam(store, rt))
	return r, store, rt
}

func TestTeamCRUDOverHTTP(t *testing.T) {
	r, _, _ := newTeamEngine(t)

	body := `{"name": "local pair", "main_model_id": "qwen2.5-coder:14b", "executor_model_id": "llama3.1:8b", "enable_dual_model": true}`
	req := httptest.NewRequest(http.MethodPost, "/api/teams", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created datatypes.Team
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	t.Run("list includes the team", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/teams", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var listed struct {
			Teams    []datatypes.Team `json:"teams"`
			ActiveID string           `json:"active_id"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
		require.Len(t, listed.Teams, 1)
		assert.Empty(t, listed.ActiveID)
	})

	t.Run("update renames", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/teams/"+created.ID,
			strings.NewReader(`{"name": "renamed", "main_model_id": "qwen2.5-coder:14b"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var updated datatypes.Team
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
		assert.Equal(t, "renamed", updated.Name)
	})

	t.Run("delete then list is empty", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/teams/"+created.ID, nil))
		require.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/teams", nil))
		var listed struct {
			Teams []datatypes.Team `json:"teams"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
		assert.Empty(t, listed.Teams)
	})
}

func TestTeamHandlerErrors(t *testing.T) {
	r, _, _ := newTeamEngine(t)

	t.Run("nameless team is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/teams", strings.NewReader(`{"main_model_id": "m"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("update of an unknown team is 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/teams/no-such-id", strings.NewReader(`{"name": "x"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("activate of an unknown team is 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/teams/no-such-id/activate", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestActiveTeamEndpoint(t *testing.T) {
	r, store, _ := newTeamEngine(t)

	t.Run("404 before any activation", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/teams/active", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	team, err := store.Create(datatypes.Team{Name: "pair", MainModelID: "qwen2.5-coder:14b"})
	require.NoError(t, err)

	t.Run("returns the activated team", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/teams/"+team.ID+"/activate", nil))
		require.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/teams/active", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var active datatypes.Team
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &active))
		assert.Equal(t, team.ID, active.ID)
	})
}

func TestActivateTeamReconfiguresRouter(t *testing.T) {
	r, store, rt := newTeamEngine(t)

	team, err := store.Create(datatypes.Team{
		Name:            "pair",
		MainModelID:     "qwen2.5-coder:14b",
		ExecutorModelID: "llama3.1:8b",
		EnableDualModel: true,
		Temperature:     0.4,
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/teams/"+team.ID+"/activate", nil))
	require.Equal(t, http.StatusOK, w.Code)

	cfg := rt.Snapshot()
	assert.Equal(t, "qwen2.5-coder:14b", cfg.MainModelID)
	assert.Equal(t, "llama3.1:8b", cfg.ExecutorModelID)
	assert.True(t, cfg.EnableDualModel)
	assert.Equal(t, float32(0.4), cfg.Settings.Temperature)

	active, ok := store.Active()
	require.True(t, ok)
	assert.Equal(t, team.ID, active.ID)
}
