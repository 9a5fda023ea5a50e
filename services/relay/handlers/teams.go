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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/router"
	"github.com/AleutianAI/AleutianRelay/services/relay/teams"
)

// HandleListTeams lists the workspace's saved teams and which is active.
func HandleListTeams(store *teams.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := store.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		activeID := ""
		if active, ok := store.Active(); ok {
			activeID = active.ID
		}
		c.JSON(http.StatusOK, gin.H{"teams": all, "active_id": activeID})
	}
}

// HandleActiveTeam returns the active team alone, or 404 when none is
// set.
func HandleActiveTeam(store *teams.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		active, ok := store.Active()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active team"})
			return
		}
		c.JSON(http.StatusOK, active)
	}
}

// HandleCreateTeam saves a new team.
func HandleCreateTeam(store *teams.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var team datatypes.Team
		if err := c.BindJSON(&team); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		created, err := store.Create(team)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

// HandleUpdateTeam replaces a team's configuration.
func HandleUpdateTeam(store *teams.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var team datatypes.Team
		if err := c.BindJSON(&team); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		team.ID = c.Param("teamId")
		updated, err := store.Update(team)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// HandleDeleteTeam removes a team.
func HandleDeleteTeam(store *teams.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Delete(c.Param("teamId")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": c.Param("teamId")})
	}
}

// HandleActivateTeam marks a team active and applies it to the router.
func HandleActivateTeam(store *teams.Store, rt *router.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		team, err := store.Activate(c.Param("teamId"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}

		cfg := rt.Snapshot()
		cfg.MainModelID = team.MainModelID
		cfg.ExecutorModelID = team.ExecutorModelID
		cfg.EnableDualModel = team.EnableDualModel
		cfg.Provider = team.Provider
		if team.Temperature > 0 {
			cfg.Settings.Temperature = team.Temperature
		}
		rt.Configure(cfg)

		c.JSON(http.StatusOK, team)
	}
}
