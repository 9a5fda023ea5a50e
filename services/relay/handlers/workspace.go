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

	"github.com/AleutianAI/AleutianRelay/services/relay/workspace"
	"github.com/AleutianAI/AleutianRelay/services/relay/ws"
)

// HandleGetWorkspace returns the current workspace identity plus the
// safe-mode flag.
func HandleGetWorkspace(mgr *workspace.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := mgr.GetCurrent()
		c.JSON(http.StatusOK, gin.H{
			"path":      info.Path,
			"hash":      info.Hash,
			"safe_mode": mgr.SafeMode(),
		})
	}
}

// HandleSafeMode reports whether writes are held back because the
// workspace checkout carries uncommitted changes.
func HandleSafeMode(mgr *workspace.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"safe_mode": mgr.SafeMode()})
	}
}

// SwitchWorkspaceRequest selects a new workspace path.
type SwitchWorkspaceRequest struct {
	Path string `json:"path" binding:"required"`
}

// HandleSwitchWorkspace changes the active workspace. Per-workspace
// stores pick the new state root up lazily on their next operation.
func HandleSwitchWorkspace(mgr *workspace.Manager, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SwitchWorkspaceRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		info, err := mgr.Switch(req.Path)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if hub != nil {
			hub.Broadcast(ws.FrameWorkspaceSwitch, gin.H{"path": info.Path, "hash": info.Hash})
		}
		c.JSON(http.StatusOK, gin.H{"path": info.Path, "hash": info.Hash})
	}
}

// HandleRecentWorkspaces returns the MRU workspace list.
func HandleRecentWorkspaces(mgr *workspace.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"recent": mgr.Recent()})
	}
}
