// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianRelay/services/relay/compress"
	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleMCPRestart acknowledges an IDE's restart request. Tool servers
// are owned by the IDE side; the relay only needs to not 404 here.
func HandleMCPRestart(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "noop"})
}

// CompressRequest runs one transcript compression.
type CompressRequest struct {
	Messages          []datatypes.Message `json:"messages" binding:"required"`
	Mode              string              `json:"mode"`
	PreserveLastN     int                 `json:"preserve_last_n"`
	PreserveToolCalls *bool               `json:"preserve_tool_calls"`
	MaxSummaryLength  int                 `json:"max_summary_length"`
}

// HandleCompress compresses a transcript and returns the result with
// per-message scores and stats.
func HandleCompress() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CompressRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		result := compress.Compress(req.Messages, compress.Options{
			Mode:              req.Mode,
			PreserveLastN:     req.PreserveLastN,
			PreserveToolCalls: req.PreserveToolCalls,
			MaxSummaryLength:  req.MaxSummaryLength,
		})
		c.JSON(http.StatusOK, result)
	}
}
