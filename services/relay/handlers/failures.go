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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianRelay/services/relay/failurelog"
	"github.com/AleutianAI/AleutianRelay/services/relay/prosthetic"
)

// HandleGetFailures lists journal entries filtered by query params:
// model_id, category, pattern_id, resolved, since (RFC3339), limit,
// offset.
func HandleGetFailures(log *failurelog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		filters := failurelog.Filters{
			ModelID:   c.Query("model_id"),
			Category:  c.Query("category"),
			PatternID: c.Query("pattern_id"),
		}
		if raw := c.Query("resolved"); raw != "" {
			resolved, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "resolved must be a boolean"})
				return
			}
			filters.Resolved = &resolved
		}
		if raw := c.Query("since"); raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
				return
			}
			filters.Since = since
		}
		filters.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
		filters.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

		entries, err := log.GetFailures(filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"failures": entries})
	}
}

// HandleGetPatterns lists observed failure patterns, optionally above a
// count threshold (?threshold=N).
func HandleGetPatterns(log *failurelog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		threshold, _ := strconv.Atoi(c.DefaultQuery("threshold", "0"))
		patterns, err := log.GetPatternsAboveThreshold(threshold)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"patterns": patterns})
	}
}

// ResolveRequest marks entries resolved by a prosthetic.
type ResolveRequest struct {
	IDs          []int64 `json:"ids" binding:"required"`
	ProstheticID string  `json:"prosthetic_id"`
}

// HandleResolveFailures marks the given entries resolved.
func HandleResolveFailures(log *failurelog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResolveRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		updated, err := log.MarkResolved(req.IDs, req.ProstheticID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"resolved": updated})
	}
}

// HandleClearOldFailures prunes resolved entries older than ?days=N
// (default 30).
func HandleClearOldFailures(log *failurelog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
		if err != nil || days < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a non-negative integer"})
			return
		}
		removed, err := log.ClearOld(days)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}

// HandleClearModelFailures removes every entry for one model.
func HandleClearModelFailures(log *failurelog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		removed, err := log.ClearForModel(c.Param("modelId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}

// HandleGetProsthetic returns one model's prompt fragment.
func HandleGetProsthetic(store *prosthetic.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := store.Get(c.Param("modelId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no prosthetic for model"})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// HandlePutProsthetic installs or replaces a model's prompt fragment.
func HandlePutProsthetic(store *prosthetic.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p prosthetic.Prosthetic
		if err := c.BindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		p.ModelID = c.Param("modelId")
		if err := store.Put(p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"model_id": p.ModelID})
	}
}

// HandleDeleteProsthetic removes a model's prompt fragment.
func HandleDeleteProsthetic(store *prosthetic.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Delete(c.Param("modelId")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": c.Param("modelId")})
	}
}
