// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianRelay/services/relay/combo"
	"github.com/AleutianAI/AleutianRelay/services/relay/failurelog"
	"github.com/AleutianAI/AleutianRelay/services/relay/handlers"
	"github.com/AleutianAI/AleutianRelay/services/relay/idemap"
	"github.com/AleutianAI/AleutianRelay/services/relay/probe"
	"github.com/AleutianAI/AleutianRelay/services/relay/prosthetic"
	"github.com/AleutianAI/AleutianRelay/services/relay/provider"
	"github.com/AleutianAI/AleutianRelay/services/relay/registry"
	"github.com/AleutianAI/AleutianRelay/services/relay/router"
	"github.com/AleutianAI/AleutianRelay/services/relay/teams"
	"github.com/AleutianAI/AleutianRelay/services/relay/workspace"
	"github.com/AleutianAI/AleutianRelay/services/relay/ws"
)

// Deps carries everything the route table wires together.
type Deps struct {
	Router      *router.Router
	Providers   *provider.Registry
	Local       *provider.LocalClient
	Profiles    *registry.Registry
	Harness     *probe.Harness
	ComboRunner *handlers.ComboRunner
	ComboStore  *combo.Store
	Failures    *failurelog.Log
	Prosthetics *prosthetic.Store
	Teams       *teams.Store
	Workspace   *workspace.Manager
	Mapper      *idemap.Mapper
	Hub         *ws.Hub
}

// SetupRoutes registers every relay endpoint.
func SetupRoutes(engine *gin.Engine, d Deps) {
	engine.GET("/health", handlers.HealthCheck)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws", handlers.HandleWebSocket(d.Hub))

	// OpenAI-compatible surface. IDE clients hit either path depending
	// on how their base URL is configured.
	chat := handlers.HandleChatCompletions(d.Router, d.Mapper, d.Profiles, d.Hub)
	engine.POST("/chat/completions", chat)
	engine.POST("/v1/chat/completions", chat)

	api := engine.Group("/api")
	{
		api.POST("/mcp/restart", handlers.HandleMCPRestart)
		api.POST("/compress", handlers.HandleCompress())

		tooly := api.Group("/tooly")
		{
			tooly.GET("/models", handlers.HandleListModels(d.Local, d.Profiles))
			tooly.POST("/test", handlers.HandleRunProbe(d.Harness, d.Profiles))
			tooly.POST("/context-test", handlers.HandleContextTest(d.Harness, d.Profiles))
			tooly.GET("/profiles", handlers.HandleGetProfiles(d.Profiles))
			tooly.DELETE("/profiles/:modelId", handlers.HandleDeleteProfile(d.Profiles))
			// Dashboard clients post to /combo-test/run; /combo-test stays
			// for older scripts.
			tooly.POST("/combo-test", handlers.HandleComboRun(d.ComboRunner))
			tooly.POST("/combo-test/run", handlers.HandleComboRun(d.ComboRunner))
			tooly.POST("/combo-test/stop", handlers.HandleComboStop(d.ComboRunner))
			tooly.POST("/combo-test/context-test", handlers.HandleComboContextTest(d.Harness, d.Profiles))
			tooly.GET("/combo-results", handlers.HandleComboResults(d.ComboStore))
			tooly.GET("/pairing", handlers.HandlePairingRecommend(d.Profiles))
		}

		routerGroup := api.Group("/router")
		{
			routerGroup.GET("/config", handlers.HandleGetRouterConfig(d.Router))
			routerGroup.POST("/config", handlers.HandleSetRouterConfig(d.Router))
			routerGroup.POST("/autoselect", handlers.HandleAutoSelect(d.Router, d.Profiles))
		}

		failures := api.Group("/failures")
		{
			failures.GET("", handlers.HandleGetFailures(d.Failures))
			failures.GET("/patterns", handlers.HandleGetPatterns(d.Failures))
			failures.POST("/resolve", handlers.HandleResolveFailures(d.Failures))
			failures.POST("/clear", handlers.HandleClearOldFailures(d.Failures))
			failures.DELETE("/model/:modelId", handlers.HandleClearModelFailures(d.Failures))
		}

		prosthetics := api.Group("/prosthetics")
		{
			prosthetics.GET("/:modelId", handlers.HandleGetProsthetic(d.Prosthetics))
			prosthetics.PUT("/:modelId", handlers.HandlePutProsthetic(d.Prosthetics))
			prosthetics.DELETE("/:modelId", handlers.HandleDeleteProsthetic(d.Prosthetics))
		}

		teamsGroup := api.Group("/teams")
		{
			teamsGroup.GET("", handlers.HandleListTeams(d.Teams))
			teamsGroup.GET("/active", handlers.HandleActiveTeam(d.Teams))
			teamsGroup.POST("", handlers.HandleCreateTeam(d.Teams))
			teamsGroup.PUT("/:teamId", handlers.HandleUpdateTeam(d.Teams))
			teamsGroup.DELETE("/:teamId", handlers.HandleDeleteTeam(d.Teams))
			teamsGroup.POST("/:teamId/activate", handlers.HandleActivateTeam(d.Teams, d.Router))
		}

		workspaceGroup := api.Group("/workspace")
		{
			workspaceGroup.GET("", handlers.HandleGetWorkspace(d.Workspace))
			workspaceGroup.GET("/current", handlers.HandleGetWorkspace(d.Workspace))
			workspaceGroup.GET("/safe-mode", handlers.HandleSafeMode(d.Workspace))
			workspaceGroup.POST("/switch", handlers.HandleSwitchWorkspace(d.Workspace, d.Hub))
			workspaceGroup.GET("/recent", handlers.HandleRecentWorkspaces(d.Workspace))
		}
	}
}
