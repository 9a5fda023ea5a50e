// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to the hosted OpenAI API.
type OpenAIClient struct {
	sdk *openai.Client
}

// NewOpenAIClient reads OPENAI_API_KEY from the environment, falling back
// to the conventional container secret path.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from container secrets")
		} else {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	return &OpenAIClient{sdk: openai.NewClient(apiKey)}, nil
}

// Name implements Client.
func (o *OpenAIClient) Name() string { return ProviderOpenAI }

// Call implements Client.
func (o *OpenAIClient) Call(ctx context.Context, opts CallOptions) (*Response, error) {
	return doCall(ctx, o.sdk, opts)
}

// AzureClient talks to an Azure-style OpenAI deployment. The model id in
// CallOptions names the deployment.
type AzureClient struct {
	sdk *openai.Client
}

// NewAzureClient reads AZURE_OPENAI_KEY and AZURE_OPENAI_ENDPOINT.
func NewAzureClient() (*AzureClient, error) {
	apiKey := os.Getenv("AZURE_OPENAI_KEY")
	endpoint := os.Getenv("AZURE_OPENAI_ENDPOINT")
	if apiKey == "" || endpoint == "" {
		return nil, fmt.Errorf("AZURE_OPENAI_KEY and AZURE_OPENAI_ENDPOINT must both be set")
	}
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	return &AzureClient{sdk: openai.NewClientWithConfig(cfg)}, nil
}

// Name implements Client.
func (a *AzureClient) Name() string { return ProviderAzure }

// Call implements Client.
func (a *AzureClient) Call(ctx context.Context, opts CallOptions) (*Response, error) {
	return doCall(ctx, a.sdk, opts)
}

// Registry holds one constructed client per provider, reused across
// turns. Missing hosted credentials leave those slots nil; resolving a
// nil slot is a configuration error surfaced at the request boundary.
type Registry struct {
	clients map[string]Client
}

// NewRegistry constructs the local client (always) plus any hosted
// clients whose credentials are present.
func NewRegistry() (*Registry, error) {
	reg := &Registry{clients: make(map[string]Client)}

	local, err := NewLocalClient()
	if err != nil {
		return nil, fmt.Errorf("init local provider: %w", err)
	}
	reg.clients[ProviderLocal] = local

	if oa, err := NewOpenAIClient(); err == nil {
		reg.clients[ProviderOpenAI] = oa
	} else {
		slog.Info("OpenAI provider not configured", "reason", err.Error())
	}
	if az, err := NewAzureClient(); err == nil {
		reg.clients[ProviderAzure] = az
	} else {
		slog.Info("Azure provider not configured", "reason", err.Error())
	}

	return reg, nil
}

// RegistryWith builds a registry over pre-constructed clients, keyed by
// their Name. Tests substitute scripted clients through it.
func RegistryWith(clients ...Client) *Registry {
	reg := &Registry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		reg.clients[c.Name()] = c
	}
	return reg
}

// Resolve returns the client for name, defaulting to local when name is
// empty.
func (r *Registry) Resolve(name string) (Client, error) {
	if name == "" {
		name = ProviderLocal
	}
	c, ok := r.clients[name]
	if !ok || c == nil {
		return nil, fmt.Errorf("unknown or unconfigured provider %q", name)
	}
	return c, nil
}

// Local returns the local client for components that only ever talk to
// the local host (probe sweep, model discovery).
func (r *Registry) Local() *LocalClient {
	return r.clients[ProviderLocal].(*LocalClient)
}
