// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// Team is a saved main+executor configuration a user can activate. The
// active team becomes the router's configuration snapshot for new turns.
type Team struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	MainModelID     string    `json:"main_model_id"`
	ExecutorModelID string    `json:"executor_model_id"`
	Provider        string    `json:"provider"`
	EnableDualModel bool      `json:"enable_dual_model"`
	Temperature     float32   `json:"temperature"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
