// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// MODEL DESCRIPTOR
// =============================================================================

// ModelDescriptor describes an AI model offered by the backend catalog.
// The catalog is owned by the marketplace service; this client consumes it
// read-only and records only the descriptor ID on conversations.
type ModelDescriptor struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`

	// Pricing per million tokens, USD. Display formatting is the
	// presentation layer's concern.
	InputPrice  float64 `json:"input_price"`
	OutputPrice float64 `json:"output_price"`

	// Capabilities
	ContextWindow int  `json:"context_window"`
	SupportsFiles bool `json:"supports_files"`
}

// Catalog is a read-only view over the model descriptors fetched from the
// backend.
type Catalog struct {
	models []ModelDescriptor
	byID   map[string]int
}

// NewCatalog builds a catalog from fetched descriptors.
func NewCatalog(models []ModelDescriptor) *Catalog {
	byID := make(map[string]int, len(models))
	for i, m := range models {
		byID[m.ID] = i
	}
	return &Catalog{models: models, byID: byID}
}

// ByID returns the descriptor for an ID, or nil if unknown.
func (c *Catalog) ByID(id string) *ModelDescriptor {
	if c == nil {
		return nil
	}
	i, ok := c.byID[id]
	if !ok {
		return nil
	}
	return &c.models[i]
}

// All returns every descriptor in catalog order.
func (c *Catalog) All() []ModelDescriptor {
	if c == nil {
		return nil
	}
	return c.models
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.models)
}

// Cost computes the USD cost of a token count split against a descriptor.
// Unknown models cost zero.
func (c *Catalog) Cost(modelID string, inputTokens, outputTokens int) float64 {
	desc := c.ByID(modelID)
	if desc == nil {
		return 0
	}
	const perMillion = 1_000_000
	return float64(inputTokens)*desc.InputPrice/perMillion +
		float64(outputTokens)*desc.OutputPrice/perMillion
}
