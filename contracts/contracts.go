// Package contracts embeds the orchestrator's OpenAPI document so the server
// can validate requests against the published contract without reading files
// at runtime.
package contracts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed orchestrator.yaml
var orchestratorYAML []byte

// OrchestratorSpec parses and validates the embedded OpenAPI document.
func OrchestratorSpec() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(orchestratorYAML)
	if err != nil {
		return nil, fmt.Errorf("load orchestrator contract: %w", err)
	}
	if err := spec.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate orchestrator contract: %w", err)
	}
	return spec, nil
}
