package directory

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
)

// Embed the bundled national endpoint list (spec §6: "A national-endpoints
// JSON file is bundled").
//
//go:embed national_endpoints.json
var nationalEndpointsFile embed.FS

// NationalEndpoints returns the fixed small set of national-scale responder
// endpoints the orchestrator's national pass queries, per spec §4.6.
func NationalEndpoints() ([]model.ResponderEndpoint, error) {
	raw, err := nationalEndpointsFile.ReadFile("national_endpoints.json")
	if err != nil {
		return nil, fmt.Errorf("read national endpoints: %w", err)
	}
	var endpoints []model.ResponderEndpoint
	if err := json.Unmarshal(raw, &endpoints); err != nil {
		return nil, fmt.Errorf("decode national endpoints: %w", err)
	}
	return endpoints, nil
}
