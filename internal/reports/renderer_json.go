package reports

import (
	"encoding/json"

	"github.com/carepulse/engage/internal/domain/analytics"
)

// JSONRenderer emits the metrics document itself, indented for hand reading.
type JSONRenderer struct{}

// NewJSONRenderer creates a new JSON renderer
func NewJSONRenderer() *JSONRenderer {
	return &JSONRenderer{}
}

func (r *JSONRenderer) Format() string {
	return "json"
}

func (r *JSONRenderer) ContentType() string {
	return "application/json"
}

func (r *JSONRenderer) Render(doc *analytics.MetricsDocument) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
