package workflow

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/flow.json
var flowSchema []byte

var flowSchemaLoader = gojsonschema.NewBytesLoader(flowSchema)

// validateDefinition checks the structural shape of a flow before its blocks are parsed.
func validateDefinition(flow *models.Flow) error {
	result, err := gojsonschema.Validate(flowSchemaLoader, gojsonschema.NewGoLoader(flow))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFlow, err)
	}

	if !result.Valid() {
		errors := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidFlow, strings.Join(errors, "; "))
	}

	return nil
}
