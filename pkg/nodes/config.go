package nodes

import (
	"fmt"

	"github.com/aretw0/authtree/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// decodeConfig maps the opaque node configuration onto a typed struct.
// Weak typing accepts numbers decoded from JSON/YAML as float64 or strings.
func decodeConfig(def domain.NodeDefinition, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "config",
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(def.Config); err != nil {
		return fmt.Errorf("invalid config for %s node %s: %w", def.Type, def.ID, err)
	}
	return nil
}
