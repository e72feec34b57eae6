package compose

import (
	"fmt"
	"strings"

	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"gopkg.in/yaml.v3"
)

// Document is a composition request: the registry references of the
// components to link.
type Document struct {
	Components []string `yaml:"components"`
}

// ParseDocument reads a YAML composition document. Both a bare list of
// references and a mapping with a components key are accepted.
func ParseDocument(data []byte) ([]string, error) {
	var list []string
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc Document
		if derr := yaml.Unmarshal(data, &doc); derr != nil {
			return nil, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "document", Err: fmt.Errorf("decode composition document: %w", derr)}
		}
		list = doc.Components
	}

	refs := make([]string, 0, len(list))
	for _, ref := range list {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return nil, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "document", Err: fmt.Errorf("empty component reference")}
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "document", Err: fmt.Errorf("no components")}
	}
	return refs, nil
}
