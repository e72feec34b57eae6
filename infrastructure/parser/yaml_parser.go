// Package parser decodes component manifests.
package parser

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hayride-dev/hayride-go/contract"
	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/domain/ports"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// validate is a package-level singleton; building a validator is expensive.
var validate = validator.New()

// YamlManifestParser implements ManifestParser for YAML.
type YamlManifestParser struct{}

// NewYamlManifestParser creates a new YamlManifestParser.
func NewYamlManifestParser() ports.ManifestParser {
	return &YamlManifestParser{}
}

// Parse unmarshals YAML bytes into a Manifest and validates it: required
// fields, a semantic version, and well-formed interface references.
func (p *YamlManifestParser) Parse(data []byte) (*entities.Manifest, error) {
	var manifest entities.Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Err: fmt.Errorf("decode manifest: %w", err)}
	}
	if err := Validate(&manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// Validate checks a manifest regardless of its source encoding.
func Validate(m *entities.Manifest) error {
	if err := validate.Struct(m); err != nil {
		field := ""
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			field = strings.ToLower(verrs[0].Field())
		}
		return &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: field, Err: err}
	}
	if !semver.IsValid("v" + strings.TrimPrefix(m.Version, "v")) {
		return &domainerrors.ConfigError{
			Kind:  domainerrors.KindInvalid,
			Field: "version",
			Err:   fmt.Errorf("%q is not a semantic version", m.Version),
		}
	}
	for _, group := range [][]string{m.Imports, m.Exports} {
		for _, ref := range group {
			if _, err := contract.ParseInterfaceRef(ref); err != nil {
				return &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "interfaces", Interface: ref, Err: err}
			}
		}
	}
	return nil
}
