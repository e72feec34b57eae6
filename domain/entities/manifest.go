package entities

// Manifest is the optional descriptor shipped next to a component artifact.
// Imports and exports are interface references such as "hayride:silo/threads@0.0.65".
type Manifest struct {
	Namespace   string   `json:"namespace" yaml:"namespace" validate:"required"`
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Version     string   `json:"version" yaml:"version" validate:"required"`
	World       string   `json:"world,omitempty" yaml:"world,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Imports     []string `json:"imports,omitempty" yaml:"imports,omitempty" validate:"dive,required"`
	Exports     []string `json:"exports,omitempty" yaml:"exports,omitempty" validate:"dive,required"`
}

// Ref returns the registry reference "namespace:name@version".
func (m Manifest) Ref() string {
	return m.Namespace + ":" + m.Name + "@" + m.Version
}
