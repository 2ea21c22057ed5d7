package entities

// Manifest identifies a plugin. It is optional in a module and is published
// through the manifest export as msgpack.
type Manifest struct {
	ID          string `msgpack:"id" validate:"required,max=128,printascii"`
	Version     string `msgpack:"version,omitempty" validate:"omitempty,semver"`
	Description string `msgpack:"description,omitempty" validate:"max=1024"`
}
