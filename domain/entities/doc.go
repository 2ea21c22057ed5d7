// Package entities provides the core domain types of the plugin ABI.
// These types are shared by the host runtime and the guest plugin kit, and are
// the shapes the wire format encodes: type tags, values, schemas and descriptors.
package entities
