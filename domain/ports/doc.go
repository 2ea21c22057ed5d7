// Package ports defines the interfaces between the plugin runtime and the
// sandboxed execution engine. Infrastructure adapters implement these
// interfaces; the host package depends only on them.
package ports
