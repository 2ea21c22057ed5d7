// Package hostfuncs provides the host functions guests import from the
// wasmplug_v0 module. Every function takes a msgpack request and answers
// with a result envelope.
package hostfuncs
