// Package wireformat defines the byte-level ABI contract between the host and
// guest plugins: export names, packed pointers, the type codec, the descriptor
// table, argument tuples and result envelopes. Host and guest link this same
// package so both sides encode bit-identically. These formats must remain
// stable as they define the ABI contract.
package wireformat

// Version of the ABI. It is embedded in every export and import name.
const Version = "v0"

// Export and import names of the ABI.
const (
	// ExportPrefix starts every ABI export name.
	ExportPrefix = "wasmplug_" + Version + "_"

	// ExportDescribe returns the packed location of the serialized DescriptorTable.
	ExportDescribe = ExportPrefix + "describe"

	// ExportManifest optionally returns the packed location of the msgpack Manifest.
	ExportManifest = ExportPrefix + "manifest"

	// ExportAllocate reserves guest memory: (size i32) -> ptr i32.
	ExportAllocate = ExportPrefix + "allocate"

	// ExportFree releases guest memory: (ptr i32, size i32).
	ExportFree = ExportPrefix + "free"

	// ExportMemory is the guest's linear memory.
	ExportMemory = "memory"

	// ExportInitialize is the reactor initializer run once after instantiation.
	ExportInitialize = "_initialize"

	// HostModule is the import module name of host functions.
	HostModule = "wasmplug_" + Version

	// ImportLogMessage routes a msgpack LogRecord to the host logger.
	ImportLogMessage = "log_message"

	// ImportCallPlugin calls a function of another plugin in the same universe.
	ImportCallPlugin = "call_plugin"
)

// CallExport returns the name of the dispatcher export for a function.
func CallExport(function string) string {
	return ExportPrefix + "call_" + function
}
