//go:build wasip1

package pdk

import (
	"context"
	"fmt"

	"github.com/wasmplug/wasmplug/wireformat"
)

//go:wasmimport wasmplug_v0 log_message
func hostLogMessage(packed uint64) uint64

//go:wasmimport wasmplug_v0 call_plugin
func hostCallPlugin(packed uint64) uint64

// wasmHost calls the host through the module's imports. Requests are written
// to guest memory and freed after the call; responses are allocated by the
// host through the allocate export and freed once copied.
type wasmHost struct {
	guest *Guest
}

func (h *wasmHost) CallHost(_ context.Context, name string, payload []byte) ([]byte, error) {
	var imp func(uint64) uint64
	switch name {
	case wireformat.ImportLogMessage:
		imp = hostLogMessage
	case wireformat.ImportCallPlugin:
		imp = hostCallPlugin
	default:
		return nil, fmt.Errorf("unknown host import %q", name)
	}

	mem := h.guest.Memory()
	req, err := mem.WriteBytes(payload)
	if err != nil {
		return nil, err
	}
	defer mem.Free(wireformat.UnpackPtrLen(req))

	resp := imp(req)
	if resp == 0 {
		return nil, fmt.Errorf("host import %q returned no response", name)
	}
	defer mem.Free(wireformat.UnpackPtrLen(resp))
	return mem.ReadPacked(resp)
}
