package wireformat

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wasmplug/wasmplug/domain/entities"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func manifestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// EncodeManifest validates m and encodes it as msgpack.
func EncodeManifest(m entities.Manifest) ([]byte, error) {
	if err := ValidateManifest(m); err != nil {
		return nil, err
	}
	b, err := msgpack.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return b, nil
}

// DecodeManifest decodes and validates a msgpack manifest.
func DecodeManifest(b []byte) (entities.Manifest, error) {
	var m entities.Manifest
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return entities.Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if err := ValidateManifest(m); err != nil {
		return entities.Manifest{}, err
	}
	return m, nil
}

// ValidateManifest checks the manifest's struct tags.
func ValidateManifest(m entities.Manifest) error {
	if err := manifestValidator().Struct(m); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	return nil
}
