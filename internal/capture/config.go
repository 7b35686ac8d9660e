package capture

import (
	"fmt"

	"github.com/c2h5oh/datasize"

	"github.com/ringtap/ringtap/internal/ring"
	"github.com/ringtap/ringtap/internal/xlog"
)

// Config holds the module parameters from spec.md §6 "Module parameters".
type Config struct {
	Logging xlog.Config `yaml:"logging"`

	// BucketLen is the slot payload capacity in bytes (default 128).
	BucketLen uint32 `yaml:"bucket_len"`
	// NumSlots is the number of slots per ring (default 4096).
	NumSlots uint32 `yaml:"num_slots"`
	// SampleRate is the default per-ring sampling rate (default 1, meaning
	// "capture everything").
	SampleRate uint32 `yaml:"sample_rate"`
	// TransparentMode: captured frames continue up the stack (default
	// true). Disabling it switches to opaque mode.
	TransparentMode bool `yaml:"transparent_mode"`
	// EnableTxCapture enables capturing outgoing frames (default true).
	EnableTxCapture bool `yaml:"enable_tx_capture"`

	// MaxRingMem bounds the total shared-memory area a single Bind call
	// may allocate, guarding against a misconfigured bucket_len/num_slots
	// pair exhausting locked memory.
	MaxRingMem datasize.ByteSize `yaml:"max_ring_mem"`
}

// DefaultConfig returns spec.md §6's module parameter defaults.
func DefaultConfig() Config {
	return Config{
		Logging:         xlog.DefaultConfig(),
		BucketLen:       128,
		NumSlots:        4096,
		SampleRate:      1,
		TransparentMode: true,
		EnableTxCapture: true,
		MaxRingMem:      64 * datasize.MB,
	}
}

// Validate checks the module parameters against ring.RegionSize, failing
// with ErrInvalid when bucket_len or num_slots is zero or when the
// page-aligned ring region would exceed MaxRingMem.
func (c Config) Validate(pageSize int) error {
	if c.BucketLen == 0 {
		return fmt.Errorf("%w: bucket_len must be > 0", ErrInvalid)
	}
	if c.NumSlots == 0 {
		return fmt.Errorf("%w: num_slots must be > 0", ErrInvalid)
	}
	size := ring.RegionSize(c.BucketLen, c.NumSlots, pageSize)
	if datasize.ByteSize(size) > c.MaxRingMem {
		return fmt.Errorf("%w: ring region %s exceeds max_ring_mem %s",
			ErrInvalid, datasize.ByteSize(size), c.MaxRingMem)
	}
	return nil
}
