package memory

import "errors"

var (
	// ErrOutOfBounds is returned when an address or address+length falls
	// outside the flash or PSRAM regions, or straddles both.
	ErrOutOfBounds = errors.New("address out of bounds")

	// ErrFirmwareTooShort is returned when a firmware blob is shorter than
	// the 256-byte header it must carry.
	ErrFirmwareTooShort = errors.New("firmware blob shorter than header")

	// ErrFirmwareMagicMismatch is returned when a firmware blob's header
	// magic does not match the expected value.
	ErrFirmwareMagicMismatch = errors.New("firmware magic mismatch")
)
