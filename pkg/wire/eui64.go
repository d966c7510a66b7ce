package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatEUI64 renders a device id the way the radio core expects it:
// 16 lower-case hex digits, zero padded.
func FormatEUI64(id uint64) string {
	return fmt.Sprintf("%016x", id)
}

// ParseEUI64 parses a hex device id of up to 16 digits. A leading "0x" is
// accepted.
func ParseEUI64(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" || len(s) > 16 {
		return 0, fmt.Errorf("invalid eui64 %q", s)
	}
	id, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid eui64 %q: %w", s, err)
	}
	return id, nil
}
