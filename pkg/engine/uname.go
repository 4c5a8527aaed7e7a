package engine

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// UnameProbe reads the machine hardware name with uname(2), so architecture
// detection never spawns a process.
type UnameProbe struct{}

// Machine implements ArchProbe.
func (UnameProbe) Machine() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", fmt.Errorf("uname: %w", err)
	}
	return unix.ByteSliceToString(uts.Machine[:]), nil
}
