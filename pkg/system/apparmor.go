package system

import (
	"errors"
	"fmt"
	"os"
)

// RestrictedProfile is the AppArmor profile the server confines itself to.
const RestrictedProfile = "workbench-server-restricted"

// ErrRestrictionUnavailable is returned when AppArmor is not enabled.
var ErrRestrictionUnavailable = errors.New("apparmor not available")

var (
	appArmorModule = "/sys/module/apparmor"
	procAttrPath   = "/proc/self/attr/current"
)

// EnforceRestricted asks AppArmor to move the process into profile.
func EnforceRestricted(profile string) error {
	if _, err := os.Stat(appArmorModule); err != nil {
		return ErrRestrictionUnavailable
	}

	f, err := os.OpenFile(procAttrPath, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", procAttrPath, err)
	}
	defer f.Close()

	if _, err := f.WriteString("changeprofile " + profile); err != nil {
		return fmt.Errorf("failed to change to apparmor profile %s: %w", profile, err)
	}
	return nil
}
