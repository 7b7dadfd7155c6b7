//go:build windows

package fsmeta

import "golang.org/x/sys/windows"

// Fstatvfs reports free/total space for the volume backing path, via
// GetDiskFreeSpaceEx. Block size is reported as 1 byte, matching VFSStat's
// doc comment, since GetDiskFreeSpaceEx already reports byte counts.
func Fstatvfs(path string) (VFSStat, error) {
	dir, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return VFSStat{}, err
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &free, &total, &totalFree); err != nil {
		return VFSStat{}, err
	}
	return VFSStat{
		BlockSize:   1,
		TotalBlocks: total,
		FreeBlocks:  totalFree,
		AvailBlocks: free,
	}, nil
}

// facl information: owner, group, and DACL, the same subset the original's
// facl() reports for a regular file (fhandler_socket_unix.cc:1986-1998).
const aclSecurityInfo = windows.OWNER_SECURITY_INFORMATION |
	windows.GROUP_SECURITY_INFORMATION |
	windows.DACL_SECURITY_INFORMATION

// Facl reports path's security descriptor in SDDL form, per spec.md §6
// last paragraph's facl passthrough.
func Facl(path string) (string, error) {
	sd, err := windows.GetNamedSecurityInfo(path, windows.SE_FILE_OBJECT, aclSecurityInfo)
	if err != nil {
		return "", err
	}
	return sd.String(), nil
}
