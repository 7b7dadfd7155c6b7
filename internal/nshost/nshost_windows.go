//go:build windows

package nshost

import (
	"context"
	"fmt"
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/cygcompat/afunix/internal/errno"
	"github.com/cygcompat/afunix/internal/pipeid"
	"github.com/cygcompat/afunix/internal/sockaddr"
)

// ntdll entry points for the object-manager calls golang.org/x/sys/windows
// does not wrap, reached the same way the teacher's ntdll_windows.go and
// fltlib_windows.go reach undocumented or rarely-wrapped NTDLL exports:
// NewLazySystemDLL, NewProc, and a manual NTSTATUS check.
var (
	ntdll = windows.NewLazySystemDLL("ntdll.dll")

	procNtCreateSymbolicLinkObject = ntdll.NewProc("NtCreateSymbolicLinkObject")
	procNtOpenSymbolicLinkObject   = ntdll.NewProc("NtOpenSymbolicLinkObject")
	procNtQuerySymbolicLinkObject  = ntdll.NewProc("NtQuerySymbolicLinkObject")
	procNtMakeTemporaryObject      = ntdll.NewProc("NtMakeTemporaryObject")
)

type ntUnicodeString struct {
	Length        uint16
	MaximumLength uint16
	Buffer        *uint16
}

func newNTString(s string) (*ntUnicodeString, error) {
	u, err := windows.UTF16FromString(s)
	if err != nil {
		return nil, err
	}
	// UTF16FromString NUL-terminates; the NT string length excludes it.
	byteLen := 2 * (len(u) - 1)
	return &ntUnicodeString{
		Length:        uint16(byteLen),
		MaximumLength: uint16(byteLen + 2),
		Buffer:        &u[0],
	}, nil
}

type ntObjectAttributes struct {
	Length                   uint32
	RootDirectory            windows.Handle
	ObjectName               *ntUnicodeString
	Attributes               uint32
	SecurityDescriptor       uintptr
	SecurityQualityOfService uintptr
}

const objCaseInsensitive = 0x00000040

func newObjectAttributes(name *ntUnicodeString) *ntObjectAttributes {
	oa := &ntObjectAttributes{Attributes: objCaseInsensitive, ObjectName: name}
	oa.Length = uint32(unsafe.Sizeof(*oa))
	return oa
}

const (
	symbolicLinkAllAccess = 0x000F0001
	statusSuccess         = 0
	statusObjectNameExist = 0x40000000 | 0x00000002
)

// Publisher is the Windows backend for the address publisher/resolver. The
// zero value is not usable; construct with NewPublisher.
type Publisher struct {
	installKey      string
	sharedParentDir string
}

// NewPublisher returns the Windows publisher/resolver, rooted at
// sharedParentDir for abstract names (an NT object-manager directory, e.g.
// `\Sessions\0\BaseNamedObjects\afunix`).
func NewPublisher(installKey, sharedParentDir string) *Publisher {
	return &Publisher{installKey: installKey, sharedParentDir: sharedParentDir}
}

// Publish implements connstate.Namespace.Publish.
func (p *Publisher) Publish(ctx context.Context, addr sockaddr.SunName, pipeName string) (func() error, error) {
	if err := validateAddr(addr); err != nil {
		return nil, err
	}
	if addr.Shape() == sockaddr.ShapeAbstract {
		return p.publishAbstract(addr, pipeName)
	}
	return p.publishPathname(ctx, addr, pipeName)
}

// Resolve implements connstate.Namespace.Resolve.
func (p *Publisher) Resolve(ctx context.Context, addr sockaddr.SunName) (string, pipeid.SockType, error) {
	if err := validateAddr(addr); err != nil {
		return "", 0, err
	}
	var pipeName string
	var err error
	if addr.Shape() == sockaddr.ShapeAbstract {
		pipeName, err = p.resolveAbstract(addr)
	} else {
		pipeName, err = p.resolvePathname(ctx, addr)
	}
	if err != nil {
		return "", 0, err
	}
	t, err := recoverType(pipeName)
	if err != nil {
		return "", 0, err
	}
	return pipeName, t, nil
}

func (p *Publisher) publishAbstract(addr sockaddr.SunName, pipeName string) (func() error, error) {
	objName, err := ObjectName(p.sharedParentDir, addr)
	if err != nil {
		return nil, err
	}
	name, err := newNTString(objName)
	if err != nil {
		return nil, err
	}
	target, err := newNTString(pipeName)
	if err != nil {
		return nil, err
	}
	oa := newObjectAttributes(name)

	var handle windows.Handle
	status, _, _ := syscall.SyscallN(
		procNtCreateSymbolicLinkObject.Addr(),
		uintptr(unsafe.Pointer(&handle)),
		uintptr(symbolicLinkAllAccess),
		uintptr(unsafe.Pointer(oa)),
		uintptr(unsafe.Pointer(target)),
	)
	if status == statusObjectNameExist {
		return nil, errno.EADDRINUSE
	}
	if status != statusSuccess {
		return nil, fmt.Errorf("nshost: NtCreateSymbolicLinkObject: NTSTATUS 0x%08X", status)
	}

	// Temporary: the object is destroyed when the last handle to it
	// closes, per spec.md §3's "exists while any handle to it is open".
	syscall.SyscallN(procNtMakeTemporaryObject.Addr(), uintptr(handle))

	release := func() error {
		return windows.CloseHandle(handle)
	}
	return release, nil
}

func (p *Publisher) resolveAbstract(addr sockaddr.SunName) (string, error) {
	objName, err := ObjectName(p.sharedParentDir, addr)
	if err != nil {
		return "", err
	}
	name, err := newNTString(objName)
	if err != nil {
		return "", err
	}
	oa := newObjectAttributes(name)

	var handle windows.Handle
	status, _, _ := syscall.SyscallN(
		procNtOpenSymbolicLinkObject.Addr(),
		uintptr(unsafe.Pointer(&handle)),
		uintptr(symbolicLinkAllAccess),
		uintptr(unsafe.Pointer(oa)),
	)
	if status != statusSuccess {
		return "", errno.EADDRNOTAVAIL
	}
	defer windows.CloseHandle(handle)

	buf := make([]uint16, pipeid.NameLen+8)
	target := &ntUnicodeString{
		MaximumLength: uint16(2 * len(buf)),
		Buffer:        &buf[0],
	}
	var returned uint32
	status, _, _ = syscall.SyscallN(
		procNtQuerySymbolicLinkObject.Addr(),
		uintptr(handle),
		uintptr(unsafe.Pointer(target)),
		uintptr(unsafe.Pointer(&returned)),
	)
	if status != statusSuccess {
		return "", fmt.Errorf("nshost: NtQuerySymbolicLinkObject: NTSTATUS 0x%08X", status)
	}
	return windows.UTF16ToString(buf[:target.Length/2]), nil
}

// reparseDataBufferHeader mirrors the fixed prefix of Windows'
// REPARSE_DATA_BUFFER: the generic tag/length/reserved header that
// precedes any tag-specific payload, including the one
// EncodePathnamePayload produces.
type reparseDataBufferHeader struct {
	ReparseTag        uint32
	ReparseDataLength uint16
	Reserved          uint16
}

const fsctlSetReparsePoint = 0x000900A4
const fsctlGetReparsePoint = 0x000900A8

func (p *Publisher) publishPathname(ctx context.Context, addr sockaddr.SunName, pipeName string) (func() error, error) {
	pathUTF16, err := windows.UTF16PtrFromString(string(addr.Bytes()))
	if err != nil {
		return nil, err
	}
	h, err := createFileRetrySharingViolation(ctx, pathUTF16,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		windows.CREATE_NEW,
		windows.FILE_FLAG_OPEN_REPARSE_POINT|windows.FILE_FLAG_BACKUP_SEMANTICS,
	)
	if err != nil {
		if err == windows.ERROR_FILE_EXISTS {
			return nil, errno.EADDRINUSE
		}
		return nil, err
	}

	payload, err := EncodePathnamePayload(pipeName)
	if err != nil {
		windows.CloseHandle(h)
		return nil, err
	}
	reqBuf := make([]byte, 8+len(payload))
	hdr := reparseDataBufferHeader{ReparseTag: ReparseTagCygunix, ReparseDataLength: uint16(len(payload))}
	copy(reqBuf[0:8], (*[8]byte)(unsafe.Pointer(&hdr))[:])
	copy(reqBuf[8:], payload)

	var bytesReturned uint32
	if err := windows.DeviceIoControl(h, fsctlSetReparsePoint, &reqBuf[0], uint32(len(reqBuf)), nil, 0, &bytesReturned, nil); err != nil {
		windows.CloseHandle(h)
		removeFile(string(addr.Bytes()))
		return nil, err
	}
	windows.CloseHandle(h)

	release := func() error {
		return removeFile(string(addr.Bytes()))
	}
	return release, nil
}

func (p *Publisher) resolvePathname(ctx context.Context, addr sockaddr.SunName) (string, error) {
	pathUTF16, err := windows.UTF16PtrFromString(string(addr.Bytes()))
	if err != nil {
		return "", err
	}
	h, err := createFileRetrySharingViolation(ctx, pathUTF16,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_OPEN_REPARSE_POINT|windows.FILE_FLAG_BACKUP_SEMANTICS,
	)
	if err != nil {
		if err == errno.EINTR {
			return "", err
		}
		return "", errno.EADDRNOTAVAIL
	}
	defer windows.CloseHandle(h)

	outBuf := make([]byte, 4096)
	var bytesReturned uint32
	if err := windows.DeviceIoControl(h, fsctlGetReparsePoint, nil, 0, &outBuf[0], uint32(len(outBuf)), &bytesReturned, nil); err != nil {
		return "", errno.EINVAL
	}
	if bytesReturned < 8 {
		return "", errno.EINVAL
	}
	hdr := (*reparseDataBufferHeader)(unsafe.Pointer(&outBuf[0]))
	return DecodePathnamePayload(hdr.ReparseTag, outBuf[8:bytesReturned])
}

// createFileRetrySharingViolation opens path the way open_reparse_point in
// fhandler_socket_unix.cc does: on ERROR_SHARING_VIOLATION it yields and
// retries rather than failing outright, since the violation is usually a
// concurrent publisher that is about to finish, checking ctx on every
// iteration the way the original checks pthread_testcancel()/a signal wait.
func createFileRetrySharingViolation(ctx context.Context, path *uint16, access, shareMode, createDisposition, flags uint32) (windows.Handle, error) {
	for {
		h, err := windows.CreateFile(path, access, shareMode, nil, createDisposition, flags, 0)
		if err == nil {
			return h, nil
		}
		if err != windows.ERROR_SHARING_VIOLATION {
			return 0, err
		}
		select {
		case <-ctx.Done():
			return 0, errno.EINTR
		default:
		}
		runtime.Gosched()
	}
}

func removeFile(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	return windows.DeleteFile(p)
}
