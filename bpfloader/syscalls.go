package bpfloader

import (
	"path/filepath"
	"runtime"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// bpf(2) command numbers this loader issues. Values match
// include/uapi/linux/bpf.h.
const (
	bpfMapCreate = 0
	bpfMapUpdate = 2
	bpfObjPin    = 6
	bpfObjGet    = 7
	bpfProgLoad  = 5
	bpfGetObjID  = 8
)

const bpfObjNameLen = 16

// mapCreateAttr is the bpf_attr union member for BPF_MAP_CREATE.
type mapCreateAttr struct {
	mapType    uint32
	keySize    uint32
	valueSize  uint32
	maxEntries uint32
	mapFlags   uint32
	innerMapFd uint32
	numaNode   uint32
	mapName    [bpfObjNameLen]byte
}

// progLoadAttr is the bpf_attr union member for BPF_PROG_LOAD.
type progLoadAttr struct {
	progType           uint32
	insnCnt            uint32
	insns              uint64
	license            uint64
	logLevel           uint32
	logSize            uint32
	logBuf             uint64
	kernelVersion      uint32
	progFlags          uint32
	progName           [bpfObjNameLen]byte
	progIfIndex        uint32
	expectedAttachType uint32
}

// pinObjAttr is the bpf_attr union member for BPF_OBJ_PIN / BPF_OBJ_GET.
type pinObjAttr struct {
	pathname  uint64
	bpfFd     uint32
	fileFlags uint32
}

const verifierLogSize = 1 << 20 // 1 MiB, matches the §4.6 budget

// bpfSyscall is the single entry point into the kernel's bpf(2) syscall,
// mirroring the teacher's bpfCall: a raw syscall.Syscall with KeepAlive to
// prevent the GC from moving/freeing attr while the kernel still holds a
// pointer into it.
func bpfSyscall(cmd uint32, attr unsafe.Pointer, size uintptr) (uintptr, error) {
	r1, _, errno := syscall.Syscall(unix.SYS_BPF, uintptr(cmd), uintptr(attr), size)
	runtime.KeepAlive(attr)
	if errno != 0 {
		return r1, errno
	}
	return r1, nil
}

// createMap issues BPF_MAP_CREATE and returns the new map's file descriptor.
func createMap(mapType, keySize, valueSize, maxEntries, mapFlags uint32, name string) (int, error) {
	attr := mapCreateAttr{
		mapType:    mapType,
		keySize:    keySize,
		valueSize:  valueSize,
		maxEntries: maxEntries,
		mapFlags:   mapFlags,
	}
	copy(attr.mapName[:], name)
	fd, err := bpfSyscall(bpfMapCreate, unsafe.Pointer(&attr), unsafe.Sizeof(attr))
	if err != nil {
		return -1, errors.Wrapf(err, "create map %q", name)
	}
	return int(fd), nil
}

// loadProgram issues BPF_PROG_LOAD. On verifier rejection the returned error
// wraps ErrVerifierReject and verifierLog carries whatever the kernel wrote
// to the log buffer, one line per §4.6.
func loadProgram(progType uint32, expectedAttachType uint32, insns []byte, license string, kernelVersion uint32, name string) (fd int, verifierLog string, err error) {
	if len(insns) == 0 {
		return -1, "", errors.Wrap(ErrMalformed, "program has no instructions")
	}

	lic := append([]byte(license), 0)
	logBuf := make([]byte, verifierLogSize)

	attr := progLoadAttr{
		progType:           progType,
		insnCnt:            uint32(len(insns) / 8),
		insns:              uint64(uintptr(unsafe.Pointer(&insns[0]))),
		license:            uint64(uintptr(unsafe.Pointer(&lic[0]))),
		logLevel:           1,
		logSize:            uint32(len(logBuf)),
		logBuf:             uint64(uintptr(unsafe.Pointer(&logBuf[0]))),
		kernelVersion:      kernelVersion,
		expectedAttachType: expectedAttachType,
	}
	copy(attr.progName[:], name)

	r, sysErr := bpfSyscall(bpfProgLoad, unsafe.Pointer(&attr), unsafe.Sizeof(attr))
	runtime.KeepAlive(insns)
	runtime.KeepAlive(lic)

	log := decodeCString(logBuf)
	if sysErr != nil {
		return -1, log, errors.Wrapf(ErrVerifierReject, "load program %q: %s", name, sysErr)
	}
	return int(r), log, nil
}

// bpfObjPinRaw issues BPF_OBJ_PIN, pinning fd at path. path's directory must
// already be on a bpf filesystem — callers check this via statfsIsBPFFS
// before calling.
func bpfObjPinRaw(path string, fd int) error {
	pathBytes := append([]byte(path), 0)
	attr := pinObjAttr{
		pathname: uint64(uintptr(unsafe.Pointer(&pathBytes[0]))),
		bpfFd:    uint32(fd),
	}
	_, err := bpfSyscall(bpfObjPin, unsafe.Pointer(&attr), unsafe.Sizeof(attr))
	runtime.KeepAlive(pathBytes)
	if err != nil {
		return errors.Wrapf(err, "pin %q", path)
	}
	return nil
}

// bpfObjGetRaw issues BPF_OBJ_GET, retrieving a previously pinned object's
// file descriptor.
func bpfObjGetRaw(path string) (int, error) {
	pathBytes := append([]byte(path), 0)
	attr := pinObjAttr{
		pathname: uint64(uintptr(unsafe.Pointer(&pathBytes[0]))),
	}
	fd, err := bpfSyscall(bpfObjGet, unsafe.Pointer(&attr), unsafe.Sizeof(attr))
	runtime.KeepAlive(pathBytes)
	if err != nil {
		return -1, errors.Wrapf(err, "get pinned object %q", path)
	}
	return int(fd), nil
}

// mapInfoAttr is the bpf_attr union member for BPF_OBJ_GET_INFO_BY_FD when
// querying a map.
type mapInfoAttr struct {
	fd      uint32
	infoLen uint32
	info    uint64
}

// mapInfo mirrors struct bpf_map_info, the subset this loader inspects when
// checking equivalence against a reused pinned map.
type mapInfo struct {
	Type       uint32
	ID         uint32
	KeySize    uint32
	ValueSize  uint32
	MaxEntries uint32
	MapFlags   uint32
	Name       [bpfObjNameLen]byte
}

const bpfObjGetInfoByFD = 15

// getMapSpecByFD queries the kernel for a live map's shape via
// BPF_OBJ_GET_INFO_BY_FD, available since kernel 4.13.
func getMapSpecByFD(fd int) (*mapInfo, error) {
	var info mapInfo
	attr := mapInfoAttr{
		fd:      uint32(fd),
		infoLen: uint32(unsafe.Sizeof(info)),
		info:    uint64(uintptr(unsafe.Pointer(&info))),
	}
	_, err := bpfSyscall(bpfObjGetInfoByFD, unsafe.Pointer(&attr), unsafe.Sizeof(attr))
	if err != nil {
		return nil, errors.Wrapf(err, "get info for map fd %d", fd)
	}
	return &info, nil
}

// bpfFSMagic is the bpf filesystem's statfs f_type, BPF_FS_MAGIC.
const bpfFSMagic = 0xcafe4a11

// statfsIsBPFFS reports whether the directory containing path is mounted as
// a bpf filesystem, the same guard the teacher's pinObject performs before
// issuing BPF_OBJ_PIN.
func statfsIsBPFFS(path string) (bool, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(filepath.Dir(path), &st); err != nil {
		return false, errors.Wrapf(err, "statfs %q", path)
	}
	return uint32(st.Type) == bpfFSMagic, nil
}
