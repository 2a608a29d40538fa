package bpfloader

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// pinAtomic commits fd at finalPath. When tmpPath is non-empty, fd is
// pinned at tmpPath first and then moved into place with Renameat2's
// RENAME_NOREPLACE, so concurrent readers of the bpf filesystem never
// observe a partially-configured object at finalPath — they see either
// nothing or the fully pinned object. When tmpPath is empty the object is
// pinned directly at finalPath (no selinux_context was specified, so there
// is no guard directory to stage under).
func pinAtomic(tmpPath, finalPath string, fd int) error {
	if finalPath == "" {
		return errors.New("pin path cannot be empty")
	}

	if tmpPath == "" {
		return pinDirect(finalPath, fd)
	}

	if err := pinDirect(tmpPath, fd); err != nil {
		return err
	}

	err := unix.Renameat2(unix.AT_FDCWD, tmpPath, unix.AT_FDCWD, finalPath, unix.RENAME_NOREPLACE)
	if err == nil {
		return nil
	}
	_ = os.Remove(tmpPath)
	return errors.Wrapf(err, "rename %q to %q", tmpPath, finalPath)
}

func pinDirect(path string, fd int) error {
	onBPFFS, err := statfsIsBPFFS(path)
	if err != nil {
		return err
	}
	if !onBPFFS {
		return errors.Errorf("%s is not on a bpf filesystem", path)
	}
	return bpfObjPinRaw(path, fd)
}

// getPinned retrieves the fd of a previously pinned object. ok is false
// (with a nil error) when nothing is pinned at path.
func getPinned(path string) (fd int, ok bool, err error) {
	if _, statErr := os.Stat(path); statErr != nil {
		if os.IsNotExist(statErr) {
			return 0, false, nil
		}
		return 0, false, errors.Wrapf(statErr, "stat %q", path)
	}
	fd, err = bpfObjGetRaw(path)
	if err != nil {
		return 0, false, err
	}
	return fd, true, nil
}

// ensurePinDir creates dir (and parents) if missing. Directory creation
// under the bpf filesystem root is otherwise an external collaborator per
// the loader's scope, but the guard subdirectories it pins into (tethering/,
// net_private/, ...) are this package's own responsibility since they are
// named directly by the Domain table.
func ensurePinDir(dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.Wrapf(err, "create pin directory %q", dir)
	}
	return nil
}

// chmodChown applies a pinned object's declared mode/uid/gid. mode of 0
// leaves the filesystem default in place, matching objects that never set
// a mode field.
func chmodChown(path string, mode, uid, gid uint32) error {
	if mode != 0 {
		if err := os.Chmod(path, os.FileMode(mode)); err != nil {
			return errors.Wrapf(err, "chmod %q", path)
		}
	}
	if err := os.Chown(path, int(uid), int(gid)); err != nil {
		return errors.Wrapf(err, "chown %q", path)
	}
	return nil
}

func tmpMapPath(dir, objectName, mapName string) string {
	return filepath.Join(dir, "tmp_map_"+objectName+"_"+mapName)
}

func tmpProgPath(dir, objectName, progName string) string {
	return filepath.Join(dir, "tmp_prog_"+objectName+"_"+progName)
}
