package bpfloader

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ProgramLoader submits relocated program bytecode to the kernel and pins
// the result, per §4.6.
type ProgramLoader struct {
	Env        *EnvSnapshot
	BPFFSRoot  string
	ObjectName string
	License    string
	Log        Logger
}

// LoadPrograms loads or reuses every CodeSection whose bound ProgDef
// survives gating. A non-optional verifier rejection aborts and returns an
// error; an optional one is logged and skipped, matching scenario 5 in §8.
func (p *ProgramLoader) LoadPrograms(sections []*CodeSection) error {
	for _, cs := range sections {
		if cs.Def == nil {
			return errors.Wrapf(ErrMalformed, "code section %s has no bound program definition", cs.SectionName)
		}

		if gateProg(cs.Def, p.Env) {
			continue
		}

		if err := p.loadOrReuseOne(cs); err != nil {
			if cs.Def.Optional && errors.Cause(err) == ErrVerifierReject {
				if p.Log != nil {
					for _, line := range strings.Split(err.Error(), "\n") {
						p.Log.Warnf("%s", line)
					}
				}
				continue
			}
			return errors.Wrapf(err, "program %s", cs.PinName)
		}
	}
	return nil
}

func (p *ProgramLoader) loadOrReuseOne(cs *CodeSection) error {
	def := cs.Def

	_, subdirFromSelinux := resolveSelinuxContext(def.SelinuxContext)
	_, subdirFromPin, err := resolvePinSubdir(def.PinSubdir)
	if err != nil {
		return err
	}
	subdir := subdirFromPin
	if subdir == "" {
		subdir = subdirFromSelinux
	}

	pinPath := filepath.Join(p.BPFFSRoot, subdir, "prog_"+p.ObjectName+"_"+cs.PinName)

	if fd, ok, err := getPinned(pinPath); err != nil {
		return err
	} else if ok {
		cs.ProgFD = fd
		return nil
	}

	progName := cs.PinName
	if p.Env.KernelVersion < versionGate4_15 {
		progName = ""
	}
	fd, verifierLog, err := loadProgram(uint32(cs.ProgType), uint32(cs.ExpectedAttachType), cs.Instructions, p.License, p.Env.KernelVersion, progName)
	if err != nil {
		if verifierLog != "" {
			return errors.Wrapf(err, "verifier log:\n%s", verifierLog)
		}
		return err
	}

	var tmpPath string
	if subdirFromSelinux != "" {
		tmpPath = tmpProgPath(filepath.Join(p.BPFFSRoot, subdirFromSelinux), p.ObjectName, cs.PinName)
		if err := ensurePinDir(filepath.Dir(tmpPath)); err != nil {
			return err
		}
	}
	if err := pinAtomic(tmpPath, pinPath, fd); err != nil {
		return err
	}
	if err := chmodChown(pinPath, 0440, def.UID, def.GID); err != nil {
		return err
	}

	cs.ProgFD = fd
	return nil
}
