package bpfloader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// SearchLocation is one directory of ELF objects to load, paired with the
// pin-path prefix objects found there are pinned under. Location lists are
// configuration (§10.3) rather than hardcoded paths, generalizing the
// original's fixed Android apex directory list.
type SearchLocation struct {
	Dir    string
	Prefix string
}

// Orchestrator drives the per-object pipeline (§4.7) across every
// configured SearchLocation in order.
type Orchestrator struct {
	Env       *EnvSnapshot
	BPFFSRoot string
	PageSize  uint32
	Log       Logger
}

// Run iterates every location's objects, loading each in turn. It returns
// the first error produced by a critical object; non-critical failures are
// logged and do not halt the run. A FatalError from any object ends the run
// at once and is returned.
func (o *Orchestrator) Run(locations []SearchLocation) error {
	var firstCritical error

	for _, loc := range locations {
		if err := ensurePinDir(filepath.Join(o.BPFFSRoot, loc.Prefix)); err != nil {
			return err
		}

		entries, err := os.ReadDir(loc.Dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "read location %q", loc.Dir)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".o") {
				continue
			}

			path := filepath.Join(loc.Dir, entry.Name())
			critical, err := o.loadObject(path, loc)
			if err != nil {
				if IsFatal(err) {
					return err
				}
				if o.Log != nil {
					o.Log.Errorf("object %s: %s", path, err)
				}
				if critical && firstCritical == nil {
					firstCritical = errors.Wrapf(err, "critical object %s", path)
				}
				continue
			}
		}
	}

	return firstCritical
}

// loadObject runs the full per-object pipeline for the ELF at path, pinning
// under loc.Prefix unless a per-map/per-program selinux_context or
// pin_subdir overrides it. critical reflects the object's own manifest,
// reported even on failure so the caller can decide whether to abort.
func (o *Orchestrator) loadObject(path string, loc SearchLocation) (critical bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return false, errors.Wrapf(err, "open %q", path)
	}
	defer f.Close()

	reader, err := NewElfReader(f)
	if err != nil {
		return false, err
	}

	objectName := ObjectName(filepath.Base(path))

	manifest, err := DecodeObjectManifest(reader, objectName)
	if err != nil {
		return false, err
	}
	critical = manifest.Critical

	if !manifest.MeetsMinRequired(o.Env.LoaderVersion) {
		return critical, newFatalf("object %s requires loader_version >= %d, have %d", objectName, manifest.LoaderMinRequiredVer, o.Env.LoaderVersion)
	}
	if !manifest.InWindow(o.Env.LoaderVersion) {
		return critical, nil // GatedOut at the object level: silently skip.
	}

	mapData, _, err := reader.SectionByName("maps")
	if err != nil {
		return critical, err
	}
	var mapDefs []MapDef
	var mapNames []string
	if mapData != nil {
		mapNames, err = reader.SymbolNames("maps", false)
		if err != nil {
			return critical, err
		}
		mapDefs, err = DecodeMapDefs(mapData, int(manifest.SizeofBpfMapDef), mapNames)
		if err != nil {
			return critical, err
		}
	}

	codeSections, err := reader.CodeSections()
	if err != nil {
		return critical, err
	}

	progData, _, err := reader.SectionByName("progs")
	if err != nil {
		return critical, err
	}
	var progDefs []ProgDef
	if progData != nil {
		progDefs, err = DecodeProgDefs(progData, int(manifest.SizeofBpfProgDef))
		if err != nil {
			return critical, err
		}
	}
	if err := bindProgDefs(reader, codeSections, progDefs); err != nil {
		return critical, err
	}

	mm := &MapManager{Env: o.Env, BPFFSRoot: o.BPFFSRoot, PageSize: o.PageSize, ObjectName: objectName, Log: o.Log}
	resolvedMaps, err := mm.CreateMaps(mapDefs)
	if err != nil {
		return critical, err
	}

	for _, cs := range codeSections {
		if len(cs.Relocations) == 0 {
			continue
		}
		if err := ApplyRelocations(cs, mapNames, resolvedMaps, reader.SymbolName, o.Log); err != nil {
			return critical, err
		}
	}

	pl := &ProgramLoader{Env: o.Env, BPFFSRoot: o.BPFFSRoot, ObjectName: objectName, License: manifest.License, Log: o.Log}
	if err := pl.LoadPrograms(codeSections); err != nil {
		return critical, err
	}

	return critical, nil
}

// bindProgDefs binds the N-th progs record to the code section whose
// "<symbol>_def" name matches the N-th progs symbol, per §4.2.
func bindProgDefs(reader *ElfReader, sections []*CodeSection, defs []ProgDef) error {
	if len(defs) == 0 {
		return nil
	}
	progSymNames, err := reader.SymbolNames("progs", false)
	if err != nil {
		return err
	}
	if len(progSymNames) != len(defs) {
		return errors.Wrap(ErrMalformed, "progs symbol count does not match record count")
	}

	bySymbol := make(map[string]*ProgDef, len(defs))
	for i, name := range progSymNames {
		bySymbol[name] = &defs[i]
	}

	for _, cs := range sections {
		codeSymNames, err := reader.SymbolNames(cs.SectionName, true)
		if err != nil {
			return err
		}
		var bound *ProgDef
		for _, symName := range codeSymNames {
			if d, ok := bySymbol[symName+"_def"]; ok {
				bound = d
				break
			}
		}
		if bound == nil {
			return errors.Wrapf(ErrMalformed, "code section %s: no bound program definition (expected a <symbol>_def entry in progs)", cs.SectionName)
		}
		cs.Def = bound
	}
	return nil
}
