/*
Package ncdf reads, writes and compares NetCDF classic files.

The processing engine needs structural access to product files in two
places: stamping identity attributes (file_uuid, pid, provenance) into
freshly produced files, and deciding whether a new file supersedes its
predecessor. Both work on the in-memory Dataset model of this package.

# Architecture

	┌──────────────────── NCDF PIPELINE ────────────────────┐
	│                                                       │
	│   bytes on disk                                       │
	│        │  ReadFile / Decode                           │
	│        ▼                                              │
	│   ┌──────────────────────────────┐                    │
	│   │  Dataset                     │                    │
	│   │  - Dims  (named axes)        │                    │
	│   │  - Attrs (global metadata)   │                    │
	│   │  - Vars  (typed arrays +     │                    │
	│   │           per-var attrs)     │                    │
	│   └───────────────┬──────────────┘                    │
	│        │          │ Compare(old, new)                 │
	│        │          ▼                                   │
	│        │     NONE / MINOR / MAJOR                     │
	│        ▼  WriteFile / Encode                          │
	│   bytes on disk                                       │
	│                                                       │
	└───────────────────────────────────────────────────────┘

# Container Support

The codec implements the classic container natively: CDF-1 (32-bit
offsets) and CDF-2 (64-bit offsets), all six external types, one
unlimited dimension with interleaved record data, and four-byte value
padding. NetCDF-4/HDF5 containers are a boundary format produced and
consumed by the scientific toolbox only; FormatOf sniffs the magic so
metadata can record the container name without decoding it.

# Diff Classification

Compare reduces (dimensions, variables, globals) to a DiffKind:

  - DiffNone: every dimension, variable (values, dtype, dimensions,
    mask) and non-volatile global attribute is equal. Floats compare
    with relative tolerance 1e-4; arrays that are fully masked on both
    sides are equal; source_file_uuids is an unordered set; history,
    file_uuid, pid and *_version attributes are ignored.
  - DiffMinor: data equal, but global metadata drifted in a patchable
    way (strictly additive attributes, changed source_file_uuids).
  - DiffMajor: anything else.

# Masking

A value is masked when it equals the variable's fill (_FillValue
attribute or the type default) or is NaN. Mask positions must agree
for equality; the stored values underneath a mask never matter.

# Usage

Stamping an attribute:

	ds, err := ncdf.ReadFile(path)
	if err != nil { ... }
	ds.SetAttr("pid", pid)
	err = ncdf.WriteFile(path, ds)

Superseding decision:

	kind, err := ncdf.CompareFiles(existingPath, freshPath)
	switch kind {
	case ncdf.DiffNone:  // keep existing, skip upload
	case ncdf.DiffMinor: // patch in place, reuse uuid and pid
	case ncdf.DiffMajor: // new volatile version
	}

# Integration Points

  - pkg/pid: reads file_uuid, writes the pid attribute
  - pkg/processor: provenance stamping, format sniffing, payloads
  - pkg/worker: the diff step of the process pipeline

# Thread Safety

Datasets are plain values with no internal synchronization. The worker
is single-threaded per task, so instances are never shared.
*/
package ncdf
