/*
Package types defines the core data structures used throughout the
processing engine.

This package contains all fundamental types that represent the Cloudnet
domain model: sites, instruments, products, raw and product files,
queue tasks, quality reports and calibration documents. These types are
used by all other packages for portal communication, task orchestration
and storage coordination.

# Architecture

The types package is the foundation of the engine's data model. It
defines:

  - Reference data (sites, instruments, products, models)
  - File records (raw uploads, processed products)
  - Queue records (tasks, publish payloads)
  - Runtime task classification (process params variants)
  - The error taxonomy that drives queue outcomes

All types are designed to be:
  - Serializable with JSON tags matching the portal wire names
  - Explicit about absent values (pointers, never sentinel strings)
  - Self-documenting (typed string enums, validation helpers)

# Core Types

Reference data:
  - Site: Ground station with geolocation and type tags
  - InstrumentInfo: Hardware unit identified across sites and time
  - Product: Product definition with level, types and derivation edges
  - Model: Numerical weather model

File records:
  - RawFile: Uploaded instrument or model file with MD5 checksum
  - ProductFile: Processed product; volatile (mutable, no PID) or
    frozen (immutable, has PID, may be federated)
  - FilePayload: PUT body derived from a local NetCDF

Queue records:
  - Task: Delivered queue record with one of six task kinds
  - TaskPayload: Publish body for follow-up and cron tasks

Task classification:
  - ProcessParams: Interface over the three runtime variants
  - InstrumentParams / ModelParams / ProductParams
  - UuidAccumulator: file identities collected during one process task

Error taxonomy:
  - SkipError: recoverable outcomes that complete without an artifact
  - SkipTask / RawDataMissing / MiscError constructors

# Volatile vs Frozen

A ProductFile is either volatile (mutable in place, metadata PID null)
or frozen (PID minted). The transition is one-way. A frozen file's
data never changes in place: a regeneration whose data is identical
patches it under the same UUID, while a data change produces a
successor with a fresh UUID. Raw file status only advances
uploaded -> processed -> (invalid).

# Usage

Classifying severity of a quality report:

	report := &types.QualityReport{...}
	if report.WorstErrorLevel() == types.ErrorLevelError {
		// surface to operators
	}

Skippable task outcomes:

	if len(rawFiles) == 0 {
		return types.RawDataMissing("No raw files for %s on %s", site.ID, date)
	}

The worker loop maps SkipError to a queue complete; everything else
fails the task.

# Integration Points

  - pkg/portal: wire encoding of every record
  - pkg/worker: params variants, error taxonomy, task records
  - pkg/processor: file records and payload construction
  - pkg/cron: task publish payloads

# Thread Safety

All types are plain data containers. Callers own synchronization when
sharing instances across goroutines; the worker is single-threaded by
design so this rarely matters in practice.
*/
package types
