package ncdf

import (
	"math"
	"sort"
	"strings"
)

// DiffKind is the outcome of comparing a freshly produced file against
// its predecessor
type DiffKind string

const (
	// DiffNone means the files are scientifically identical; the
	// existing file is kept and nothing is uploaded.
	DiffNone DiffKind = "none"

	// DiffMinor means only metadata drifted; the new content overwrites
	// the old object in place, reusing its UUID and PID.
	DiffMinor DiffKind = "minor"

	// DiffMajor means scientific content changed; a new volatile
	// version is created.
	DiffMajor DiffKind = "major"
)

// relative tolerance for float comparisons
const rtol = 1e-4

// Global attributes that never participate in the comparison. They
// change on every run without carrying scientific meaning.
var volatileAttrs = []string{"history", "file_uuid", "pid"}

// Compare classifies the difference between an existing product file
// and a freshly produced one. Dimensions, variables and data must
// match exactly (within rtol for floats, with all-masked arrays
// treated as equal) for anything better than MAJOR. Additive global
// metadata and a changed source_file_uuids set downgrade to MINOR,
// everything else to MAJOR.
func Compare(old, new *Dataset) DiffKind {
	if !dimsEqual(old, new) {
		return DiffMajor
	}
	if !varsEqual(old, new) {
		return DiffMajor
	}
	return compareGlobals(old, new)
}

// CompareFiles reads both paths and compares them
func CompareFiles(oldPath, newPath string) (DiffKind, error) {
	oldDs, err := ReadFile(oldPath)
	if err != nil {
		return DiffMajor, err
	}
	newDs, err := ReadFile(newPath)
	if err != nil {
		return DiffMajor, err
	}
	return Compare(oldDs, newDs), nil
}

func dimsEqual(old, new *Dataset) bool {
	if len(old.Dims) != len(new.Dims) {
		return false
	}
	for _, dim := range old.Dims {
		other, ok := new.Dim(dim.Name)
		if !ok || other.Len != dim.Len || other.Unlimited != dim.Unlimited {
			return false
		}
	}
	return true
}

func varsEqual(old, new *Dataset) bool {
	if len(old.Vars) != len(new.Vars) {
		return false
	}
	for _, v := range old.Vars {
		other, ok := new.Var(v.Name)
		if !ok {
			return false
		}
		if !variableEqual(v, other) {
			return false
		}
	}
	return true
}

func variableEqual(a, b *Variable) bool {
	if a.Type != b.Type {
		return false
	}
	if len(a.Dims) != len(b.Dims) {
		return false
	}
	for i := range a.Dims {
		if a.Dims[i] != b.Dims[i] {
			return false
		}
	}
	if !varAttrsEqual(a, b) {
		return false
	}
	return dataEqual(a, b)
}

// varAttrsEqual requires variable attributes to match pairwise;
// any drift in units, fills or flags is a scientific change
func varAttrsEqual(a, b *Variable) bool {
	if len(a.Attrs) != len(b.Attrs) {
		return false
	}
	for _, attr := range a.Attrs {
		other, ok := b.Attr(attr.Name)
		if !ok || !attrEqual(attr, other) {
			return false
		}
	}
	return true
}

func dataEqual(a, b *Variable) bool {
	n := a.Len()
	if n != b.Len() {
		return false
	}
	if a.Type == TypeChar {
		return charData(a) == charData(b)
	}
	// Two fully masked arrays are equal regardless of stored values.
	if a.AllMasked() && b.AllMasked() {
		return true
	}
	for i := 0; i < n; i++ {
		am, bm := a.MaskedAt(i), b.MaskedAt(i)
		if am != bm {
			return false
		}
		if am {
			continue
		}
		av, _ := a.FloatAt(i)
		bv, _ := b.FloatAt(i)
		if !floatEqual(av, bv) {
			return false
		}
	}
	return true
}

func charData(v *Variable) string {
	switch d := v.Data.(type) {
	case string:
		return d
	case []byte:
		return string(d)
	}
	return ""
}

func compareGlobals(old, new *Dataset) DiffKind {
	minor := false

	seen := map[string]bool{}
	for _, a := range old.Attrs {
		seen[a.Name] = true
		if ignoredAttr(a.Name) {
			continue
		}
		other, ok := new.Attr(a.Name)
		if !ok {
			// A dropped attribute is a content change.
			return DiffMajor
		}
		if a.Name == "source_file_uuids" {
			if !uuidSetEqual(a, other) {
				minor = true
			}
			continue
		}
		if !attrEqual(a, other) {
			return DiffMajor
		}
	}
	for _, a := range new.Attrs {
		if seen[a.Name] || ignoredAttr(a.Name) {
			continue
		}
		// Strictly additive metadata is patchable.
		minor = true
	}

	if minor {
		return DiffMinor
	}
	return DiffNone
}

func ignoredAttr(name string) bool {
	for _, v := range volatileAttrs {
		if name == v {
			return true
		}
	}
	return strings.HasSuffix(name, "_version")
}

// uuidSetEqual compares source_file_uuids as unordered sets
func uuidSetEqual(a, b Attr) bool {
	as, aok := a.Value.(string)
	bs, bok := b.Value.(string)
	if !aok || !bok {
		return attrEqual(a, b)
	}
	return setEqual(splitUUIDs(as), splitUUIDs(bs))
}

// SplitUUIDList splits a source_file_uuids attribute into its entries,
// tolerating comma, space and newline separators.
func SplitUUIDList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func splitUUIDs(s string) []string {
	out := SplitUUIDList(s)
	sort.Strings(out)
	return out
}

func setEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func attrEqual(a, b Attr) bool {
	as, aok := a.Value.(string)
	bs, bok := b.Value.(string)
	if aok || bok {
		return aok && bok && as == bs
	}
	af, aok := attrFloats(a)
	bf, bok := attrFloats(b)
	if !aok || !bok || len(af) != len(bf) {
		return false
	}
	for i := range af {
		if !floatEqual(af[i], bf[i]) {
			return false
		}
	}
	return true
}

func floatEqual(a, b float64) bool {
	if a == b {
		return true
	}
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Abs(a-b) <= rtol*math.Abs(b)
}
