package ncdf

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Portal format identifiers derived from a file's magic bytes
const (
	FormatNetCDF3 = "NetCDF3"
	FormatHDF5    = "HDF5 (NetCDF4)"
)

var hdf5Magic = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// FormatOf sniffs the container format of a product file. The portal
// metadata records it verbatim.
func FormatOf(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var magic [8]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return "", fmt.Errorf("failed to read magic of %s: %w", path, err)
	}
	switch {
	case magic[0] == 'C' && magic[1] == 'D' && magic[2] == 'F':
		return FormatNetCDF3, nil
	case bytes.Equal(magic[:], hdf5Magic):
		return FormatHDF5, nil
	}
	return "", fmt.Errorf("%s is not a netcdf file", path)
}
