package processor

import (
	"fmt"
	"strings"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// identifierAliases are historical product identifiers kept for
// filename continuity.
var identifierAliases = map[string]string{
	types.ProductIwc: "iwc-Z-T-method",
	types.ProductLwc: "lwc-scaled-adiabatic",
}

// Filename synthesizes the deterministic filename for a first-ever
// output; an existing product file keeps its filename across runs.
func Filename(params types.ProcessParams) string {
	base := params.Base()
	date := base.Date.Compact()

	switch t := params.(type) {
	case *types.ModelParams:
		if base.Product.ID == types.ProductModel {
			return fmt.Sprintf("%s_%s_%s.nc", date, base.Site.ID, t.Model.ID)
		}
		// evaluation products embed the evaluated model
		return fmt.Sprintf("%s_%s_%s_%s.nc", date, base.Site.ID, identifier(base.Product.ID), t.Model.ID)
	case *types.InstrumentParams:
		return fmt.Sprintf("%s_%s_%s_%s.nc", date, base.Site.ID, t.Instrument.InstrumentID, shortUUID(t.Instrument.UUID))
	case *types.ProductParams:
		if t.Instrument != nil {
			return fmt.Sprintf("%s_%s_%s_%s.nc", date, base.Site.ID, identifier(base.Product.ID), shortUUID(t.Instrument.UUID))
		}
	}
	return fmt.Sprintf("%s_%s_%s.nc", date, base.Site.ID, identifier(base.Product.ID))
}

func identifier(productID string) string {
	if alias, ok := identifierAliases[productID]; ok {
		return alias
	}
	return productID
}

// shortUUID is the 8-character uuid prefix used in filenames and keys
func shortUUID(uuid string) string {
	if len(uuid) < 8 {
		return strings.ToLower(uuid)
	}
	return strings.ToLower(uuid[:8])
}
