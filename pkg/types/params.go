package types

// BaseParams holds the fields shared by every process variant
type BaseParams struct {
	Site    *Site
	Date    Date
	Product *Product
}

// Base returns the shared fields
func (b *BaseParams) Base() *BaseParams {
	return b
}

// ProcessParams is the runtime classification of a task. It has three
// concrete shapes: InstrumentParams for Level-1b instrument products,
// ModelParams for model and model-evaluation products, and
// ProductParams for everything else.
type ProcessParams interface {
	// Kind selects the dispatch row of the task matrix
	Kind() ProductKind

	// Base exposes the shared site/date/product fields
	Base() *BaseParams
}

// InstrumentParams targets a Level-1b instrument product
type InstrumentParams struct {
	BaseParams
	Instrument *InstrumentInfo
}

// Kind returns the instrument dispatch row
func (p *InstrumentParams) Kind() ProductKind {
	return KindInstrument
}

// ModelParams targets the model product or a Level-3 evaluation product
type ModelParams struct {
	BaseParams
	Model *Model
}

// Kind returns the model or evaluation dispatch row
func (p *ModelParams) Kind() ProductKind {
	if p.Product != nil && p.Product.HasType(ProductTypeEvaluation) {
		return KindEvaluation
	}
	return KindModel
}

// ProductParams targets a derived product; Instrument is an optional
// preference used by products that stay instrument-scoped.
type ProductParams struct {
	BaseParams
	Instrument *InstrumentInfo
}

// Kind returns the plain product dispatch row
func (p *ProductParams) Kind() ProductKind {
	return KindProduct
}

// UuidAccumulator carries the file identities collected during one
// process task: the raw inputs consumed, the volatile predecessor being
// replaced (if any), and the product file that came out.
type UuidAccumulator struct {
	Raw      []string
	Volatile *string
	Product  string
}
