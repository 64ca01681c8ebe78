package housekeeping

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/log"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/science"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// Request hands one day of raw instrument uploads to the housekeeping
// subsystem. Paths and UUIDs are aligned slices.
type Request struct {
	Site          string     `json:"site"`
	Date          types.Date `json:"date"`
	InstrumentID  string     `json:"instrumentId"`
	InstrumentPID string     `json:"instrumentPid,omitempty"`
	RawPaths      []string   `json:"rawPaths"`
	UUIDs         []string   `json:"uuids"`
}

// Response reports what the subsystem ingested
type Response struct {
	Records int `json:"records"`
}

// Ingester feeds raw instrument diagnostics into the housekeeping
// time-series store. The store itself is outside this codebase.
type Ingester interface {
	Ingest(ctx context.Context, req *Request) (*Response, error)
}

// IngesterFunc adapts a function to the Ingester interface
type IngesterFunc func(ctx context.Context, req *Request) (*Response, error)

func (f IngesterFunc) Ingest(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Runner delegates ingestion to the toolbox binary
type Runner struct {
	toolbox *science.Toolbox
	logger  zerolog.Logger
}

// New creates a toolbox-backed ingester
func New(toolbox *science.Toolbox) *Runner {
	return &Runner{
		toolbox: toolbox,
		logger:  log.WithComponent("housekeeping"),
	}
}

// Ingest implements Ingester. Unreadable or empty raw files surface as
// skips through the toolbox exit-code contract.
func (r *Runner) Ingest(ctx context.Context, req *Request) (*Response, error) {
	var resp Response
	if err := r.toolbox.Invoke(ctx, "housekeeping", req, &resp); err != nil {
		return nil, err
	}
	r.logger.Info().
		Str("site", req.Site).
		Str("instrument", req.InstrumentID).
		Str("date", req.Date.String()).
		Int("records", resp.Records).
		Msg("Housekeeping data ingested")
	return &resp, nil
}
