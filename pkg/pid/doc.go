/*
Package pid mints persistent identifiers for finalized product files.

A frozen product carries a handle PID resolving to its landing page on
the public portal. The client reads the file's uuid from its NetCDF
global attributes, obtains a handle from the PID service (or reuses or
fakes one), and stamps the handle back into the file.

# Usage

	client := pid.NewClient(pid.Config{
		ServiceURL: cfg.PIDServiceURL,
		PublicURL:  cfg.DataportalPublicURL,
		TestEnv:    cfg.PIDServiceTestEnv,
	})

	result, err := client.AddPIDToFile(ctx, path, existingPID)
	// result.UUID, result.PID, result.LandingURL

# Idempotency

The PID service returns the same handle for repeated (uuid, url)
pairs. Passing an existing PID skips minting entirely, which is how
MINOR patches and interrupted freezes re-run safely.

# Integration Points

  - pkg/worker: PID attachment in the process pipeline and freeze task
  - pkg/ncdf: attribute read/write
  - pkg/metrics: PidsMinted counter
*/
package pid
