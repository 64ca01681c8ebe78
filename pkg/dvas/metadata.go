package dvas

import (
	"fmt"
	"time"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// Metadata is the federation boundary document POSTed to Metadata/add.
// Only the fields DVAS requires are populated: timestamps, site
// bounding box, PID, ACTRIS variable names, timeliness and compliance.
type Metadata struct {
	MdMetadata            MdMetadata     `json:"md_metadata"`
	MdIdentification      Identification `json:"md_identification"`
	MdActrisSpecific      ActrisSpecific `json:"md_actris_specific"`
	MdContentInformation  ContentInfo    `json:"md_content_information"`
	MdDistribution        []Distribution `json:"md_distribution_information"`
	GeographicBoundingBox BoundingBox    `json:"ex_geographic_bounding_box"`
	TemporalExtent        TemporalExtent `json:"ex_temporal_extent"`
}

type MdMetadata struct {
	FileIdentifier string `json:"file_identifier"`
	Datestamp      string `json:"datestamp"`
	Provider       string `json:"provider"`
}

type Identification struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
}

type ActrisSpecific struct {
	FacilityIdentifier string `json:"facility_identifier"`
	NetworkAffiliation string `json:"network_affiliation"`
	DataProductType    string `json:"data_product_type"`
}

type ContentInfo struct {
	AttributeDescriptions []string `json:"attribute_descriptions"`
}

type Distribution struct {
	DataFormat  string `json:"dataformat"`
	VersionDate string `json:"version_date"`
	Protocol    string `json:"protocol"`
	DatasetURL  string `json:"dataset_url"`
}

type BoundingBox struct {
	WestBoundLongitude float64 `json:"west_bound_longitude"`
	EastBoundLongitude float64 `json:"east_bound_longitude"`
	SouthBoundLatitude float64 `json:"south_bound_latitude"`
	NorthBoundLatitude float64 `json:"north_bound_latitude"`
}

type TemporalExtent struct {
	TimePeriodBegin string `json:"time_period_begin"`
	TimePeriodEnd   string `json:"time_period_end"`
}

// Compliance maps a measurement date to its ACTRIS compliance level.
// Data measured before the data-policy cutoff is legacy.
func Compliance(date types.Date) string {
	if date.Before(complianceCutoff) {
		return "ACTRIS legacy"
	}
	return "ACTRIS associated"
}

func timelinessLabel(t types.Timeliness) string {
	switch t {
	case types.TimelinessNrt:
		return "NRT data product"
	case types.TimelinessRrt:
		return "RRT data product"
	default:
		return "scheduled data product"
	}
}

func (c *Client) buildMetadata(file *types.ProductFile, variables []types.ProductVariable) *Metadata {
	var names []string
	seen := make(map[string]bool)
	for _, v := range variables {
		if v.ActrisName == nil || seen[*v.ActrisName] {
			continue
		}
		seen[*v.ActrisName] = true
		names = append(names, *v.ActrisName)
	}

	day := file.MeasurementDate.Time()
	return &Metadata{
		MdMetadata: MdMetadata{
			FileIdentifier: file.UUID,
			Datestamp:      time.Now().UTC().Format(time.RFC3339),
			Provider:       "CLU",
		},
		MdIdentification: Identification{
			Identifier: *file.PID,
			Title: fmt.Sprintf("%s data derived from cloud remote sensing measurements at %s",
				file.Product.HumanReadableName, file.Site.HumanReadableName),
		},
		MdActrisSpecific: ActrisSpecific{
			FacilityIdentifier: *file.Site.DvasID,
			NetworkAffiliation: Compliance(file.MeasurementDate),
			DataProductType:    timelinessLabel(file.Timeliness),
		},
		MdContentInformation: ContentInfo{AttributeDescriptions: names},
		MdDistribution: []Distribution{{
			DataFormat:  "netcdf",
			VersionDate: file.UpdatedAt.UTC().Format(time.RFC3339),
			Protocol:    "HTTP",
			DatasetURL:  c.cfg.PublicURL + "/file/" + file.UUID,
		}},
		GeographicBoundingBox: BoundingBox{
			WestBoundLongitude: file.Site.Longitude,
			EastBoundLongitude: file.Site.Longitude,
			SouthBoundLatitude: file.Site.Latitude,
			NorthBoundLatitude: file.Site.Latitude,
		},
		TemporalExtent: TemporalExtent{
			TimePeriodBegin: day.Format(time.RFC3339),
			TimePeriodEnd:   day.Add(24*time.Hour - time.Second).Format(time.RFC3339),
		},
	}
}
