package constants

import (
	"fmt"
	"strings"
)

// Suffixes used to locate the per-observation input artifacts.
const (
	EventListSuffix = "PIEVLI0000.FILTER"
	ImageSuffix     = "PIEVLI0000_FULL.IMG"
	MaskSuffix      = "PIEVLI0000_FULL.MSK"
)

const (
	CalibrationIndexName = "ccf.cif"
	RegionsDirName       = "regions"
	MasksDirName         = "masks"

	RegionExt        = ".reg"
	SourceMaskExt    = ".SRCMSK"
	LightCurveExt    = ".LC"
	TotalMaskExt     = ".TOTALSRCMSK"
	StagedBkgMask    = "bkg.SRCMSK"
	StagedSourceLC   = "source.LC"
	StagedBkgLC      = "bkg.LC"
	StagedCorrected  = "corrlc.LC"
	ExposureFraction = "FRACEXP"

	// detection table with one row per source found in the observation
	DetectionTableName = "extracted_counts.csv"
)

// DetectionRegionFile is the per-observation region file with one circle per detected source.
func DetectionRegionFile(obsID string) string {
	return fmt.Sprintf("ds9_regions_%s%s", obsID, RegionExt)
}

// TotalMaskFile is the observation mask with every detected source excluded.
func TotalMaskFile(obsID string) string {
	return obsID + TotalMaskExt
}

// LightCurveFile names an output light curve for one object and role.
func LightCurveFile(obsID, objectID string, role Role) string {
	return fmt.Sprintf("%s_%s_%s%s", obsID, objectID, role, LightCurveExt)
}

// MaskFileForRegion maps a region file name to its mask file name.
func MaskFileForRegion(regionFile string) string {
	return strings.TrimSuffix(regionFile, RegionExt) + SourceMaskExt
}
