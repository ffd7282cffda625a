package constants

// Default event selection used for light-curve extraction.
const (
	DefaultQualityFlag   = "#XMMEA_EP"
	DefaultMaxPattern    = 4
	DefaultPIMin         = 500
	DefaultPIMax         = 2000
	DefaultTimeBin       = 1000 // seconds
	BackgroundAnnulusPad = 2480 // physical units added to the source radius
	RegionMatchTolerance = 100  // physical units, per axis
)
