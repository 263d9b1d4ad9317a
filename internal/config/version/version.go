package version

// Build metadata, replaced through -ldflags at release time.
var (
	Version   = "0.1.0"
	Toolname  = "next-dev-utils"
	BuildDate = "unknown"
	CommitSHA = "unknown"
)
