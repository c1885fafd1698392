package version

// Version is the current version of argo-batch.
// This value is set at build time using ldflags:
// -ldflags "-X github.com/rxtech-lab/argo-batch/internal/version.Version=1.2.3"
// The default value "main" indicates a development build.
var Version = "main"

// SchemaVersion is written into every persisted artifact (batch results,
// gap filter results, entry reports, positions).
const SchemaVersion = "1.0.0"

// GetVersion returns the current version of the binary.
func GetVersion() string {
	return Version
}
