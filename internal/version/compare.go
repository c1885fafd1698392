package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
)

// CheckSchemaCompatibility checks whether an artifact written with
// artifactVersion can be read by a binary using currentVersion.
//
// Compatibility Rules:
//   - If either version is "main" (development build), compatibility check is skipped
//   - Major versions must match exactly
//   - Minor versions must match exactly
//   - Patch versions can differ (e.g., 1.2.0 is compatible with 1.2.5)
//
// Examples:
//   - Current 1.2.0, Artifact 1.2.0 -> OK (exact match)
//   - Current 1.2.1, Artifact 1.2.0 -> OK (patch differs)
//   - Current 1.3.0, Artifact 1.2.0 -> ERROR (minor differs)
//   - Current 2.0.0, Artifact 1.2.0 -> ERROR (major differs)
func CheckSchemaCompatibility(currentVersion, artifactVersion string) error {
	currentVersion = strings.TrimPrefix(currentVersion, "v")
	artifactVersion = strings.TrimPrefix(artifactVersion, "v")

	if currentVersion == "main" || artifactVersion == "main" {
		return nil
	}

	current, err := semver.NewVersion(currentVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid current version '%s'", currentVersion)
	}

	artifact, err := semver.NewVersion(artifactVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid artifact version '%s'", artifactVersion)
	}

	if current.Major() != artifact.Major() {
		return errors.Newf(errors.ErrCodeVersionMismatch,
			"major version mismatch: reader is %d.x.x but artifact was written by %d.x.x",
			current.Major(), artifact.Major())
	}

	if current.Minor() != artifact.Minor() {
		return errors.Newf(errors.ErrCodeVersionMismatch,
			"minor version mismatch: reader is %d.%d.x but artifact was written by %d.%d.x",
			current.Major(), current.Minor(),
			artifact.Major(), artifact.Minor())
	}

	return nil
}

// CheckArtifact checks an artifact's schema version against SchemaVersion.
func CheckArtifact(artifactVersion string) error {
	return CheckSchemaCompatibility(SchemaVersion, artifactVersion)
}
