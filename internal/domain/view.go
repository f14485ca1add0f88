package domain

import "strings"

// View names are a deterministic function of their key so a lost view can
// always be rebuilt and located again. The naming convention is part of
// the external contract and must stay bit-stable:
//
//	base view:   <sanitizedOwnerId>_file_<sanitizedSourceId>
//	merged view: merged_<ownerId>_<sourceId>_<mergeName>
//
// SanitizeIdentifier strips every character outside [A-Za-z0-9_].
func SanitizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// ViewName returns the deterministic base view name for a source.
func ViewName(ownerID, sourceID string) string {
	return SanitizeIdentifier(ownerID) + "_file_" + SanitizeIdentifier(sourceID)
}

// LegacyViewName returns the older naming convention still found in
// deployments that predate the owner-prefixed scheme.
func LegacyViewName(ownerID, sourceID string) string {
	return "file_" + SanitizeIdentifier(sourceID) + "_" + SanitizeIdentifier(ownerID)
}

// MergedViewName returns the deterministic view name for a merged-column
// definition.
func MergedViewName(ownerID, sourceID, mergeName string) string {
	return "merged_" + SanitizeIdentifier(ownerID) + "_" + SanitizeIdentifier(sourceID) + "_" + SanitizeIdentifier(mergeName)
}
