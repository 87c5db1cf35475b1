// Package bundle loads rule updates from files dropped on disk, the
// distribution path for clinics without reliable connectivity. Bundles
// pass through the same checksum verification as control-plane updates.
package bundle
