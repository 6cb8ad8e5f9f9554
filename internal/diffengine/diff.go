// Package diffengine computes the changed-file set between the stored asset
// hash snapshot and a freshly fetched manifest.
package diffengine

// Changed returns the entries of new whose hash differs from, or is absent
// in, old. Files present only in old are not surfaced: deletions are not
// part of the update model, stale files simply stop being referenced.
func Changed(old, new map[string]string) map[string]string {
	changed := make(map[string]string, len(new))
	for path, hash := range new {
		if prev, ok := old[path]; !ok || prev != hash {
			changed[path] = hash
		}
	}
	return changed
}
