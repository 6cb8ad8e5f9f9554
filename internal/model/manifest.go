package model

// Manifest is the server's full description of one immutable asset bundle.
// URLVersions is authoritative for "what changed"; the mapping tables are
// alias indirections resolved only after a swap.
type Manifest struct {
	VersionToken       string            `json:"versionToken"`
	URLVersions        map[string]string `json:"urlVersions"`
	URLMappings        map[string]string `json:"urlMappings,omitempty"`
	URLMappingsNoCache map[string]string `json:"urlMappingsNoCache,omitempty"`
}

type ManifestResponse struct {
	Manifest Manifest `json:"manifest"`
}

type VersionInfoResponse struct {
	VersionToken string `json:"versionToken"`
}

// VersionedPath is the resource form the cache engine downloads and the
// target aliases are rewritten to: path + "?" + hash. The hash is appended
// exactly once.
func VersionedPath(path, hash string) string {
	return path + "?" + hash
}
