package badger

// Key prefixes for different data types
const (
	manifestEntryPrefix = "manent:"
	vectorRecordPrefix  = "vecrec:"
	vectorDimensionKey  = "vecdim"
)

// makeManifestKey generates a key for a manifest entry by document identity.
func makeManifestKey(identity string) []byte {
	return append([]byte(manifestEntryPrefix), identity...)
}

// makeVectorKey generates a key for a vector record by id.
func makeVectorKey(id string) []byte {
	return append([]byte(vectorRecordPrefix), id...)
}

// identityFromManifestKey strips the manifest prefix.
func identityFromManifestKey(key []byte) string {
	return string(key[len(manifestEntryPrefix):])
}
