package normalize

// Extractors returns the current extractor for every supported site, keyed
// by site identifier.
func Extractors() map[string]TableExtractor {
	out := make(map[string]TableExtractor)
	for _, e := range []TableExtractor{NewNoticiasAgricolasV1(), NewCepeaV1()} {
		out[e.Site()] = e
	}
	return out
}
