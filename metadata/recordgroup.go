package metadata

// Sample identifies a biological sample, optionally with free-form
// attributes. Sample lists are order-preserving; the merger never
// deduplicates them, that is left to downstream consumers.
type Sample struct {
	ID         string
	Attributes map[string]string
}

// RecordGroup describes one read group of an alignment file: the
// partition of records originating from one sequencing run of one
// sample.
type RecordGroup struct {
	ID                  string
	Sample              string
	Library             string
	Platform            string
	PlatformUnit        string
	SequencingCenter    string
	Description         string
	RunDate             string
	FlowOrder           string
	KeySequence         string
	PredictedInsertSize int
}

// RecordGroupDictionary maps record group identifiers to their
// descriptors. Merging is append-only: groups from different files are
// concatenated, never merged key by key.
type RecordGroupDictionary struct {
	Groups []RecordGroup
}

// Merge appends the other dictionary's groups to this one.
func (d RecordGroupDictionary) Merge(other RecordGroupDictionary) RecordGroupDictionary {
	merged := make([]RecordGroup, 0, len(d.Groups)+len(other.Groups))
	merged = append(merged, d.Groups...)
	merged = append(merged, other.Groups...)
	return RecordGroupDictionary{Groups: merged}
}

// ByID returns the first group with the given identifier.
func (d RecordGroupDictionary) ByID(id string) (RecordGroup, bool) {
	for _, g := range d.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return RecordGroup{}, false
}

// Samples derives the list of distinct samples referenced by the
// dictionary's groups, in order of first appearance. Groups without a
// sample linkage contribute nothing.
func (d RecordGroupDictionary) Samples() []Sample {
	var samples []Sample
	seen := make(map[string]bool)
	for _, g := range d.Groups {
		if g.Sample == "" || seen[g.Sample] {
			continue
		}
		seen[g.Sample] = true
		samples = append(samples, Sample{ID: g.Sample})
	}
	return samples
}
