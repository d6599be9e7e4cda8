package metadata

// SupportedHeaderLines is the built-in registry of known FORMAT and
// INFO declarations. Every cleaned header-line set contains each of
// these exactly once, regardless of what the input files declared; an
// input declaration that agrees in type is redundant and replaced by
// the registry's canonical line, while one that conflicts is handled
// per the validation stringency.
var SupportedHeaderLines = []HeaderLine{
	{Kind: InfoLine, ID: "AC", Number: "A", Type: "Integer", Description: "Allele count in genotypes, for each ALT allele, in the same order as listed"},
	{Kind: InfoLine, ID: "AF", Number: "A", Type: "Float", Description: "Allele Frequency, for each ALT allele, in the same order as listed"},
	{Kind: InfoLine, ID: "AN", Number: "1", Type: "Integer", Description: "Total number of alleles in called genotypes"},
	{Kind: InfoLine, ID: "DP", Number: "1", Type: "Integer", Description: "Combined depth across samples"},
	{Kind: InfoLine, ID: "END", Number: "1", Type: "Integer", Description: "End position (for use with symbolic alleles)"},
	{Kind: InfoLine, ID: "MQ", Number: "1", Type: "Float", Description: "RMS mapping quality"},
	{Kind: InfoLine, ID: "MQ0", Number: "1", Type: "Integer", Description: "Number of MAPQ == 0 reads covering this record"},
	{Kind: InfoLine, ID: "SOMATIC", Number: "0", Type: "Flag", Description: "Indicates that the record is a somatic mutation"},
	{Kind: FormatLine, ID: "GT", Number: "1", Type: "String", Description: "Genotype"},
	{Kind: FormatLine, ID: "GQ", Number: "1", Type: "Integer", Description: "Conditional genotype quality"},
	{Kind: FormatLine, ID: "DP", Number: "1", Type: "Integer", Description: "Read depth at this position for this sample"},
	{Kind: FormatLine, ID: "AD", Number: "R", Type: "Integer", Description: "Read depth for each allele"},
	{Kind: FormatLine, ID: "PL", Number: "G", Type: "Integer", Description: "Phred-scaled genotype likelihoods rounded to the closest integer"},
	{Kind: FormatLine, ID: "MIN_DP", Number: "1", Type: "Integer", Description: "Minimum DP observed within the GVCF block"},
	{Kind: FormatLine, ID: "PS", Number: "1", Type: "Integer", Description: "Phasing set"},
	{Kind: FormatLine, ID: "PQ", Number: "1", Type: "Integer", Description: "Phasing quality"},
	{Kind: FormatLine, ID: "FT", Number: "1", Type: "String", Description: "Genotype filters"},
}

type lineKey struct {
	kind LineKind
	id   string
}

var supportedByKey = func() map[lineKey]HeaderLine {
	m := make(map[lineKey]HeaderLine, len(SupportedHeaderLines))
	for _, l := range SupportedHeaderLines {
		m[lineKey{l.Kind, l.ID}] = l
	}
	return m
}()
