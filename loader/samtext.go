package loader

import (
	"strconv"
	"strings"

	"github.com/grailbio/gds/metadata"
)

// parseHeaderText extracts the sequence dictionary and record groups
// from SAM-style @-line header text. The hts reader validates header
// syntax; this only lifts @SQ/@RG tag values into the metadata types,
// so unknown tags are ignored rather than rejected.
func parseHeaderText(text string) (metadata.SequenceDictionary, metadata.RecordGroupDictionary) {
	var dict metadata.SequenceDictionary
	var groups metadata.RecordGroupDictionary
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Split(strings.TrimSuffix(line, "\r"), "\t")
		switch fields[0] {
		case "@SQ":
			tags := headerTags(fields[1:])
			length, _ := strconv.ParseInt(tags["LN"], 10, 64)
			dict.Contigs = append(dict.Contigs, metadata.Contig{
				Name:     tags["SN"],
				Length:   length,
				MD5:      tags["M5"],
				URI:      tags["UR"],
				Assembly: tags["AS"],
				Species:  tags["SP"],
			})
		case "@RG":
			tags := headerTags(fields[1:])
			insertSize, _ := strconv.Atoi(tags["PI"])
			groups.Groups = append(groups.Groups, metadata.RecordGroup{
				ID:                  tags["ID"],
				Sample:              tags["SM"],
				Library:             tags["LB"],
				Platform:            tags["PL"],
				PlatformUnit:        tags["PU"],
				SequencingCenter:    tags["CN"],
				Description:         tags["DS"],
				RunDate:             tags["DT"],
				FlowOrder:           tags["FO"],
				KeySequence:         tags["KS"],
				PredictedInsertSize: insertSize,
			})
		}
	}
	return dict, groups
}

func headerTags(fields []string) map[string]string {
	tags := make(map[string]string, len(fields))
	for _, f := range fields {
		if len(f) >= 3 && f[2] == ':' {
			tags[f[:2]] = f[3:]
		}
	}
	return tags
}
