// gds-info prints the reconciled metadata of any loadable dataset
// path: the merged sequence dictionary, record groups or samples, and,
// for variant inputs, the cleaned header-line set.
//
// Usage:
//
//	gds-info [-kind alignments|variants|features|fragments|sequences] [-stringency strict|lenient|silent] path
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/gds/fileformat"
	"github.com/grailbio/gds/loader"
	"github.com/grailbio/gds/metadata"
)

var (
	kindFlag       = flag.String("kind", "", "Data kind to load; inferred from the path extension when empty.")
	stringencyFlag = flag.String("stringency", "strict", "Validation stringency: strict, lenient, or silent.")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gds-info [flags] path\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	stringency, err := metadata.ParseStringency(strings.ToUpper(*stringencyFlag))
	if err != nil {
		log.Fatalf("gds-info: %v", err)
	}
	path := flag.Arg(0)
	kind := *kindFlag
	if kind == "" {
		if kind, err = inferKind(ctx, path); err != nil {
			log.Fatalf("gds-info: %v", err)
		}
	}
	session := loader.New(loader.Opts{Stringency: stringency})
	if err := printInfo(ctx, session, kind, path); err != nil {
		log.Fatalf("gds-info: %v", err)
	}
}

func inferKind(ctx context.Context, path string) (string, error) {
	switch format := fileformat.Classify(path); {
	case format.IsAlignment(), format == fileformat.FASTQ, format == fileformat.InterleavedFASTQ:
		return "alignments", nil
	case format == fileformat.VCF:
		return "variants", nil
	case format.IsFeature():
		return "features", nil
	case format == fileformat.FASTA, format == fileformat.TwoBit:
		return "sequences", nil
	}
	// No recognized extension: a columnar dataset names its own kind in
	// the part-file headers.
	return loader.DetectSchema(ctx, path)
}

func printInfo(ctx context.Context, session *loader.Session, kind, path string) error {
	switch kind {
	case "alignments":
		ds, err := session.LoadAlignments(ctx, path, loader.LoadOpts{})
		if err != nil {
			return err
		}
		defer ds.Reads.Close()
		printDictionary(ds.Sequences)
		printRecordGroups(ds.RecordGroups)
	case "variants":
		ds, err := session.LoadVariants(ctx, path, loader.LoadOpts{})
		if err != nil {
			return err
		}
		defer ds.Variants.Close()
		printDictionary(ds.Sequences)
		fmt.Printf("samples: %d\n", len(ds.Samples))
		for _, s := range ds.Samples {
			fmt.Printf("  %s\n", s.ID)
		}
		fmt.Printf("header lines: %d\n", len(ds.HeaderLines))
		for _, l := range ds.HeaderLines {
			fmt.Printf("  %s\n", l)
		}
	case "features":
		ds, err := session.LoadFeatures(ctx, path, loader.LoadOpts{})
		if err != nil {
			return err
		}
		defer ds.Features.Close()
		printDictionary(ds.Sequences)
	case "fragments":
		ds, err := session.LoadFragments(ctx, path, loader.LoadOpts{})
		if err != nil {
			return err
		}
		defer ds.Fragments.Close()
		printDictionary(ds.Sequences)
		printRecordGroups(ds.RecordGroups)
		fmt.Printf("queryname grouped: %v\n", ds.QuerynameGrouped)
	case "sequences":
		ds, err := session.LoadSequences(ctx, path, loader.LoadOpts{})
		if err != nil {
			return err
		}
		defer ds.Fragments.Close()
		printDictionary(ds.Sequences)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
	return nil
}

func printDictionary(dict metadata.SequenceDictionary) {
	fmt.Printf("contigs: %d\n", dict.Len())
	for _, c := range dict.Contigs {
		if c.Length > 0 {
			fmt.Printf("  %s\t%d\n", c.Name, c.Length)
		} else {
			fmt.Printf("  %s\t(unknown length)\n", c.Name)
		}
	}
}

func printRecordGroups(groups metadata.RecordGroupDictionary) {
	fmt.Printf("record groups: %d\n", len(groups.Groups))
	for _, g := range groups.Groups {
		fmt.Printf("  %s\tsample=%s\tlibrary=%s\tplatform=%s\n", g.ID, g.Sample, g.Library, g.Platform)
	}
}
