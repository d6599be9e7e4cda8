// Package colstore implements the self-describing columnar dataset
// layout used as the fallback for paths with no recognized genomic
// extension. A dataset is a directory of recordio part files plus JSON
// sidecar files holding the metadata components:
//
//	part-00000.rio   gob-encoded records, zstd-transformed
//	_seqdict         []metadata.Contig
//	_samples         []metadata.Sample
//	_rgdict          []metadata.RecordGroup
//	_header          []metadata.HeaderLine
//
// The record schema name is stored in the recordio header under the
// "schema" key and checked on every scan.
package colstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"path"
	"reflect"
	"sort"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/gds/metadata"
	"github.com/grailbio/gds/stream"
	"github.com/pkg/errors"
)

// Schema names for the unified record kinds.
const (
	SchemaAlignments = "alignments"
	SchemaVariants   = "variants"
	SchemaFeatures   = "features"
	SchemaFragments  = "fragments"
	SchemaSequences  = "sequences"
)

const (
	schemaKey   = "schema"
	partSuffix  = ".rio"
	partPrefix  = "part-"
	seqdictFile = "_seqdict"
	samplesFile = "_samples"
	rgdictFile  = "_rgdict"
	headerFile  = "_header"
)

func init() {
	recordiozstd.Init()
	// INFO values are interface-typed; gob needs the concrete types
	// registered before they cross a part-file boundary.
	gob.Register(int(0))
	gob.Register(float64(0))
	gob.Register("")
	gob.Register(false)
	gob.Register([]interface{}{})
}

// Metadata bundles the sidecar components of a columnar dataset.
// Components a dataset does not carry are left zero.
type Metadata struct {
	Sequences    metadata.SequenceDictionary
	Samples      []metadata.Sample
	RecordGroups metadata.RecordGroupDictionary
	HeaderLines  []metadata.HeaderLine
}

// ScanOpts controls a columnar scan. Predicate is pushed down into the
// record reader: rejected records become nil placeholders inside the
// reader and never surface. DropFields clears the named struct fields
// on every record that does surface.
type ScanOpts[T any] struct {
	Predicate  func(*T) bool
	DropFields []string
}

// Save writes recs and meta as a columnar dataset directory at dir.
// It always writes all four sidecars, so a saved dataset reads back
// with exactly the metadata it was given.
func Save[T any](ctx context.Context, dir, schema string, meta Metadata, recs stream.Stream[T]) (err error) {
	if err = writeSidecar(ctx, dir+"/"+seqdictFile, meta.Sequences.Contigs); err != nil {
		return err
	}
	if err = writeSidecar(ctx, dir+"/"+samplesFile, meta.Samples); err != nil {
		return err
	}
	if err = writeSidecar(ctx, dir+"/"+rgdictFile, meta.RecordGroups.Groups); err != nil {
		return err
	}
	if err = writeSidecar(ctx, dir+"/"+headerFile, meta.HeaderLines); err != nil {
		return err
	}

	partPath := dir + "/" + partPrefix + "00000" + partSuffix
	var dst file.File
	if dst, err = file.Create(ctx, partPath); err != nil {
		return errors.Wrapf(err, "colstore: create %s", partPath)
	}
	defer file.CloseAndReport(ctx, dst, &err)

	w := recordio.NewWriter(dst.Writer(ctx), recordio.WriterOpts{
		Marshal:      marshalGob,
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(schemaKey, schema)
	for recs.Scan() {
		rec := recs.Record()
		w.Append(&rec)
	}
	if err = recs.Err(); err != nil {
		return err
	}
	if err = w.Finish(); err != nil {
		return errors.Wrapf(err, "colstore: write %s", partPath)
	}
	return recs.Close()
}

// ReadMetadata reads the sidecars of one dataset directory. A missing
// sidecar yields a zero component; a sidecar that exists but does not
// parse is an error.
func ReadMetadata(ctx context.Context, dir string) (Metadata, error) {
	var meta Metadata
	if err := readSidecar(ctx, dir+"/"+seqdictFile, &meta.Sequences.Contigs); err != nil {
		return Metadata{}, err
	}
	if err := readSidecar(ctx, dir+"/"+samplesFile, &meta.Samples); err != nil {
		return Metadata{}, err
	}
	if err := readSidecar(ctx, dir+"/"+rgdictFile, &meta.RecordGroups.Groups); err != nil {
		return Metadata{}, err
	}
	if err := readSidecar(ctx, dir+"/"+headerFile, &meta.HeaderLines); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// Scan returns a lazy stream over the part files of the given dataset
// directories, in directory order then part order. Opening and schema
// checking happen on the first Scan call.
func Scan[T any](ctx context.Context, dirs []string, schema string, opts ScanOpts[T]) stream.Stream[T] {
	return stream.Deferred(func() (stream.Stream[T], error) {
		var parts []string
		for _, dir := range dirs {
			p, err := partFiles(ctx, dir)
			if err != nil {
				return nil, err
			}
			if len(p) == 0 {
				return nil, errors.Errorf("colstore: no part files in %s", dir)
			}
			parts = append(parts, p...)
		}
		return &partStream[T]{ctx: ctx, schema: schema, parts: parts, opts: opts}, nil
	})
}

// Schema reports the schema name recorded in the part-file headers of
// the dataset directory at dir. The writer stamps every part with the
// same schema, so reading the first part suffices.
func Schema(ctx context.Context, dir string) (string, error) {
	parts, err := partFiles(ctx, dir)
	if err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "", errors.Errorf("colstore: no part files in %s", dir)
	}
	f, err := file.Open(ctx, parts[0])
	if err != nil {
		return "", errors.Wrapf(err, "colstore: open %s", parts[0])
	}
	defer func() { _ = f.Close(ctx) }()
	sc := recordio.NewScanner(f.Reader(ctx), recordio.ScannerOpts{})
	for _, kv := range sc.Header() {
		if kv.Key == schemaKey {
			if schema, ok := kv.Value.(string); ok {
				return schema, nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", errors.Wrapf(err, "colstore: read %s", parts[0])
	}
	return "", errors.Errorf("colstore: %s: no schema header", parts[0])
}

func partFiles(ctx context.Context, dir string) ([]string, error) {
	lister := file.List(ctx, dir, false)
	var parts []string
	for lister.Scan() {
		base := path.Base(lister.Path())
		if strings.HasPrefix(base, partPrefix) && strings.HasSuffix(base, partSuffix) {
			parts = append(parts, lister.Path())
		}
	}
	if err := lister.Err(); err != nil {
		return nil, errors.Wrapf(err, "colstore: list %s", dir)
	}
	sort.Strings(parts)
	return parts, nil
}

type partStream[T any] struct {
	ctx    context.Context
	schema string
	parts  []string
	opts   ScanOpts[T]

	idx int
	f   file.File
	sc  recordio.Scanner
	cur *T
	err error
}

func (s *partStream[T]) Scan() bool {
	for s.err == nil {
		if s.sc == nil {
			if s.idx >= len(s.parts) {
				return false
			}
			if s.err = s.openPart(s.parts[s.idx]); s.err != nil {
				return false
			}
		}
		for s.sc.Scan() {
			v := s.sc.Get()
			if v == nil { // predicate placeholder
				continue
			}
			rec := v.(*T)
			if len(s.opts.DropFields) > 0 {
				dropFields(rec, s.opts.DropFields)
			}
			s.cur = rec
			return true
		}
		if err := s.sc.Err(); err != nil {
			s.err = errors.Wrapf(err, "colstore: read %s", s.parts[s.idx])
		}
		s.closePart()
		s.idx++
	}
	return false
}

func (s *partStream[T]) openPart(p string) error {
	f, err := file.Open(s.ctx, p)
	if err != nil {
		return errors.Wrapf(err, "colstore: open %s", p)
	}
	sc := recordio.NewScanner(f.Reader(s.ctx), recordio.ScannerOpts{
		Unmarshal: s.unmarshal,
	})
	got := ""
	for _, kv := range sc.Header() {
		if kv.Key == schemaKey {
			got, _ = kv.Value.(string)
		}
	}
	if got != s.schema {
		_ = f.Close(s.ctx)
		return errors.Errorf("colstore: %s: schema %q, want %q", p, got, s.schema)
	}
	s.f, s.sc = f, sc
	return nil
}

func (s *partStream[T]) closePart() {
	if s.f != nil {
		if err := s.f.Close(s.ctx); err != nil && s.err == nil {
			s.err = err
		}
	}
	s.f, s.sc = nil, nil
}

func (s *partStream[T]) Record() T    { return *s.cur }
func (s *partStream[T]) Err() error   { return s.err }
func (s *partStream[T]) Close() error {
	err := s.err
	s.closePart()
	s.parts = nil
	if err == nil {
		err = s.err
	}
	return err
}

func (s *partStream[T]) unmarshal(in []byte) (interface{}, error) {
	rec := new(T)
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(rec); err != nil {
		return nil, err
	}
	if s.opts.Predicate != nil && !s.opts.Predicate(rec) {
		return nil, nil
	}
	return rec, nil
}

func marshalGob(scratch []byte, v interface{}) ([]byte, error) {
	buf := bytes.NewBuffer(scratch[:0])
	if err := gob.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func dropFields[T any](rec *T, fields []string) {
	v := reflect.ValueOf(rec).Elem()
	for _, name := range fields {
		f := v.FieldByName(name)
		if f.IsValid() && f.CanSet() {
			f.Set(reflect.Zero(f.Type()))
		}
	}
}

func writeSidecar(ctx context.Context, p string, v interface{}) (err error) {
	var dst file.File
	if dst, err = file.Create(ctx, p); err != nil {
		return errors.Wrapf(err, "colstore: create %s", p)
	}
	defer file.CloseAndReport(ctx, dst, &err)
	if err = json.NewEncoder(dst.Writer(ctx)).Encode(v); err != nil {
		return errors.Wrapf(err, "colstore: write %s", p)
	}
	return nil
}

func readSidecar(ctx context.Context, p string, v interface{}) (err error) {
	if _, err = file.Stat(ctx, p); err != nil {
		return nil // absent component
	}
	var src file.File
	if src, err = file.Open(ctx, p); err != nil {
		return errors.Wrapf(err, "colstore: open %s", p)
	}
	defer file.CloseAndReport(ctx, src, &err)
	if err = json.NewDecoder(src.Reader(ctx)).Decode(v); err != nil {
		return errors.Wrapf(err, "colstore: parse %s", p)
	}
	return nil
}
