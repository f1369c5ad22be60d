// Package export writes summary entries as parquet rows, one per
// (host, bucket), with every counter as its own column.
package export

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/cdxsum/pkg/counter"
	"github.com/eunmann/cdxsum/pkg/summary"
)

// Row is one (host, bucket) pair of a summary.
type Row struct {
	Host   string `parquet:"host,dict"`
	Bucket int32  `parquet:"bucket"`
	Year   int32  `parquet:"year"`

	NHTML  uint64 `parquet:"n_html"`
	NImage uint64 `parquet:"n_image"`
	NVideo uint64 `parquet:"n_video"`
	NAudio uint64 `parquet:"n_audio"`
	NPDF   uint64 `parquet:"n_pdf"`
	NJS    uint64 `parquet:"n_js"`
	NJSON  uint64 `parquet:"n_json"`
	NFont  uint64 `parquet:"n_font"`
	NCSS   uint64 `parquet:"n_css"`
	NOther uint64 `parquet:"n_other"`
	NHTTP  uint64 `parquet:"n_http"`
	NHTTPS uint64 `parquet:"n_https"`
	NTotal uint64 `parquet:"n_total"`

	SHTML  uint64 `parquet:"s_html"`
	SImage uint64 `parquet:"s_image"`
	SVideo uint64 `parquet:"s_video"`
	SAudio uint64 `parquet:"s_audio"`
	SPDF   uint64 `parquet:"s_pdf"`
	SJS    uint64 `parquet:"s_js"`
	SJSON  uint64 `parquet:"s_json"`
	SFont  uint64 `parquet:"s_font"`
	SCSS   uint64 `parquet:"s_css"`
	SOther uint64 `parquet:"s_other"`
	SHTTP  uint64 `parquet:"s_http"`
	SHTTPS uint64 `parquet:"s_https"`
	STotal uint64 `parquet:"s_total"`
}

// NewRow flattens the counters of one bucket.
func NewRow(host string, bucket int, v *counter.Vector) Row {
	return Row{
		Host:   host,
		Bucket: int32(bucket),
		Year:   int32(summary.YearOf(bucket)),

		NHTML: v.N[counter.HTML], NImage: v.N[counter.Image], NVideo: v.N[counter.Video],
		NAudio: v.N[counter.Audio], NPDF: v.N[counter.PDF], NJS: v.N[counter.JS],
		NJSON: v.N[counter.JSON], NFont: v.N[counter.Font], NCSS: v.N[counter.CSS],
		NOther: v.N[counter.Other], NHTTP: v.N[counter.HTTP], NHTTPS: v.N[counter.HTTPS],
		NTotal: v.N[counter.Total],

		SHTML: v.S[counter.HTML], SImage: v.S[counter.Image], SVideo: v.S[counter.Video],
		SAudio: v.S[counter.Audio], SPDF: v.S[counter.PDF], SJS: v.S[counter.JS],
		SJSON: v.S[counter.JSON], SFont: v.S[counter.Font], SCSS: v.S[counter.CSS],
		SOther: v.S[counter.Other], SHTTP: v.S[counter.HTTP], SHTTPS: v.S[counter.HTTPS],
		STotal: v.S[counter.Total],
	}
}

// Vector rebuilds the counter vector of r.
func (r Row) Vector() counter.Vector {
	var v counter.Vector
	v.N = [counter.NumCategories]uint64{
		r.NHTML, r.NImage, r.NVideo, r.NAudio, r.NPDF, r.NJS, r.NJSON,
		r.NFont, r.NCSS, r.NOther, r.NHTTP, r.NHTTPS, r.NTotal,
	}
	v.S = [counter.NumCategories]uint64{
		r.SHTML, r.SImage, r.SVideo, r.SAudio, r.SPDF, r.SJS, r.SJSON,
		r.SFont, r.SCSS, r.SOther, r.SHTTP, r.SHTTPS, r.STotal,
	}
	return v
}

const batchSize = 4096

// Writer is a summary.Emitter that writes parquet rows.
type Writer struct {
	pw    *parquet.GenericWriter[Row]
	batch []Row
	rows  int64
	hosts int64
}

// NewWriter starts a zstd-compressed parquet file on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		pw:    parquet.NewGenericWriter[Row](w, parquet.Compression(&parquet.Zstd)),
		batch: make([]Row, 0, batchSize),
	}
}

// Emit buffers one row per bucket of key, in bucket order.
func (w *Writer) Emit(key string, buckets summary.Buckets) error {
	for _, bucket := range buckets.Keys() {
		w.batch = append(w.batch, NewRow(key, bucket, buckets[bucket]))
		if len(w.batch) == batchSize {
			if err := w.flushBatch(); err != nil {
				return err
			}
		}
	}
	w.hosts++
	return nil
}

func (w *Writer) flushBatch() error {
	if len(w.batch) == 0 {
		return nil
	}
	n, err := w.pw.Write(w.batch)
	w.rows += int64(n)
	w.batch = w.batch[:0]
	if err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	return nil
}

// Close writes buffered rows and the parquet footer. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if err := w.flushBatch(); err != nil {
		return err
	}
	if err := w.pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// Rows returns the number of rows written.
func (w *Writer) Rows() int64 {
	return w.rows
}

// Hosts returns the number of keys emitted.
func (w *Writer) Hosts() int64 {
	return w.hosts
}
