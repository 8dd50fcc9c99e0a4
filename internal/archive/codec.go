package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/sbinet/npyio/npy"
	"github.com/sbinet/npyio/npz"

	"github.com/roman-kulish/radio-telescope/internal/sdr"
	"github.com/roman-kulish/radio-telescope/internal/telescope"
	"github.com/roman-kulish/radio-telescope/internal/timing"
)

// Archive keys. Every entry except the sample array and the reduced
// spectrum axes is a 0-d scalar, as numpy.savez stores Python and numpy
// scalars.
const (
	KeyData        = "data"
	KeyPSD         = "psd"
	KeyStd         = "std"
	KeyFreqs       = "freqs"
	KeySampleRate  = "sample_rate"
	KeyCenterFreq  = "center_freq"
	KeyGain        = "gain"
	KeyDirect      = "direct"
	KeyUnixTime    = "unix_time"
	KeyJD          = "jd"
	KeyLST         = "lst"
	KeyAlt         = "alt"
	KeyAz          = "az"
	KeyObserverLat = "observer_lat"
	KeyObserverLon = "observer_lon"
	KeyObserverAlt = "observer_alt"
	KeyNBlocks     = "nblocks"
	KeyNSamples    = "nsamples"
	KeySiggenFreq  = "siggen_freq"
	KeySiggenAmp   = "siggen_amp"
	KeySiggenRFOn  = "siggen_rf_on"

	// Ext is the archive file extension
	Ext = ".npz"

	npyExt   = ".npy"
	filePerm = 0o644
)

type dtype int

const (
	dtypeInt8 dtype = iota
	dtypeInt64
	dtypeFloat64
	dtypeBool
	dtypeFloat64s
)

// schema lists the type of every known key. Keys not in the schema are
// ignored on read.
var schema = map[string]dtype{
	KeyData:        dtypeInt8,
	KeyPSD:         dtypeFloat64s,
	KeyStd:         dtypeFloat64,
	KeyFreqs:       dtypeFloat64s,
	KeySampleRate:  dtypeFloat64,
	KeyCenterFreq:  dtypeFloat64,
	KeyGain:        dtypeFloat64,
	KeyDirect:      dtypeBool,
	KeyUnixTime:    dtypeFloat64,
	KeyJD:          dtypeFloat64,
	KeyLST:         dtypeFloat64,
	KeyAlt:         dtypeFloat64,
	KeyAz:          dtypeFloat64,
	KeyObserverLat: dtypeFloat64,
	KeyObserverLon: dtypeFloat64,
	KeyObserverAlt: dtypeFloat64,
	KeyNBlocks:     dtypeInt64,
	KeyNSamples:    dtypeInt64,
	KeySiggenFreq:  dtypeFloat64,
	KeySiggenAmp:   dtypeFloat64,
	KeySiggenRFOn:  dtypeBool,
}

// Field is a single named archive entry
type Field struct {
	Key   string
	Value any
}

// Fields is the key-addressable content of an archive. Scalars are float64,
// int64 or bool; the sample array is an Int8Array and spectrum axes are
// []float64.
type Fields map[string]any

// Keys returns the stored keys in sorted order
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteCalibration writes a calibration archive. tone must hold the state
// queried from the instrument, not the requested one.
func WriteCalibration(path string, samples *sdr.Buffer, rx sdr.Settings, tone Tone, p telescope.Pointing, loc telescope.Location, ts timing.Stamp) error {
	return Write(path, &Record{
		Samples:  samples,
		Receiver: rx,
		Stamp:    ts,
		Pointing: p,
		Observer: loc,
		Tone:     &tone,
	})
}

// WriteObservation writes an observation archive
func WriteObservation(path string, samples *sdr.Buffer, rx sdr.Settings, p telescope.Pointing, loc telescope.Location, ts timing.Stamp) error {
	return Write(path, &Record{
		Samples:  samples,
		Receiver: rx,
		Stamp:    ts,
		Pointing: p,
		Observer: loc,
	})
}

// Write writes exactly one archive file. The file is written next to path and
// renamed into place, so either the full record is at path or the call fails
// and nothing is left behind.
func Write(path string, r *Record) (err error) {
	if err = r.Validate(); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	return writeFields(path, r.Fields())
}

func writeFields(path string, fields []Field) (err error) {
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(filePerm))
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	defer func() { _ = pf.Cleanup() }() // no-op once replaced

	if err = encode(pf, fields); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	if err = pf.CloseAtomicallyReplace(); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	return nil
}

// Fields returns the archive entries of the record in write order
func (r *Record) Fields() []Field {
	meta := Meta{
		Receiver: r.Receiver,
		Stamp:    r.Stamp,
		Pointing: r.Pointing,
		Observer: r.Observer,
		Tone:     r.Tone,
		NBlocks:  r.Samples.BlockCount,
		NSamples: r.Samples.BlockSize,
	}

	return append([]Field{{KeyData, Int8Array{Shape: r.Samples.Shape(), Data: r.Samples.Samples}}}, meta.fields()...)
}

func (m *Meta) fields() []Field {
	fields := []Field{
		{KeySampleRate, m.Receiver.SampleRate},
		{KeyCenterFreq, m.Receiver.CenterFreq},
		{KeyGain, m.Receiver.Gain},
		{KeyDirect, m.Receiver.Direct},
		{KeyUnixTime, m.Stamp.UnixTime()},
		{KeyJD, m.Stamp.JulianDate},
		{KeyLST, m.Stamp.LST},
		{KeyAlt, m.Pointing.Alt},
		{KeyAz, m.Pointing.Az},
		{KeyObserverLat, m.Observer.Lat},
		{KeyObserverLon, m.Observer.Lon},
		{KeyObserverAlt, m.Observer.Alt},
		{KeyNBlocks, int64(m.NBlocks)},
		{KeyNSamples, int64(m.NSamples)},
	}

	if m.Tone != nil {
		fields = append(fields,
			Field{KeySiggenFreq, m.Tone.FrequencyHz},
			Field{KeySiggenAmp, m.Tone.AmplitudeDBm},
			Field{KeySiggenRFOn, m.Tone.RFOn},
		)
	}

	return fields
}

func encode(w io.Writer, fields []Field) error {
	zw := zip.NewWriter(w)

	for _, f := range fields {
		entry, err := zw.Create(f.Key + npyExt)
		if err == nil {
			if a, ok := f.Value.(Int8Array); ok {
				err = writeInt8Array(entry, a)
			} else {
				err = npy.Write(entry, f.Value)
			}
		}
		if err != nil {
			_ = zw.Close()
			return fmt.Errorf("encoding %s: %w", f.Key, err)
		}
	}

	return zw.Close()
}

// ReadFields returns every known entry of the archive at path by key
func ReadFields(path string) (fields Fields, err error) {
	if _, err = os.Stat(path); err != nil {
		return nil, err
	}

	zr, err := npz.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer closeWithError(zr, &err)

	fields = make(Fields)

	for _, name := range zr.Keys() {
		key := strings.TrimSuffix(name, npyExt)

		typ, ok := schema[key]
		if !ok {
			continue
		}

		if fields[key], err = readEntry(zr, name, typ); err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
	}

	return fields, nil
}

func readEntry(zr *npz.Reader, name string, typ dtype) (value any, err error) {
	rc, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer closeWithError(rc, &err)

	r, err := npy.NewReader(rc)
	if err != nil {
		return nil, err
	}

	switch typ {
	case dtypeInt8:
		return readInt8Array(r)
	case dtypeInt64:
		return readScalar[int64](r)
	case dtypeFloat64:
		return readScalar[float64](r)
	case dtypeFloat64s:
		return readFloat64s(r)
	default:
		return readScalar[bool](r)
	}
}

// Read loads the archive at path into a Record. Only type and shape
// coherence is checked.
func Read(path string) (*Record, error) {
	fields, err := ReadFields(path)
	if err != nil {
		return nil, err
	}

	return fields.Record()
}

// Record decodes fields holding raw samples. Only type and shape coherence
// is checked.
func (f Fields) Record() (*Record, error) {
	d := decoder{f: f}
	meta := d.meta()
	if err := d.err(); err != nil {
		return nil, err
	}

	samples, err := decodeSamples(f, meta.Receiver.Direct)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	if samples.BlockCount != meta.NBlocks || samples.BlockSize != meta.NSamples {
		return nil, fmt.Errorf("archive: shape %v does not match %d x %d", samples.Shape(), meta.NBlocks, meta.NSamples)
	}

	return &Record{
		Samples:  samples,
		Receiver: meta.Receiver,
		Stamp:    meta.Stamp,
		Pointing: meta.Pointing,
		Observer: meta.Observer,
		Tone:     meta.Tone,
	}, nil
}

// decoder collects every missing or malformed key instead of stopping at the
// first one
type decoder struct {
	f    Fields
	errs []error
}

func (d *decoder) float(key string) float64 {
	v, ok := d.f[key].(float64)
	if !ok {
		d.errs = append(d.errs, fmt.Errorf("missing or malformed %s", key))
	}
	return v
}

func (d *decoder) floats(key string) []float64 {
	v, ok := d.f[key].([]float64)
	if !ok {
		d.errs = append(d.errs, fmt.Errorf("missing or malformed %s", key))
	}
	return v
}

func (d *decoder) boolean(key string) bool {
	v, ok := d.f[key].(bool)
	if !ok {
		d.errs = append(d.errs, fmt.Errorf("missing or malformed %s", key))
	}
	return v
}

func (d *decoder) integer(key string) int {
	v, ok := d.f[key].(int64)
	if !ok {
		d.errs = append(d.errs, fmt.Errorf("missing or malformed %s", key))
	}
	return int(v)
}

func (d *decoder) meta() Meta {
	m := Meta{
		Receiver: sdr.Settings{
			SampleRate: d.float(KeySampleRate),
			CenterFreq: d.float(KeyCenterFreq),
			Gain:       d.float(KeyGain),
			Direct:     d.boolean(KeyDirect),
		},
		Stamp: timing.Stamp{
			Wall:       timing.FromUnixSeconds(d.float(KeyUnixTime)),
			JulianDate: d.float(KeyJD),
			LST:        d.float(KeyLST),
		},
		Pointing: telescope.Pointing{
			Alt: d.float(KeyAlt),
			Az:  d.float(KeyAz),
		},
		Observer: telescope.Location{
			Lat: d.float(KeyObserverLat),
			Lon: d.float(KeyObserverLon),
			Alt: d.float(KeyObserverAlt),
		},
		NBlocks:  d.integer(KeyNBlocks),
		NSamples: d.integer(KeyNSamples),
	}

	var tones int
	for _, key := range []string{KeySiggenFreq, KeySiggenAmp, KeySiggenRFOn} {
		if _, ok := d.f[key]; ok {
			tones++
		}
	}
	switch tones {
	case 0:
	case 3:
		m.Tone = &Tone{
			FrequencyHz:  d.float(KeySiggenFreq),
			AmplitudeDBm: d.float(KeySiggenAmp),
			RFOn:         d.boolean(KeySiggenRFOn),
		}
	default:
		d.errs = append(d.errs, fmt.Errorf("incomplete signal generator state"))
	}

	return m
}

func (d *decoder) err() error {
	if len(d.errs) > 0 {
		return fmt.Errorf("archive: %w", errors.Join(d.errs...))
	}
	return nil
}

func decodeSamples(f Fields, direct bool) (*sdr.Buffer, error) {
	data, ok := f[KeyData].(Int8Array)
	if !ok {
		return nil, fmt.Errorf("missing or malformed %s", KeyData)
	}

	buf := sdr.Buffer{Samples: data.Data}
	shape := data.Shape

	switch {
	case direct && len(shape) == 2:
		buf.BlockCount, buf.BlockSize, buf.Channels = shape[0], shape[1], sdr.ChannelsDirect
	case !direct && len(shape) == 3 && shape[2] == sdr.ChannelsIQ:
		buf.BlockCount, buf.BlockSize, buf.Channels = shape[0], shape[1], sdr.ChannelsIQ
	default:
		return nil, fmt.Errorf("shape %v is not valid for direct=%t", shape, direct)
	}

	if err := buf.Validate(); err != nil {
		return nil, err
	}

	return &buf, nil
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
