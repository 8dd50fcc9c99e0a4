package spectrum

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/roman-kulish/radio-telescope/internal/archive"
	"github.com/roman-kulish/radio-telescope/internal/sdr"
)

// Spectrum is the integrated power spectrum of one capture, DC-centred.
//
// Each bin is mean(|FFT|²)/n² over blocks, so the sum over bins equals the
// mean per-sample power in counts² regardless of the FFT length.
type Spectrum struct {
	Freqs   []float64 // Absolute frequency axis in Hz (baseband + centre)
	PSD     []float64 // Mean normalised power per bin
	Std     float64   // Standard error of PSD, averaged over bins
	NBlocks int

	blocks [][]float64
}

// FromRecord computes the spectrum of an archived capture
func FromRecord(r *archive.Record) (*Spectrum, error) {
	return FromBuffer(r.Samples, r.Receiver.SampleRate, r.Receiver.CenterFreq)
}

// FromBuffer computes the spectrum of raw samples. I/Q blocks go through a
// complex FFT, direct-sampling blocks through a real FFT expanded to the full
// two-sided spectrum.
func FromBuffer(buf *sdr.Buffer, sampleRate, centerFreq float64) (*Spectrum, error) {
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("spectrum: %w", err)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("spectrum: sample rate must be positive: %f", sampleRate)
	}

	n := buf.BlockSize
	transform := newTransform(n, buf.Direct())

	s := Spectrum{
		Freqs:   make([]float64, n),
		PSD:     make([]float64, n),
		NBlocks: buf.BlockCount,
		blocks:  make([][]float64, buf.BlockCount),
	}

	norm := float64(n) * float64(n)
	for b := 0; b < buf.BlockCount; b++ {
		coeffs := transform(buf.Block(b))

		row := make([]float64, n)
		for i := range row {
			c := coeffs[shiftIndex(i, n)]
			row[i] = real(c)*real(c) + imag(c)*imag(c)
		}
		floats.Scale(1/norm, row)

		s.blocks[b] = row
		floats.Add(s.PSD, row)
	}
	floats.Scale(1/float64(buf.BlockCount), s.PSD)

	col := make([]float64, buf.BlockCount)
	var stdSum float64
	for i := 0; i < n; i++ {
		for b := range s.blocks {
			col[b] = s.blocks[b][i]
		}
		_, std := stat.PopMeanStdDev(col, nil)
		stdSum += std
	}
	s.Std = stdSum / float64(n) / math.Sqrt(float64(buf.BlockCount))

	for i := range s.Freqs {
		s.Freqs[i] = float64(i-n/2)*sampleRate/float64(n) + centerFreq
	}

	return &s, nil
}

// TotalPower is the sum of the PSD over all bins
func (s *Spectrum) TotalPower() float64 {
	return floats.Sum(s.PSD)
}

// BinAt returns the index of the bin closest to hz
func (s *Spectrum) BinAt(hz float64) int {
	best := 0
	for i, f := range s.Freqs {
		if math.Abs(f-hz) < math.Abs(s.Freqs[best]-hz) {
			best = i
		}
	}
	return best
}

// Blocks returns the per-block normalised power rows, DC-centred
func (s *Spectrum) Blocks() [][]float64 {
	return s.blocks
}

// DB converts a power value to decibels, flooring zero power
func DB(p float64) float64 {
	const floor = 1e-20
	return 10 * math.Log10(math.Max(p, floor))
}

// shiftIndex maps a DC-centred bin to its FFT coefficient index
func shiftIndex(i, n int) int {
	return ((i-n/2)%n + n) % n
}

// newTransform returns a function computing the full n-point spectrum of a
// block with its mean removed
func newTransform(n int, direct bool) func(block []int8) []complex128 {
	if direct {
		fft := fourier.NewFFT(n)
		seq := make([]float64, n)
		half := make([]complex128, n/2+1)

		return func(block []int8) []complex128 {
			for i, v := range block {
				seq[i] = float64(v)
			}
			floats.AddConst(-stat.Mean(seq, nil), seq)

			half = fft.Coefficients(half, seq)

			full := make([]complex128, n)
			copy(full, half)
			for k := len(half); k < n; k++ {
				full[k] = cmplx.Conj(half[n-k])
			}
			return full
		}
	}

	fft := fourier.NewCmplxFFT(n)
	seq := make([]complex128, n)

	return func(block []int8) []complex128 {
		var mean complex128
		for i := 0; i < n; i++ {
			seq[i] = complex(float64(block[2*i]), float64(block[2*i+1]))
			mean += seq[i]
		}
		mean /= complex(float64(n), 0)
		for i := range seq {
			seq[i] -= mean
		}

		return fft.Coefficients(nil, seq)
	}
}
