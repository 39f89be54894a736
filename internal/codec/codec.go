// Package codec converts raw linear-PCM sample buffers into Ogg Opus audio
// suitable for upload and public playback.
//
// Encoding is pure and synchronous: every call builds its own encoder, so
// concurrent generation runs can encode without shared state.
package codec

import (
	"bytes"

	opus "gopkg.in/hraban/opus.v2"

	"github.com/narrateapp/narrate-server/internal/errors"
)

const (
	// Opus frames are encoded in fixed 20ms blocks. Input shorter than a
	// whole block is zero-padded per channel rather than rejected.
	frameMillis = 20

	// Granule positions in the Ogg container always count 48kHz samples,
	// independent of the encoder's input rate.
	granuleRate = 48000

	sampleWidth = 2 // bytes per 16-bit sample

	maxPacketSize = 4000
)

// supportedRates are the sample rates libopus accepts directly. Anything else
// is resampled to 48kHz first.
var supportedRates = map[int]bool{
	8000:  true,
	12000: true,
	16000: true,
	24000: true,
	48000: true,
}

// Encode compresses interleaved 16-bit PCM into an Ogg Opus container.
// channels must be 1 or 2. The trailing partial block is zero-padded, and the
// encoder is flushed so no residual samples are lost.
func Encode(pcm []int16, sampleRate, channels int) ([]byte, error) {
	if channels != 1 && channels != 2 {
		return nil, errors.Unsupportedf("unsupported channel count %d (must be 1 or 2)", channels)
	}
	if len(pcm) == 0 {
		return nil, errors.Validation("empty pcm buffer")
	}
	if sampleRate <= 0 {
		return nil, errors.Validationf("invalid sample rate %d", sampleRate)
	}

	if !supportedRates[sampleRate] {
		pcm = Resample(pcm, channels, sampleRate, granuleRate)
		sampleRate = granuleRate
	}

	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "create opus encoder")
	}

	// Samples per channel in one block.
	blockSize := sampleRate * frameMillis / 1000
	frameLen := blockSize * channels

	var buf bytes.Buffer
	w := newOggWriter(&buf, channels, sampleRate)
	if err := w.writeHeaders(); err != nil {
		return nil, err
	}

	packet := make([]byte, maxPacketSize)
	frame := make([]int16, frameLen)
	granulePerBlock := uint64(granuleRate * frameMillis / 1000)

	for off := 0; off < len(pcm); off += frameLen {
		end := off + frameLen
		if end > len(pcm) {
			end = len(pcm)
		}
		n := copy(frame, pcm[off:end])
		// Zero-pad the short trailing block for every channel.
		for i := n; i < frameLen; i++ {
			frame[i] = 0
		}

		written, err := enc.Encode(frame, packet)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "opus encode block")
		}

		last := end == len(pcm)
		if err := w.writeAudio(packet[:written], granulePerBlock, last); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// EncodeBytes is the byte-oriented entry point used by the generation
// pipeline: it validates and reinterprets little-endian 16-bit PCM bytes,
// then encodes them.
func EncodeBytes(raw []byte, sampleRate, channels int) ([]byte, error) {
	if len(raw)%sampleWidth != 0 {
		return nil, errors.Validationf("pcm byte length %d is not a multiple of the sample width", len(raw))
	}
	if channels != 1 && channels != 2 {
		return nil, errors.Unsupportedf("unsupported channel count %d (must be 1 or 2)", channels)
	}

	pcm := make([]int16, len(raw)/sampleWidth)
	for i := range pcm {
		pcm[i] = int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
	}
	return Encode(pcm, sampleRate, channels)
}

// Resample converts interleaved PCM between sample rates using linear
// interpolation. Good enough for bridging synthesis output onto a rate the
// encoder accepts; not meant for hi-fi rate conversion.
func Resample(pcm []int16, channels, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(pcm) == 0 {
		return pcm
	}

	inFrames := len(pcm) / channels
	outFrames := int(int64(inFrames) * int64(toRate) / int64(fromRate))
	if outFrames == 0 {
		outFrames = 1
	}

	out := make([]int16, outFrames*channels)
	for f := 0; f < outFrames; f++ {
		srcPos := float64(f) * float64(fromRate) / float64(toRate)
		i0 := int(srcPos)
		if i0 >= inFrames-1 {
			i0 = inFrames - 1
		}
		i1 := i0 + 1
		if i1 >= inFrames {
			i1 = inFrames - 1
		}
		frac := srcPos - float64(i0)

		for c := 0; c < channels; c++ {
			s0 := float64(pcm[i0*channels+c])
			s1 := float64(pcm[i1*channels+c])
			out[f*channels+c] = int16(s0 + (s1-s0)*frac)
		}
	}
	return out
}
