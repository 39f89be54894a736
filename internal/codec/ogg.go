package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/narrateapp/narrate-server/internal/errors"
)

// oggWriter packs Opus packets into a minimal single-stream Ogg container:
// one OpusHead page, one OpusTags page, then one page per audio packet.
// Small and boring beats clever here; narration segments are short enough
// that per-packet pages cost little.
type oggWriter struct {
	buf      *bytes.Buffer
	channels int
	rate     int
	serial   uint32
	pageSeq  uint32
	granule  uint64
}

// preSkip is the standard number of 48kHz samples a decoder discards at the
// start of an Opus stream to cover encoder lookahead.
const preSkip = 312

func newOggWriter(buf *bytes.Buffer, channels, rate int) *oggWriter {
	return &oggWriter{
		buf:      buf,
		channels: channels,
		rate:     rate,
		serial:   0x6e617272, // fixed stream serial; one logical stream per file
		granule:  preSkip,
	}
}

// writeHeaders emits the OpusHead and OpusTags pages that every Ogg Opus
// stream must begin with.
func (w *oggWriter) writeHeaders() error {
	head := make([]byte, 19)
	copy(head, "OpusHead")
	head[8] = 1                    // version
	head[9] = byte(w.channels)     // channel count
	binary.LittleEndian.PutUint16(head[10:], preSkip)
	binary.LittleEndian.PutUint32(head[12:], uint32(w.rate)) // original input rate
	binary.LittleEndian.PutUint16(head[16:], 0)              // output gain
	head[18] = 0                                             // mapping family: mono/stereo

	if err := w.writePage(head, 0x02, 0); err != nil { // BOS
		return err
	}

	vendor := "narrate-server"
	tags := make([]byte, 8+4+len(vendor)+4)
	copy(tags, "OpusTags")
	binary.LittleEndian.PutUint32(tags[8:], uint32(len(vendor)))
	copy(tags[12:], vendor)
	binary.LittleEndian.PutUint32(tags[12+len(vendor):], 0) // no user comments

	return w.writePage(tags, 0x00, 0)
}

// writeAudio emits one audio packet on its own page, advancing the granule
// position by the packet's 48kHz sample count. The final page carries the
// end-of-stream flag.
func (w *oggWriter) writeAudio(packet []byte, granuleDelta uint64, last bool) error {
	w.granule += granuleDelta
	var flags byte
	if last {
		flags = 0x04 // EOS
	}
	return w.writePage(packet, flags, w.granule)
}

// writePage writes a single Ogg page holding one packet.
func (w *oggWriter) writePage(packet []byte, headerType byte, granule uint64) error {
	// Lacing values: 255 for each full chunk, then the remainder. A packet
	// whose length is an exact multiple of 255 needs a trailing 0 value.
	numSegments := len(packet)/255 + 1
	if numSegments > 255 {
		return errors.Internalf("ogg packet too large for one page: %d bytes", len(packet))
	}

	header := make([]byte, 27+numSegments)
	copy(header, "OggS")
	header[4] = 0 // stream structure version
	header[5] = headerType
	binary.LittleEndian.PutUint64(header[6:], granule)
	binary.LittleEndian.PutUint32(header[14:], w.serial)
	binary.LittleEndian.PutUint32(header[18:], w.pageSeq)
	// header[22:26] is the CRC, filled in below.
	header[26] = byte(numSegments)

	remaining := len(packet)
	for i := 0; i < numSegments; i++ {
		if remaining >= 255 {
			header[27+i] = 255
			remaining -= 255
		} else {
			header[27+i] = byte(remaining)
			remaining = 0
		}
	}

	crc := crcUpdate(0, header)
	crc = crcUpdate(crc, packet)
	binary.LittleEndian.PutUint32(header[22:], crc)

	w.buf.Write(header)
	w.buf.Write(packet)
	w.pageSeq++
	return nil
}

// Ogg uses CRC-32 with polynomial 0x04c11db7, no bit reflection, zero initial
// value, and no final XOR.
var crcTable = func() [256]uint32 {
	var table [256]uint32
	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return table
}()

func crcUpdate(crc uint32, p []byte) uint32 {
	for _, b := range p {
		crc = (crc << 8) ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}
