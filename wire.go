package viewport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Wire frame constants.
const (
	HeaderSize      = 24
	Magic           = 0x5650 // ASCII 'V', 'P', big-endian
	ProtocolVersion = 1
)

// Errors returned by the frame codec.
var (
	ErrBufferTooShort  = errors.New("viewport: buffer too short for frame header")
	ErrBadMagic        = errors.New("viewport: invalid magic bytes in frame header")
	ErrPayloadTooShort = errors.New("viewport: buffer too short for complete frame")
	ErrUnknownType     = errors.New("viewport: unknown message type")
)

// EncodeHeader writes a 24-byte frame header.
//
// Wire layout:
//
//	[0:2]   magic    big-endian uint16, 0x5650
//	[2]     version  uint8, 1
//	[3]     type     uint8, MessageType
//	[4:8]   length   little-endian uint32, payload bytes
//	[8:16]  session  little-endian uint64, 0 = none
//	[16:24] seq      little-endian uint64, 0 = none
func EncodeHeader(msgType MessageType, payloadLength uint32, session, seq uint64) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], Magic)
	buf[2] = ProtocolVersion
	buf[3] = byte(msgType)
	binary.LittleEndian.PutUint32(buf[4:8], payloadLength)
	binary.LittleEndian.PutUint64(buf[8:16], session)
	binary.LittleEndian.PutUint64(buf[16:24], seq)
	return buf
}

// DecodeHeader parses a 24-byte frame header from data. It returns
// ErrBufferTooShort if data is short and ErrBadMagic if the magic bytes
// don't match; bad magic is recoverable by the caller, typically a
// FrameReader advancing one byte and retrying.
//
// An unrecognized but well-formed type byte is NOT an error here:
// FrameReader emits (and so consumes) such a frame like any other, and
// DecodePayload is what reports ErrUnknownType for it, so subsequent
// frames keep parsing.
func DecodeHeader(data []byte) (*FrameHeader, error) {
	if len(data) < HeaderSize {
		return nil, ErrBufferTooShort
	}

	magic := binary.BigEndian.Uint16(data[0:2])
	if magic != Magic {
		return nil, ErrBadMagic
	}

	return &FrameHeader{
		Magic:   magic,
		Version: data[2],
		Type:    MessageType(data[3]),
		Length:  binary.LittleEndian.Uint32(data[4:8]),
		Session: binary.LittleEndian.Uint64(data[8:16]),
		Seq:     binary.LittleEndian.Uint64(data[16:24]),
	}, nil
}

// EncodeFrame encodes a protocol message into a complete frame (header +
// CBOR payload). msg.Seq becomes the header's sequence number; session is
// supplied separately because a ProtocolMessage may be replayed across
// multiple sessions (e.g. during testing) without mutating the message.
func EncodeFrame(msg *ProtocolMessage, session uint64) ([]byte, error) {
	payload, err := EncodePayload(msg)
	if err != nil {
		return nil, fmt.Errorf("viewport: cbor encode: %w", err)
	}

	header := EncodeHeader(msg.Type, uint32(len(payload)), session, msg.Seq)
	frame := make([]byte, HeaderSize+len(payload))
	copy(frame[0:HeaderSize], header)
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// DecodeFrame splits a complete frame into its header and raw payload
// bytes. data must contain at least header+payload bytes; use FrameReader
// for streaming input that may be split across multiple reads.
func DecodeFrame(data []byte) (*FrameHeader, []byte, error) {
	header, err := DecodeHeader(data)
	if err != nil {
		return nil, nil, err
	}

	totalSize := HeaderSize + int(header.Length)
	if len(data) < totalSize {
		return nil, nil, ErrPayloadTooShort
	}

	return header, data[HeaderSize:totalSize], nil
}

// ── FrameReader: streaming frame parser ──────────────────────────────

// Frame holds a decoded frame header and its raw payload bytes.
type Frame struct {
	Header  *FrameHeader
	Payload []byte
}

// FrameReader is a stateful byte-stream scanner. On Feed it appends to an
// internal buffer and emits complete frames. On magic mismatch it advances
// by one byte (recovery over a corrupted stream) and retries; on a short
// buffer it defers until more data arrives. The reader owns no payload
// memory beyond what it copies into each emitted Frame.
type FrameReader struct {
	buffer []byte

	// skippedBytes counts bytes discarded during magic recovery, for
	// diagnostics.
	skippedBytes int
}

// NewFrameReader creates a new streaming frame reader.
func NewFrameReader() *FrameReader {
	return &FrameReader{buffer: make([]byte, 0, 4096)}
}

// Feed appends data to the internal buffer and returns any complete frames
// that can be extracted. Remaining partial data stays buffered. A run of
// bad-magic bytes is recovered from silently (one byte at a time) and does
// not abort extraction of subsequent well-formed frames; callers that want
// a report of how many bytes were skipped can inspect SkippedBytes after
// the call, or use FeedDetailed for a multierr-aggregated account.
func (fr *FrameReader) Feed(data []byte) ([]Frame, error) {
	frames, _, err := fr.feed(data)
	return frames, err
}

// FeedDetailed behaves like Feed but also returns a multierr aggregate of
// every ErrBadMagic recovery event encountered during this call, so a
// caller diagnosing a noisy transport can see exactly how many bytes (and
// in how many runs) were discarded, without the recovery itself failing
// the call.
func (fr *FrameReader) FeedDetailed(data []byte) ([]Frame, error, error) {
	frames, recoveries, err := fr.feed(data)
	return frames, multierr.Combine(recoveries...), err
}

func (fr *FrameReader) feed(data []byte) ([]Frame, []error, error) {
	fr.buffer = append(fr.buffer, data...)

	var frames []Frame
	var recoveries []error

	for len(fr.buffer) >= HeaderSize {
		header, err := DecodeHeader(fr.buffer)
		if err != nil {
			if errors.Is(err, ErrBadMagic) {
				fr.buffer = fr.buffer[1:]
				fr.skippedBytes++
				recoveries = append(recoveries, fmt.Errorf("viewport: skipped byte at resync: %w", ErrBadMagic))
				continue
			}
			return frames, recoveries, err
		}

		totalSize := HeaderSize + int(header.Length)
		if len(fr.buffer) < totalSize {
			break // need more data
		}

		payload := make([]byte, header.Length)
		copy(payload, fr.buffer[HeaderSize:totalSize])
		frames = append(frames, Frame{Header: header, Payload: payload})
		fr.buffer = fr.buffer[totalSize:]
	}

	return frames, recoveries, nil
}

// PendingBytes returns the number of bytes buffered but not yet forming a
// complete frame.
func (fr *FrameReader) PendingBytes() int {
	return len(fr.buffer)
}

// SkippedBytes returns the cumulative number of bytes discarded during
// magic-byte recovery over the lifetime of this reader.
func (fr *FrameReader) SkippedBytes() int {
	return fr.skippedBytes
}
