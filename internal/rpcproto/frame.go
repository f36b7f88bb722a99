package rpcproto

import "encoding/binary"

// encodeChunkFrame and decodeChunkFrame define this module's own wire
// framing for one streamed chunk: a uint32 length-prefixed hostname, a
// uint32 length-prefixed error string, then the raw payload. Only the
// metadata envelope is framed here; the payload stays opaque.
func encodeChunkFrame(meta *ChunkMetadata, payload []byte) []byte {
	var hostname, errMsg string
	if meta != nil {
		hostname, errMsg = meta.Hostname, meta.Error
	}

	buf := make([]byte, 0, 8+len(hostname)+len(errMsg)+len(payload))
	buf = appendLengthPrefixed(buf, hostname)
	buf = appendLengthPrefixed(buf, errMsg)
	buf = append(buf, payload...)
	return buf
}

func decodeChunkFrame(frame []byte) *Chunk {
	hostname, rest := readLengthPrefixed(frame)
	errMsg, rest := readLengthPrefixed(rest)

	var meta *ChunkMetadata
	if hostname != "" || errMsg != "" {
		meta = &ChunkMetadata{Hostname: hostname, Error: errMsg}
	}
	return &Chunk{Metadata: meta, Bytes: rest}
}

func appendLengthPrefixed(buf []byte, s string) []byte {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(s)))
	buf = append(buf, lenBytes[:]...)
	return append(buf, s...)
}

func readLengthPrefixed(buf []byte) (string, []byte) {
	if len(buf) < 4 {
		return "", buf
	}
	n := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint64(n) > uint64(len(buf)) {
		return "", nil
	}
	return string(buf[:n]), buf[n:]
}
