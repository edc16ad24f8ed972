package gtfs

import (
	"encoding/binary"
	"io"
	"os"
)

// headerSize is the fixed, on-disk size of a log record header: three
// signed 32-bit fields (offset, length, committed), big-endian. This
// layout must never change for the lifetime of a store: a later process
// parses records written by an earlier one.
const headerSize = 12

// recordHeader is the fixed-size prefix of every log record.
type recordHeader struct {
	Offset    int32
	Length    int32
	Committed int32
}

// encodeHeader serializes h into a headerSize-byte big-endian buffer, the
// same field-by-field binary.BigEndian.PutUint* style used throughout this
// codebase's ancestor for its own record headers.
func encodeHeader(h recordHeader) []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.Offset))
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.Length))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.Committed))
	return buf
}

// decodeHeader parses a headerSize-byte buffer into a recordHeader.
func decodeHeader(buf []byte) recordHeader {
	return recordHeader{
		Offset:    int32(binary.BigEndian.Uint32(buf[0:4])),
		Length:    int32(binary.BigEndian.Uint32(buf[4:8])),
		Committed: int32(binary.BigEndian.Uint32(buf[8:12])),
	}
}

// logRecord is one parsed record: its header plus payload bytes (only
// populated for committed records; tentative records are skipped without
// allocating their payload).
type logRecord struct {
	header  recordHeader
	payload []byte
}

// readLog parses every record out of the log at logPath in append order.
// A torn tail (a partial header, or a header claiming more payload bytes
// than remain) is not an error: the parser stops at the first short read
// and returns the records seen so far, per the codec's contract that a
// log with a torn tail is still a valid log.
func readLog(logPath string) ([]logRecord, error) {
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []logRecord
	headerBuf := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(f, headerBuf); err != nil {
			// Partial or absent header: torn tail, stop cleanly.
			break
		}
		h := decodeHeader(headerBuf)
		if h.Length < 0 {
			break
		}

		rec := logRecord{header: h}
		if h.Committed == 1 {
			payload := make([]byte, h.Length)
			if _, err := io.ReadFull(f, payload); err != nil {
				// Torn payload on a committed header: discard this
				// record and stop, per the crash-window table (a
				// commit bit with a torn payload cannot have been
				// durable).
				break
			}
			rec.payload = payload
		} else {
			if _, err := f.Seek(int64(h.Length), io.SeekCurrent); err != nil {
				break
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
