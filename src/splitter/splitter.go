// Package splitter partitions a tabular tweet file into fixed-size chunk
// objects in shared storage. Each chunk repeats the source header row so it
// can be parsed on its own.
package splitter

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"tweetlens/src/storage"
)

// ErrBadChunkSize is returned before any I/O when the chunk size is < 1.
var ErrBadChunkSize = errors.New("chunk size must be at least 1")

// Split reads CSV records from r and writes zero-indexed chunk objects named
// {prefix}_{index}.csv into area, each holding the header row plus up to
// chunkSize data rows. When the row count is an exact multiple of chunkSize
// no trailing empty chunk is emitted. Returns the chunk keys written, in
// index order.
func Split(ctx context.Context, r io.Reader, store storage.ObjectStore, area, prefix string, chunkSize int) ([]string, error) {
	if chunkSize < 1 {
		return nil, ErrBadChunkSize
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var keys []string
	rows := make([][]string, 0, chunkSize)

	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		key := fmt.Sprintf("%s_%d.csv", prefix, len(keys))
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write chunk header: %w", err)
		}
		// WriteAll flushes the writer.
		if err := w.WriteAll(rows); err != nil {
			return fmt.Errorf("write chunk rows: %w", err)
		}
		if err := store.Put(ctx, area, key, buf.Bytes()); err != nil {
			return fmt.Errorf("put chunk %s: %w", key, err)
		}
		keys = append(keys, key)
		rows = rows[:0]
		return nil
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return keys, fmt.Errorf("read row: %w", err)
		}
		rows = append(rows, row)
		if len(rows) == chunkSize {
			if err := flush(); err != nil {
				return keys, err
			}
		}
	}
	if err := flush(); err != nil {
		return keys, err
	}
	return keys, nil
}
