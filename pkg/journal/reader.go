package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// maxEntrySize bounds a single frame so a corrupt prefix cannot force a
// huge allocation
const maxEntrySize = 1 << 20

// ReadAll returns every entry under basePath in write order. A truncated
// final frame, as left by a crash mid-write, ends that file without error.
func ReadAll(basePath string) ([]*Entry, error) {
	files, err := filepath.Glob(filepath.Join(basePath, filePrefix+"*.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to list journal files: %w", err)
	}
	sort.Strings(files)

	var entries []*Entry
	for _, name := range files {
		fileEntries, err := readFile(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileEntries...)
	}
	return entries, nil
}

func readFile(name string) ([]*Entry, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var entries []*Entry
	prefix := make([]byte, 4)
	for {
		if _, err := io.ReadFull(r, prefix); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return entries, nil
			}
			return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(name), err)
		}

		length := binary.BigEndian.Uint32(prefix)
		if length > maxEntrySize {
			return nil, fmt.Errorf("corrupt frame in %s: length %d", filepath.Base(name), length)
		}

		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return entries, nil
			}
			return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(name), err)
		}

		var entry Entry
		if err := msgpack.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("failed to decode entry in %s: %w", filepath.Base(name), err)
		}
		entries = append(entries, &entry)
	}
}

// Pending returns, for every step whose latest entry is not applied, that
// latest entry. Steps keep the order of their first appearance.
func Pending(entries []*Entry) []*Entry {
	latest := make(map[string]*Entry)
	var order []string
	for _, e := range entries {
		if _, seen := latest[e.StepID]; !seen {
			order = append(order, e.StepID)
		}
		latest[e.StepID] = e
	}

	var pending []*Entry
	for _, stepID := range order {
		if e := latest[stepID]; e.Result != ResultApplied {
			pending = append(pending, e)
		}
	}
	return pending
}
