// Package source provides page source providers for the extraction loop.
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"

	"giveaway/internal/extract"
)

const defaultBatchSize = 20

// List reveals a fixed identifier list a batch at a time. It stands in for a
// scrolled page when the identifiers were exported ahead of time.
type List struct {
	ids     []string
	batch   int
	visible int
}

func NewList(ids []string, batch int) *List {
	if batch <= 0 {
		batch = defaultBatchSize
	}
	l := &List{ids: ids, batch: batch}
	l.visible = min(batch, len(ids))
	return l
}

// LoadFile reads identifiers from path: either a JSON array of strings or one
// identifier per line, with blank lines and # comments ignored. A batch <= 0
// reveals the whole file in the first batch.
func LoadFile(path string, batch int) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ids, err := ParseIdentifiers(data)
	if err != nil {
		return nil, err
	}
	if batch <= 0 {
		batch = len(ids)
	}
	return NewList(ids, batch), nil
}

// ParseIdentifiers decodes a JSON array or a line-oriented list.
func ParseIdentifiers(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var ids []string
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return nil, err
		}
		return ids, nil
	}
	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, sc.Err()
}

func (l *List) CurrentBatch(ctx context.Context) ([]extract.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := make([]extract.RawItem, 0, l.visible)
	for _, id := range l.ids[:l.visible] {
		items = append(items, extract.Item(id))
	}
	return items, nil
}

func (l *List) RevealMore(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if l.visible >= len(l.ids) {
		return false, nil
	}
	l.visible = min(l.visible+l.batch, len(l.ids))
	return true, nil
}

// Unread reports how many identifiers have not been revealed yet.
func (l *List) Unread() int {
	return len(l.ids) - l.visible
}
