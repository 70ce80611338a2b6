// Package marketlog provides the append-only run log of L1 snapshots and
// agent inventory observations, with a JSON-lines encoding for replay.
package marketlog

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/akshitanchan/marketsim/internal/domain"
)

// L1Record is one snapshot of the top of book.
type L1Record struct {
	Time    domain.Time `json:"time"`
	Mid     *float64    `json:"mid"`
	BestBid *int64      `json:"best_bid"`
	BestAsk *int64      `json:"best_ask"`
}

// InventoryRecord is one observation of an agent's net position.
type InventoryRecord struct {
	Time      domain.Time `json:"time"`
	AgentID   string      `json:"agent_id"`
	Inventory int64       `json:"inventory"`
}

// Table is a header plus string rows, for handing the log to analysis code.
type Table struct {
	Header []string
	Rows   [][]string
}

// Logger records are never mutated after append. Accessors return copies.
type Logger struct {
	l1        []L1Record
	inventory []InventoryRecord
}

// New creates an empty logger.
func New() *Logger {
	return &Logger{}
}

// RecordL1 appends an L1 snapshot. The optional prices are copied, so the
// record does not alias the caller's view.
func (l *Logger) RecordL1(s domain.L1) {
	l.l1 = append(l.l1, L1Record{
		Time:    s.Time,
		Mid:     clonePtr(s.Mid),
		BestBid: clonePtr(s.BestBid),
		BestAsk: clonePtr(s.BestAsk),
	})
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	return domain.Ptr(*v)
}

// RecordInventory appends an inventory observation.
func (l *Logger) RecordInventory(now domain.Time, agentID string, inventory int64) {
	l.inventory = append(l.inventory, InventoryRecord{
		Time:      now,
		AgentID:   agentID,
		Inventory: inventory,
	})
}

// L1 returns a deep copy of the L1 stream in append order.
func (l *Logger) L1() []L1Record {
	out := make([]L1Record, len(l.l1))
	for i, r := range l.l1 {
		out[i] = L1Record{
			Time:    r.Time,
			Mid:     clonePtr(r.Mid),
			BestBid: clonePtr(r.BestBid),
			BestAsk: clonePtr(r.BestAsk),
		}
	}
	return out
}

// Inventory returns the inventory stream in append order.
func (l *Logger) Inventory() []InventoryRecord {
	return append([]InventoryRecord(nil), l.inventory...)
}

// Len returns the number of records across both streams.
func (l *Logger) Len() int {
	return len(l.l1) + len(l.inventory)
}

// MidSeries returns the defined mids in order, skipping empty-book snapshots.
func (l *Logger) MidSeries() []float64 {
	mids := make([]float64, 0, len(l.l1))
	for _, r := range l.l1 {
		if r.Mid != nil {
			mids = append(mids, *r.Mid)
		}
	}
	return mids
}

// InventorySeries returns one agent's inventory observations in order.
func (l *Logger) InventorySeries(agentID string) []int64 {
	var out []int64
	for _, r := range l.inventory {
		if r.AgentID == agentID {
			out = append(out, r.Inventory)
		}
	}
	return out
}

// L1Table renders the L1 stream. Absent values are empty cells.
func (l *Logger) L1Table() Table {
	t := Table{Header: []string{"time", "mid", "best_bid", "best_ask"}}
	for _, r := range l.l1 {
		t.Rows = append(t.Rows, []string{
			strconv.FormatFloat(r.Time.Seconds(), 'f', -1, 64),
			formatFloat(r.Mid),
			formatInt(r.BestBid),
			formatInt(r.BestAsk),
		})
	}
	return t
}

// InventoryTable renders the inventory stream.
func (l *Logger) InventoryTable() Table {
	t := Table{Header: []string{"time", "agent_id", "inventory"}}
	for _, r := range l.inventory {
		t.Rows = append(t.Rows, []string{
			strconv.FormatFloat(r.Time.Seconds(), 'f', -1, 64),
			r.AgentID,
			strconv.FormatInt(r.Inventory, 10),
		})
	}
	return t
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

// line is the on-disk envelope; exactly one of L1 or Inventory is set.
type line struct {
	Stream    string           `json:"stream"`
	L1        *L1Record        `json:"l1,omitempty"`
	Inventory *InventoryRecord `json:"inventory,omitempty"`
}

const (
	streamL1        = "l1"
	streamInventory = "inventory"
)

// WriteJSONL encodes the L1 stream followed by the inventory stream, one
// record per line.
func (l *Logger) WriteJSONL(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 64*1024)
	enc := json.NewEncoder(bw)
	for i := range l.l1 {
		if err := enc.Encode(line{Stream: streamL1, L1: &l.l1[i]}); err != nil {
			return fmt.Errorf("encode l1 record %d: %w", i, err)
		}
	}
	for i := range l.inventory {
		if err := enc.Encode(line{Stream: streamInventory, Inventory: &l.inventory[i]}); err != nil {
			return fmt.Errorf("encode inventory record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// ReadJSONL rebuilds a logger from WriteJSONL output.
func ReadJSONL(r io.Reader) (*Logger, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 256*1024), 1024*1024)

	l := New()
	n := 0
	for scanner.Scan() {
		n++
		var rec line
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: unmarshal record: %w", n, err)
		}
		switch {
		case rec.Stream == streamL1 && rec.L1 != nil:
			l.l1 = append(l.l1, *rec.L1)
		case rec.Stream == streamInventory && rec.Inventory != nil:
			l.inventory = append(l.inventory, *rec.Inventory)
		default:
			return nil, fmt.Errorf("line %d: unknown stream %q", n, rec.Stream)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

// Digest returns the hex blake3 hash of the JSONL encoding. Two runs with
// byte-identical record streams have equal digests.
func (l *Logger) Digest() string {
	h := blake3.New()
	// hash.Hash writes never fail
	_ = l.WriteJSONL(h)
	return hex.EncodeToString(h.Sum(nil))
}
