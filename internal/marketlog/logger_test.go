package marketlog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akshitanchan/marketsim/internal/domain"
)

func sampleLogger() *Logger {
	l := New()
	l.RecordL1(domain.NewL1(0, nil, nil))
	l.RecordL1(domain.NewL1(domain.Seconds(1), domain.Ptr[int64](99), domain.Ptr[int64](101)))
	l.RecordInventory(domain.Seconds(1), "MM1", 3)
	l.RecordL1(domain.NewL1(domain.Seconds(2), domain.Ptr[int64](99), nil))
	l.RecordInventory(domain.Seconds(2), "MM1", -2)
	l.RecordInventory(domain.Seconds(2), "M1", 5)
	return l
}

func TestRecordsKeepAppendOrder(t *testing.T) {
	l := sampleLogger()

	l1 := l.L1()
	require.Len(t, l1, 3)
	require.Nil(t, l1[0].Mid)
	require.Equal(t, 100.0, *l1[1].Mid)
	require.Nil(t, l1[2].BestAsk)

	require.Equal(t, []int64{3, -2}, l.InventorySeries("MM1"))
	require.Equal(t, []float64{100}, l.MidSeries())
	require.Equal(t, 6, l.Len())
}

func TestAccessorsReturnCopies(t *testing.T) {
	l := sampleLogger()
	inv := l.Inventory()
	inv[0].Inventory = 1000

	require.Equal(t, int64(3), l.Inventory()[0].Inventory)

	digest := l.Digest()
	recs := l.L1()
	*recs[1].Mid = 5
	*recs[1].BestBid = 1
	*recs[1].BestAsk = 2

	stored := l.L1()[1]
	require.Equal(t, 100.0, *stored.Mid)
	require.Equal(t, int64(99), *stored.BestBid)
	require.Equal(t, int64(101), *stored.BestAsk)
	require.Equal(t, digest, l.Digest())
}

func TestRecordL1DoesNotAliasInput(t *testing.T) {
	l := New()
	snap := domain.NewL1(0, domain.Ptr(int64(99)), domain.Ptr(int64(101)))
	l.RecordL1(snap)

	*snap.Mid = 5
	*snap.BestBid = 1

	rec := l.L1()[0]
	require.Equal(t, 100.0, *rec.Mid)
	require.Equal(t, int64(99), *rec.BestBid)
}

func TestTables(t *testing.T) {
	l := sampleLogger()

	l1 := l.L1Table()
	require.Equal(t, []string{"time", "mid", "best_bid", "best_ask"}, l1.Header)
	require.Equal(t, []string{"0", "", "", ""}, l1.Rows[0])
	require.Equal(t, []string{"1", "100", "99", "101"}, l1.Rows[1])

	inv := l.InventoryTable()
	require.Len(t, inv.Rows, 3)
	require.Equal(t, []string{"2", "M1", "5"}, inv.Rows[2])
}

func TestJSONLRoundTrip(t *testing.T) {
	l := sampleLogger()

	var buf bytes.Buffer
	require.NoError(t, l.WriteJSONL(&buf))
	require.Equal(t, 6, strings.Count(buf.String(), "\n"))

	back, err := ReadJSONL(&buf)
	require.NoError(t, err)
	require.Equal(t, l.L1(), back.L1())
	require.Equal(t, l.Inventory(), back.Inventory())
	require.Equal(t, l.Digest(), back.Digest())
}

func TestReadJSONLRejectsUnknownStream(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader(`{"stream":"trades"}` + "\n"))
	require.ErrorContains(t, err, "unknown stream")
}

func TestDigestSensitiveToContent(t *testing.T) {
	a := sampleLogger()
	b := sampleLogger()
	require.Equal(t, a.Digest(), b.Digest())

	b.RecordInventory(domain.Seconds(3), "M1", 6)
	require.NotEqual(t, a.Digest(), b.Digest())
	require.Len(t, a.Digest(), 64)
}
