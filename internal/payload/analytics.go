package payload

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/klauspost/compress/zlib"
)

// AssetFetchOrder is the order the client downloads its asset libraries.
var AssetFetchOrder = []string{
	"skills",
	"library",
	"enemy",
	"npc",
	"pet",
	"mission",
	"gamedata",
	"talents",
	"senjutsu",
	"skill-effect",
	"weapon-effect",
	"back_item-effect",
	"accessory-effect",
	"arena-effect",
	"animation",
}

// AssetReportOrder is the key order of the analytics JSON document.
var AssetReportOrder = []string{
	"weapon-effect",
	"library",
	"animation",
	"pet",
	"back_item-effect",
	"gamedata",
	"accessory-effect",
	"skills",
	"npc",
	"arena-effect",
	"talents",
	"enemy",
	"skill-effect",
	"senjutsu",
	"mission",
}

// AnalyticsJSON renders asset lengths as compact JSON in report order.
// Assets without a length are omitted.
func AnalyticsJSON(lengths map[string]int) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, name := range AssetReportOrder {
		n, ok := lengths[name]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteString(strconv.Quote(name))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(n))
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// CompressAnalytics zlib-compresses the analytics JSON at best compression.
func CompressAnalytics(lengths map[string]int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(AnalyticsJSON(lengths)); err != nil {
		return nil, fmt.Errorf("compressing analytics: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing analytics: %w", err)
	}
	return buf.Bytes(), nil
}

// LengthSource reports the byte length of each named asset.
type LengthSource interface {
	AssetLengths(ctx context.Context, baseURL string, names []string) (map[string]int, error)
}

// AnalyticsBuilder produces the Analytics.libraries argument.
type AnalyticsBuilder struct {
	lengths LengthSource
	baseURL string
}

// NewAnalyticsBuilder creates a builder reading assets under baseURL.
func NewAnalyticsBuilder(lengths LengthSource, baseURL string) *AnalyticsBuilder {
	return &AnalyticsBuilder{lengths: lengths, baseURL: baseURL}
}

// Build fetches (or reuses cached) asset lengths and compresses the report.
func (b *AnalyticsBuilder) Build(ctx context.Context) ([]byte, error) {
	lengths, err := b.lengths.AssetLengths(ctx, b.baseURL, AssetFetchOrder)
	if err != nil {
		return nil, fmt.Errorf("loading asset lengths: %w", err)
	}
	return CompressAnalytics(lengths)
}
