package storage

import "github.com/marketpipe/marketpipe/vendors"

// Row is the on-disk Parquet schema. trade_count and vwap are optional
// columns; everything else is required.
type Row struct {
	Symbol     string   `parquet:"symbol"`
	TsNs       int64    `parquet:"ts_ns"`
	Open       float64  `parquet:"open"`
	High       float64  `parquet:"high"`
	Low        float64  `parquet:"low"`
	Close      float64  `parquet:"close"`
	Volume     int64    `parquet:"volume"`
	TradeCount *int32   `parquet:"trade_count,optional"`
	VWAP       *float64 `parquet:"vwap,optional"`
}

// FromCanonical converts a vendor canonical row to the disk schema.
func FromCanonical(r vendors.Row) Row {
	return Row{
		Symbol:     r.Symbol,
		TsNs:       r.TimestampNs,
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
	}
}
