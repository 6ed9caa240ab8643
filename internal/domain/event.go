package domain

import (
	"context"
	"time"
)

// Notification is an unprocessed object-created message from the source topic.
type Notification struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ConversionEvent describes one completed conversion. It is published to the
// sink topic and printed by the CLI.
type ConversionEvent struct {
	Source       ObjectKey `json:"source"`
	Run          string    `json:"run"`
	ForecastHour string    `json:"forecast_hour"`
	ValidTime    time.Time `json:"valid_time"`
	Variable     string    `json:"variable"`
	RangeStart   int64     `json:"range_start"`
	RangeEnd     int64     `json:"range_end"`
	Bytes        int64     `json:"bytes_downloaded"`
	Nx           int       `json:"nx"`
	Ny           int       `json:"ny"`
	Rows         int       `json:"rows"`
	OutputKey    string    `json:"output_key"`
	Destination  string    `json:"destination,omitempty"`
	Published    bool      `json:"published"`
	ConvertedAt  time.Time `json:"converted_at"`
}
