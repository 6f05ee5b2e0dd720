package model

import "time"

// ContainerKind distinguishes v2 buckets from v1 databases.
type ContainerKind string

const (
	// KindBucket is a v2 bucket.
	KindBucket ContainerKind = "bucket"
	// KindDatabase is a v1 database (optionally with a retention policy).
	KindDatabase ContainerKind = "db"
)

// Container is one entry of a container listing.
type Container struct {
	Name            string        `json:"name"`
	Kind            ContainerKind `json:"kind"`
	RetentionPolicy string        `json:"retention_policy,omitempty"`
}

// Field is one entry of a field listing. Type is only known for v1, where
// SHOW FIELD KEYS reports it.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Tag is one entry of a tag listing: a key and a sample of observed values.
type Tag struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// Point is a single most-recent data point.
type Point struct {
	Time  time.Time         `json:"time"`
	Value interface{}       `json:"value"`
	Field string            `json:"field"`
	Tags  map[string]string `json:"tags"`
}

// SeriesPoint is one sample of a series.
type SeriesPoint struct {
	Time  time.Time   `json:"time"`
	Value interface{} `json:"value"`
}

// Stats describes what a series query actually returned. PointsReturned is
// the count after ceiling truncation, never the count requested. The
// effective bounds come from the builder, not the backend, so they are
// present even when the backend omits them.
type Stats struct {
	PointsReturned     int       `json:"points_returned"`
	StartEffective     time.Time `json:"start_effective"`
	StopEffective      time.Time `json:"stop_effective"`
	AggregateFunction  string    `json:"aggregate_function,omitempty"`
	DownsampleInterval string    `json:"downsample_interval,omitempty"`
}

// Series is the canonical time-series result.
type Series struct {
	Points []SeriesPoint `json:"points"`
	Stats  Stats         `json:"stats"`
}
