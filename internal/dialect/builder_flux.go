package dialect

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"fluxmcp/internal/model"
)

// lastPointLookback bounds how far back a last-point query searches. Flux
// requires an explicit range; a year matches the original deployment's
// behavior for sparse series.
const lastPointLookback = "-365d"

// schemaLookback bounds the tag-key/value schema scans, which are expensive
// on large buckets.
const schemaLookback = "-30d"

// fieldLookback bounds the field-key schema scan.
const fieldLookback = "-365d"

// FluxBuilder renders queries in the v2 pipeline dialect.
type FluxBuilder struct{}

var _ Builder = FluxBuilder{}

func (FluxBuilder) ListContainers() string {
	return "buckets()"
}

func (FluxBuilder) ListMeasurements(target string) (string, error) {
	bucket, err := fluxBucket(target)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("import \"influxdata/influxdb/schema\"\nschema.measurements(bucket: %s)", bucket), nil
}

func (FluxBuilder) ListFields(target, measurement string) (string, error) {
	bucket, err := fluxBucket(target)
	if err != nil {
		return "", err
	}
	m, err := FluxCodec.QuoteString(measurement)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("import \"influxdata/influxdb/schema\"\nschema.measurementFieldKeys(bucket: %s, measurement: %s, start: %s)",
		bucket, m, fieldLookback), nil
}

func (FluxBuilder) ListTagKeys(target, measurement string) (string, error) {
	bucket, err := fluxBucket(target)
	if err != nil {
		return "", err
	}
	m, err := FluxCodec.QuoteString(measurement)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("import \"influxdata/influxdb/schema\"\nschema.measurementTagKeys(bucket: %s, measurement: %s, start: %s)",
		bucket, m, schemaLookback), nil
}

func (FluxBuilder) ListTagValues(target, measurement, key string) (string, error) {
	bucket, err := fluxBucket(target)
	if err != nil {
		return "", err
	}
	m, err := FluxCodec.QuoteString(measurement)
	if err != nil {
		return "", err
	}
	k, err := FluxCodec.QuoteString(key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("import \"influxdata/influxdb/schema\"\nschema.measurementTagValues(bucket: %s, measurement: %s, tag: %s, start: %s)",
		bucket, m, k, schemaLookback), nil
}

func (b FluxBuilder) SeriesQuery(q *model.Query, now time.Time) (*BuiltQuery, error) {
	bd, err := resolveBounds(q, now)
	if err != nil {
		return nil, err
	}

	bucket, err := fluxBucket(q.Target)
	if err != nil {
		return nil, err
	}
	m, err := FluxCodec.QuoteString(q.Measurement)
	if err != nil {
		return nil, err
	}
	f, err := FluxCodec.QuoteString(q.Field)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	if q.Every != "" && q.Fill == "linear" {
		sb.WriteString("import \"interpolate\"\n")
	}
	fmt.Fprintf(&sb, "from(bucket: %s)\n", bucket)
	fmt.Fprintf(&sb, "  |> range(start: %s, stop: %s)\n", fluxStart(bd), fluxStop(bd))
	fmt.Fprintf(&sb, "  |> filter(fn: (r) => r[\"_measurement\"] == %s)\n", m)
	fmt.Fprintf(&sb, "  |> filter(fn: (r) => r[\"_field\"] == %s)\n", f)

	tagFilter, err := fluxTagFilter(q.Tags)
	if err != nil {
		return nil, err
	}
	if tagFilter != "" {
		fmt.Fprintf(&sb, "  |> filter(fn: (r) => %s)\n", tagFilter)
	}

	if q.Every != "" {
		// Filling only makes sense when the empty windows are materialized.
		createEmpty := "false"
		if q.Fill == "previous" || q.Fill == "linear" {
			createEmpty = "true"
		}
		fmt.Fprintf(&sb, "  |> aggregateWindow(every: %s, fn: %s, createEmpty: %s)\n", q.Every, q.Aggregate, createEmpty)
		switch q.Fill {
		case "previous":
			sb.WriteString("  |> fill(usePrevious: true)\n")
		case "linear":
			fmt.Fprintf(&sb, "  |> interpolate.linear(every: %s)\n", q.Every)
		}
	}

	fmt.Fprintf(&sb, "  |> limit(n: %d)", q.Limit)

	effStart, effStop, err := bd.effective(q.Every)
	if err != nil {
		return nil, err
	}

	return &BuiltQuery{Text: sb.String(), StartEffective: effStart, StopEffective: effStop}, nil
}

func (b FluxBuilder) LastPoint(q *model.Query) (string, error) {
	bucket, err := fluxBucket(q.Target)
	if err != nil {
		return "", err
	}
	m, err := FluxCodec.QuoteString(q.Measurement)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "from(bucket: %s)\n", bucket)
	fmt.Fprintf(&sb, "  |> range(start: %s)\n", lastPointLookback)
	fmt.Fprintf(&sb, "  |> filter(fn: (r) => r[\"_measurement\"] == %s)\n", m)

	if q.Field != "" {
		f, err := FluxCodec.QuoteString(q.Field)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "  |> filter(fn: (r) => r[\"_field\"] == %s)\n", f)
	}

	tagFilter, err := fluxTagFilter(q.Tags)
	if err != nil {
		return "", err
	}
	if tagFilter != "" {
		fmt.Fprintf(&sb, "  |> filter(fn: (r) => %s)\n", tagFilter)
	}

	sb.WriteString("  |> last()")
	return sb.String(), nil
}

// fluxBucket quotes a target as a bucket name. The full target is kept:
// v2 exposes migrated v1 data under "db/rp" DBRP-mapped bucket names, so a
// slash in the target is legitimate.
func fluxBucket(target string) (string, error) {
	return FluxCodec.QuoteString(target)
}

// fluxTagFilter renders tag equality predicates conjoined with "and", in
// key order for deterministic text.
func fluxTagFilter(tags map[string]string) (string, error) {
	if len(tags) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	preds := make([]string, 0, len(keys))
	for _, k := range keys {
		ident, err := FluxCodec.QuoteIdent(k)
		if err != nil {
			return "", err
		}
		lit, err := FluxCodec.QuoteString(tags[k])
		if err != nil {
			return "", err
		}
		preds = append(preds, fmt.Sprintf("r[%s] == %s", ident, lit))
	}
	return strings.Join(preds, " and "), nil
}

func fluxStart(b *bounds) string {
	if b.startRel != "" {
		return b.startRel
	}
	return b.start.UTC().Format(time.RFC3339Nano)
}

func fluxStop(b *bounds) string {
	if b.stopNow {
		return "now()"
	}
	return b.stop.UTC().Format(time.RFC3339Nano)
}
