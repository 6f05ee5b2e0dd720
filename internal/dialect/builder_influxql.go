package dialect

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"fluxmcp/internal/model"
)

// InfluxQLBuilder renders queries in the v1 SQL-like dialect. The database
// is an execution parameter in v1, so the schema queries omit it from the
// text; the series queries name it in the FROM clause.
type InfluxQLBuilder struct{}

var _ Builder = InfluxQLBuilder{}

func (InfluxQLBuilder) ListContainers() string {
	return "SHOW DATABASES"
}

// ListRetentionPolicies lists the retention policies of one database.
// The container listing pairs every database with its policies.
func (InfluxQLBuilder) ListRetentionPolicies(db string) (string, error) {
	ident, err := InfluxQLCodec.QuoteIdent(db)
	if err != nil {
		return "", err
	}
	return "SHOW RETENTION POLICIES ON " + ident, nil
}

func (InfluxQLBuilder) ListMeasurements(target string) (string, error) {
	return "SHOW MEASUREMENTS", nil
}

func (InfluxQLBuilder) ListFields(target, measurement string) (string, error) {
	m, err := InfluxQLCodec.QuoteIdent(measurement)
	if err != nil {
		return "", err
	}
	return "SHOW FIELD KEYS FROM " + m, nil
}

func (InfluxQLBuilder) ListTagKeys(target, measurement string) (string, error) {
	m, err := InfluxQLCodec.QuoteIdent(measurement)
	if err != nil {
		return "", err
	}
	return "SHOW TAG KEYS FROM " + m, nil
}

func (InfluxQLBuilder) ListTagValues(target, measurement, key string) (string, error) {
	m, err := InfluxQLCodec.QuoteIdent(measurement)
	if err != nil {
		return "", err
	}
	k, err := InfluxQLCodec.QuoteIdent(key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SHOW TAG VALUES FROM %s WITH KEY = %s", m, k), nil
}

func (b InfluxQLBuilder) SeriesQuery(q *model.Query, now time.Time) (*BuiltQuery, error) {
	bd, err := resolveBounds(q, now)
	if err != nil {
		return nil, err
	}

	field, err := InfluxQLCodec.QuoteIdent(q.Field)
	if err != nil {
		return nil, err
	}

	var sel string
	if q.Aggregate != "" {
		sel = fmt.Sprintf("%s(%s)", q.Aggregate, field)
	} else {
		sel = field
	}

	from, err := influxqlFrom(q.Target, q.Measurement)
	if err != nil {
		return nil, err
	}

	conds := []string{influxqlStartCond(bd), influxqlStopCond(bd)}
	tagConds, err := influxqlTagConds(q.Tags)
	if err != nil {
		return nil, err
	}
	conds = append(conds, tagConds...)

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE %s", sel, from, strings.Join(conds, " AND "))
	if q.Every != "" {
		fmt.Fprintf(&sb, " GROUP BY time(%s)", q.Every)
		if q.Fill != "" {
			fmt.Fprintf(&sb, " fill(%s)", q.Fill)
		}
	}
	fmt.Fprintf(&sb, " LIMIT %d", q.Limit)

	effStart, effStop, err := bd.effective(q.Every)
	if err != nil {
		return nil, err
	}

	return &BuiltQuery{Text: sb.String(), StartEffective: effStart, StopEffective: effStop}, nil
}

func (b InfluxQLBuilder) LastPoint(q *model.Query) (string, error) {
	sel := "*"
	if q.Field != "" {
		field, err := InfluxQLCodec.QuoteIdent(q.Field)
		if err != nil {
			return "", err
		}
		sel = field
	}

	from, err := influxqlFrom(q.Target, q.Measurement)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", sel, from)

	tagConds, err := influxqlTagConds(q.Tags)
	if err != nil {
		return "", err
	}
	if len(tagConds) > 0 {
		fmt.Fprintf(&sb, " WHERE %s", strings.Join(tagConds, " AND "))
	}

	sb.WriteString(" ORDER BY time DESC LIMIT 1")
	return sb.String(), nil
}

// influxqlFrom renders "db"."rp"."m" or "db".."m" when no retention policy
// is named in the target.
func influxqlFrom(target, measurement string) (string, error) {
	db, rp := model.SplitTarget(target)

	dbIdent, err := InfluxQLCodec.QuoteIdent(db)
	if err != nil {
		return "", err
	}
	m, err := InfluxQLCodec.QuoteIdent(measurement)
	if err != nil {
		return "", err
	}

	if rp == "" {
		return dbIdent + ".." + m, nil
	}
	rpIdent, err := InfluxQLCodec.QuoteIdent(rp)
	if err != nil {
		return "", err
	}
	return dbIdent + "." + rpIdent + "." + m, nil
}

// influxqlTagConds renders tag equality predicates in key order so that a
// given model always produces the same text.
func influxqlTagConds(tags map[string]string) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	for _, k := range keys {
		ident, err := InfluxQLCodec.QuoteIdent(k)
		if err != nil {
			return nil, err
		}
		lit, err := InfluxQLCodec.QuoteString(tags[k])
		if err != nil {
			return nil, err
		}
		conds = append(conds, fmt.Sprintf("%s = %s", ident, lit))
	}
	return conds, nil
}

func influxqlStartCond(b *bounds) string {
	if b.startRel != "" {
		// "-1h" renders as now() - 1h.
		return "time >= now() - " + b.startRel[1:]
	}
	return fmt.Sprintf("time >= '%s'", b.start.UTC().Format(time.RFC3339Nano))
}

func influxqlStopCond(b *bounds) string {
	if b.stopNow {
		return "time <= now()"
	}
	return fmt.Sprintf("time <= '%s'", b.stop.UTC().Format(time.RFC3339Nano))
}
