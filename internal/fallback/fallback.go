// Package fallback serves the static placeholder dataset used when the
// remote platform is unreachable. The data is embedded at build time, parsed
// once, and immutable afterwards; lookups are pure and never touch the
// network.
package fallback

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"voc-dashboard/internal/domain"
)

//go:embed properties.yaml
var propertiesYAML []byte

type aspectDef struct {
	Name               string  `yaml:"name"`
	NegativePercentage float64 `yaml:"negative_percentage"`
	Status             string  `yaml:"status"`
}

type propertyDef struct {
	ID           string      `yaml:"id"`
	Name         string      `yaml:"name"`
	City         string      `yaml:"city"`
	State        string      `yaml:"state"`
	Latitude     float64     `yaml:"latitude"`
	Longitude    float64     `yaml:"longitude"`
	ReviewsCount int         `yaml:"reviews_count"`
	AvgRating    float64     `yaml:"avg_rating"`
	TopTheme     string      `yaml:"top_theme"`
	Aspects      []aspectDef `yaml:"aspects"`
}

// Dataset is the immutable synthetic record set, pre-shaped into one
// ResultPayload per logical table.
type Dataset struct {
	tables map[domain.LogicalTable]*domain.ResultPayload
}

// Load parses the embedded dataset. Called once at startup.
func Load() (*Dataset, error) {
	var doc struct {
		Properties []propertyDef `yaml:"properties"`
	}
	if err := yaml.Unmarshal(propertiesYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse embedded fallback dataset: %w", err)
	}
	if len(doc.Properties) == 0 {
		return nil, fmt.Errorf("embedded fallback dataset is empty")
	}

	d := &Dataset{tables: make(map[domain.LogicalTable]*domain.ResultPayload)}
	d.tables[domain.TableLocations] = buildLocations(doc.Properties)
	d.tables[domain.TableReviewAspects] = buildReviewAspects(doc.Properties)
	d.tables[domain.TableIssues] = buildIssues(doc.Properties)
	return d, nil
}

// Get returns the synthetic payload for the logical table with the given
// filters applied. Filters match column values by case-insensitive equality
// so UI filtering behaves the same as against live data.
func (d *Dataset) Get(table domain.LogicalTable, filters map[string]string) (*domain.ResultPayload, error) {
	payload, ok := d.tables[table]
	if !ok {
		return nil, domain.ErrValidation("no fallback data for table %q", table)
	}
	return applyFilters(payload, filters), nil
}

func buildLocations(props []propertyDef) *domain.ResultPayload {
	cols := []string{"property_id", "name", "city", "state", "latitude", "longitude", "reviews_count", "avg_rating", "top_theme"}
	rows := make([][]interface{}, 0, len(props))
	for _, p := range props {
		rows = append(rows, []interface{}{
			p.ID, p.Name, p.City, p.State, p.Latitude, p.Longitude,
			p.ReviewsCount, p.AvgRating, p.TopTheme,
		})
	}
	return &domain.ResultPayload{Columns: cols, Rows: rows, Source: domain.SourceFallback}
}

func buildReviewAspects(props []propertyDef) *domain.ResultPayload {
	cols := []string{"property_id", "property_name", "aspect", "negative_percentage", "status"}
	var rows [][]interface{}
	for _, p := range props {
		for _, a := range p.Aspects {
			rows = append(rows, []interface{}{p.ID, p.Name, a.Name, a.NegativePercentage, a.Status})
		}
	}
	return &domain.ResultPayload{Columns: cols, Rows: rows, Source: domain.SourceFallback}
}

// buildIssues keeps only the aspects flagged critical or warning, the rows
// a property manager has to act on.
func buildIssues(props []propertyDef) *domain.ResultPayload {
	cols := []string{"property_id", "property_name", "aspect", "negative_percentage", "severity", "top_theme"}
	var rows [][]interface{}
	for _, p := range props {
		for _, a := range p.Aspects {
			if a.Status != "critical" && a.Status != "warning" {
				continue
			}
			rows = append(rows, []interface{}{p.ID, p.Name, a.Name, a.NegativePercentage, a.Status, p.TopTheme})
		}
	}
	return &domain.ResultPayload{Columns: cols, Rows: rows, Source: domain.SourceFallback}
}

func applyFilters(payload *domain.ResultPayload, filters map[string]string) *domain.ResultPayload {
	if len(filters) == 0 {
		return payload
	}

	out := &domain.ResultPayload{Columns: payload.Columns, Source: payload.Source}
	for _, row := range payload.Rows {
		if rowMatches(payload, row, filters) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

func rowMatches(payload *domain.ResultPayload, row []interface{}, filters map[string]string) bool {
	for col, want := range filters {
		idx := payload.Column(col)
		if idx < 0 || idx >= len(row) {
			// Unknown filter column matches nothing, mirroring an empty
			// result from the warehouse rather than an error.
			return false
		}
		got := fmt.Sprintf("%v", row[idx])
		if !strings.EqualFold(got, want) {
			return false
		}
	}
	return true
}
