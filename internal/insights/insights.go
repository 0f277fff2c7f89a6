// Package insights computes dashboard aggregates from data-access payloads:
// portfolio KPIs, flagged aspects per property, and prescriptive
// recommendations. All computation is pure and happens over whatever the
// data-access layer returned, so insights inherit its provenance.
package insights

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"voc-dashboard/internal/domain"
)

// Querier is the slice of the data-access façade insights need.
// Implemented by dataaccess.Service.
type Querier interface {
	Query(ctx context.Context, table domain.LogicalTable, filters map[string]string, shape domain.Shape) (*domain.ResultPayload, error)
}

// Service derives aggregates from the locations and review_aspects tables.
type Service struct {
	data   Querier
	logger *slog.Logger
}

// New creates an insights Service.
func New(data Querier, logger *slog.Logger) *Service {
	return &Service{data: data, logger: logger.With("component", "insights")}
}

// KPIs summarize the whole portfolio for the operations dashboard.
type KPIs struct {
	AvgNegativePct      float64       `json:"avg_negative_pct"`
	OverallSatisfaction float64       `json:"overall_satisfaction"`
	PropertiesFlagged   int           `json:"properties_flagged"`
	ReviewsProcessed    int64         `json:"reviews_processed"`
	Source              domain.Source `json:"source"`
}

// FlaggedAspect is one aspect in a critical or warning state.
type FlaggedAspect struct {
	PropertyID   string  `json:"property_id"`
	PropertyName string  `json:"property_name"`
	Aspect       string  `json:"aspect"`
	NegativePct  float64 `json:"negative_pct"`
	Status       string  `json:"status"`
}

// Recommendation is a prescriptive action for one flagged aspect.
type Recommendation struct {
	PropertyID  string   `json:"property_id"`
	Aspect      string   `json:"aspect"`
	Status      string   `json:"status"`
	NegativePct float64  `json:"negative_pct"`
	Action      string   `json:"action"`
	ActionItems []string `json:"action_items"`
	Timeline    string   `json:"timeline"`
	Cost        string   `json:"cost"`
}

// KPIs aggregates across every property. Satisfaction is the complement of
// the average negative-aspect percentage.
func (s *Service) KPIs(ctx context.Context) (*KPIs, error) {
	aspects, err := s.data.Query(ctx, domain.TableReviewAspects, nil, domain.ShapeTable)
	if err != nil {
		return nil, err
	}
	locations, err := s.data.Query(ctx, domain.TableLocations, nil, domain.ShapeTable)
	if err != nil {
		return nil, err
	}

	var (
		negativeSum float64
		aspectCount int
		flagged     = make(map[string]struct{})
	)
	propIdx := aspects.Column("property_id")
	pctIdx := aspects.Column("negative_percentage")
	statusIdx := aspects.Column("status")
	for _, row := range aspects.Rows {
		pct := toFloat(value(row, pctIdx))
		negativeSum += pct
		aspectCount++
		status := toString(value(row, statusIdx))
		if status == "critical" || status == "warning" {
			flagged[toString(value(row, propIdx))] = struct{}{}
		}
	}

	var reviews int64
	countIdx := locations.Column("reviews_count")
	for _, row := range locations.Rows {
		reviews += int64(toFloat(value(row, countIdx)))
	}

	avgNegative := 0.0
	if aspectCount > 0 {
		avgNegative = round1(negativeSum / float64(aspectCount))
	}

	source := aspects.Source
	if locations.Source == domain.SourceFallback {
		source = domain.SourceFallback
	}
	return &KPIs{
		AvgNegativePct:      avgNegative,
		OverallSatisfaction: round1(100 - avgNegative),
		PropertiesFlagged:   len(flagged),
		ReviewsProcessed:    reviews,
		Source:              source,
	}, nil
}

// Flagged lists every aspect in a critical or warning state, worst first.
func (s *Service) Flagged(ctx context.Context) ([]FlaggedAspect, error) {
	payload, err := s.data.Query(ctx, domain.TableReviewAspects, nil, domain.ShapeTable)
	if err != nil {
		return nil, err
	}

	propIdx := payload.Column("property_id")
	nameIdx := payload.Column("property_name")
	aspectIdx := payload.Column("aspect")
	pctIdx := payload.Column("negative_percentage")
	statusIdx := payload.Column("status")

	var out []FlaggedAspect
	for _, row := range payload.Rows {
		status := toString(value(row, statusIdx))
		if status != "critical" && status != "warning" {
			continue
		}
		out = append(out, FlaggedAspect{
			PropertyID:   toString(value(row, propIdx)),
			PropertyName: toString(value(row, nameIdx)),
			Aspect:       toString(value(row, aspectIdx)),
			NegativePct:  toFloat(value(row, pctIdx)),
			Status:       status,
		})
	}
	sortFlagged(out)
	return out, nil
}

// Recommendations produces prescriptive actions for one property's flagged
// aspects. A property with nothing flagged gets an empty list, not an error.
func (s *Service) Recommendations(ctx context.Context, propertyID string) ([]Recommendation, error) {
	if propertyID == "" {
		return nil, domain.ErrValidation("property id is required")
	}

	payload, err := s.data.Query(ctx, domain.TableReviewAspects, map[string]string{"property_id": propertyID}, domain.ShapeTable)
	if err != nil {
		return nil, err
	}

	aspectIdx := payload.Column("aspect")
	pctIdx := payload.Column("negative_percentage")
	statusIdx := payload.Column("status")

	var out []Recommendation
	for _, row := range payload.Rows {
		status := toString(value(row, statusIdx))
		if status != "critical" && status != "warning" {
			continue
		}
		aspect := toString(value(row, aspectIdx))
		rec := playbookFor(aspect)
		rec.PropertyID = propertyID
		rec.Aspect = aspect
		rec.Status = status
		rec.NegativePct = toFloat(value(row, pctIdx))
		out = append(out, rec)
	}
	sortRecommendations(out)
	return out, nil
}

// playbooks map known aspects to their remediation templates. Unknown
// aspects fall through to a generic plan.
var playbooks = map[string]Recommendation{
	"Room Cleanliness": {
		Action: "Tighten housekeeping quality checks and retrain on deep-cleaning protocols.",
		ActionItems: []string{
			"Audit all rooms for cleanliness",
			"Introduce a room inspection checklist",
			"Run deep-cleaning refresher training",
		},
		Timeline: "2 weeks",
		Cost:     "low-medium",
	},
	"Staff Service": {
		Action: "Run customer-service training and standardize guest interaction protocols.",
		ActionItems: []string{
			"Hold a service training workshop",
			"Standardize greeting and response-time procedures",
			"Schedule recurring service-quality reviews",
		},
		Timeline: "3 weeks",
		Cost:     "low",
	},
	"WiFi Connectivity": {
		Action: "Upgrade network hardware and add a redundant uplink.",
		ActionItems: []string{
			"Replace access points with enterprise-grade units",
			"Contract a backup internet provider",
			"Add network monitoring with coverage analysis",
		},
		Timeline: "1 week",
		Cost:     "high",
	},
	"Noise Levels": {
		Action: "Add soundproofing in affected rooms and enforce quiet hours.",
		ActionItems: []string{
			"Soundproof the worst-affected rooms",
			"Service HVAC units for noise",
			"Publish and enforce a quiet-hours policy",
		},
		Timeline: "4 weeks",
		Cost:     "medium-high",
	},
	"Amenities": {
		Action: "Audit amenities and refresh offerings against guest feedback.",
		ActionItems: []string{
			"Run a full amenities audit",
			"Fix maintenance backlog on shared facilities",
			"Collect structured amenity feedback",
		},
		Timeline: "3 weeks",
		Cost:     "medium",
	},
}

func playbookFor(aspect string) Recommendation {
	if rec, ok := playbooks[aspect]; ok {
		return rec
	}
	lower := strings.ToLower(aspect)
	return Recommendation{
		Action: fmt.Sprintf("Address %s concerns with a targeted improvement plan.", lower),
		ActionItems: []string{
			fmt.Sprintf("Analyze recent %s complaints", lower),
			"Draft and execute a corrective plan",
			"Track guest feedback for improvement",
		},
		Timeline: "2-4 weeks",
		Cost:     "medium",
	}
}

// statusRank orders severities: critical before warning.
func statusRank(status string) int {
	if status == "critical" {
		return 0
	}
	return 1
}

// sortFlagged orders by severity (critical first), then negative percentage
// descending.
func sortFlagged(items []FlaggedAspect) {
	sort.Slice(items, func(i, j int) bool {
		if statusRank(items[i].Status) != statusRank(items[j].Status) {
			return statusRank(items[i].Status) < statusRank(items[j].Status)
		}
		return items[i].NegativePct > items[j].NegativePct
	})
}

func sortRecommendations(items []Recommendation) {
	sort.Slice(items, func(i, j int) bool {
		if statusRank(items[i].Status) != statusRank(items[j].Status) {
			return statusRank(items[i].Status) < statusRank(items[j].Status)
		}
		return items[i].NegativePct > items[j].NegativePct
	})
}

func value(row []interface{}, idx int) interface{} {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
