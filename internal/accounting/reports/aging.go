package reports

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybooks/tallybooks/internal/shared"
)

// AgingKind selects receivables or payables.
type AgingKind string

const (
	AgingReceivable AgingKind = "receivable"
	AgingPayable    AgingKind = "payable"
)

// Valid reports whether the kind is known.
func (k AgingKind) Valid() bool {
	return k == AgingReceivable || k == AgingPayable
}

// DefaultAgingPeriods are the bucket upper bounds in days.
var DefaultAgingPeriods = []int{30, 60, 90, 120}

// ErrInvalidAgingPeriods flags bucket bounds that are not positive and strictly increasing.
var ErrInvalidAgingPeriods = fmt.Errorf("reports: aging periods must be positive and increasing: %w", shared.ErrValidation)

// ValidatePeriods checks bucket bounds.
func ValidatePeriods(periods []int) error {
	if len(periods) == 0 {
		return ErrInvalidAgingPeriods
	}
	prev := 0
	for _, p := range periods {
		if p <= prev {
			return ErrInvalidAgingPeriods
		}
		prev = p
	}
	return nil
}

// BucketLabels names the buckets for the given bounds: "Current", then one
// contiguous range per bound, then "Over N days".
func BucketLabels(periods []int) []string {
	labels := make([]string, 0, len(periods)+2)
	labels = append(labels, "Current")
	lower := 1
	for _, p := range periods {
		labels = append(labels, strconv.Itoa(lower)+"-"+strconv.Itoa(p)+" days")
		lower = p + 1
	}
	last := 0
	if len(periods) > 0 {
		last = periods[len(periods)-1]
	}
	return append(labels, "Over "+strconv.Itoa(last)+" days")
}

// BucketFor returns the index into BucketLabels for a days-overdue value.
func BucketFor(daysOverdue int, periods []int) int {
	if daysOverdue <= 0 {
		return 0
	}
	for i, p := range periods {
		if daysOverdue <= p {
			return i + 1
		}
	}
	return len(periods) + 1
}

// DaysOverdue counts whole days between the due date and asOf, zero when
// there is no due date or it has not passed.
func DaysOverdue(due *time.Time, asOf time.Time) int {
	if due == nil {
		return 0
	}
	d := truncateDay(asOf).Sub(truncateDay(*due))
	days := int(d.Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OpenDocument is an unpaid invoice or bill as seen by the aging report.
type OpenDocument struct {
	TransactionID int64           `json:"transaction_id"`
	Number        string          `json:"number"`
	EntityID      int64           `json:"entity_id"`
	EntityName    string          `json:"entity_name"`
	Date          time.Time       `json:"date"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	BalanceDue    decimal.Decimal `json:"balance_due"`
}

// Counterparty is a customer or vendor.
type Counterparty struct {
	ID   int64
	Name string
}

// AgingParams parameterises an aging report.
type AgingParams struct {
	Kind        AgingKind
	AsOf        time.Time
	Periods     []int
	IncludeZero bool
	EntityID    *int64
}

// BucketAmount is the balance accumulated in one bucket.
type BucketAmount struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// AgingDocument is an open document placed in its bucket.
type AgingDocument struct {
	OpenDocument
	DaysOverdue int    `json:"days_overdue"`
	Bucket      string `json:"bucket"`
}

// AgingEntity totals one customer's or vendor's open documents.
type AgingEntity struct {
	EntityID   int64           `json:"entity_id"`
	EntityName string          `json:"entity_name"`
	Buckets    []BucketAmount  `json:"buckets"`
	Total      decimal.Decimal `json:"total"`
	Documents  []AgingDocument `json:"documents"`
}

// AgingReport is the AR or AP aging as of a date.
type AgingReport struct {
	Kind       AgingKind       `json:"kind"`
	AsOf       time.Time       `json:"as_of"`
	Periods    []int           `json:"periods"`
	Entities   []AgingEntity   `json:"entities"`
	Totals     []BucketAmount  `json:"totals"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

func emptyBuckets(labels []string) []BucketAmount {
	out := make([]BucketAmount, len(labels))
	for i, label := range labels {
		out[i] = BucketAmount{Label: label}
	}
	return out
}

// BuildAging buckets open documents per counterparty. Counterparties without
// documents are listed only when IncludeZero is set, as are entities whose
// balance nets to zero.
func BuildAging(params AgingParams, docs []OpenDocument, parties []Counterparty) AgingReport {
	periods := params.Periods
	labels := BucketLabels(periods)
	report := AgingReport{
		Kind:     params.Kind,
		AsOf:     params.AsOf,
		Periods:  periods,
		Entities: make([]AgingEntity, 0),
		Totals:   emptyBuckets(labels),
	}
	entities := make(map[int64]*AgingEntity)
	order := make([]int64, 0)
	entity := func(id int64, name string) *AgingEntity {
		e, ok := entities[id]
		if !ok {
			e = &AgingEntity{EntityID: id, EntityName: name, Buckets: emptyBuckets(labels), Documents: make([]AgingDocument, 0)}
			entities[id] = e
			order = append(order, id)
		}
		return e
	}
	for _, doc := range docs {
		if params.EntityID != nil && doc.EntityID != *params.EntityID {
			continue
		}
		days := DaysOverdue(doc.DueDate, params.AsOf)
		idx := BucketFor(days, periods)
		e := entity(doc.EntityID, doc.EntityName)
		e.Buckets[idx].Amount = e.Buckets[idx].Amount.Add(doc.BalanceDue)
		e.Total = e.Total.Add(doc.BalanceDue)
		e.Documents = append(e.Documents, AgingDocument{OpenDocument: doc, DaysOverdue: days, Bucket: labels[idx]})
	}
	if params.IncludeZero {
		for _, party := range parties {
			if params.EntityID != nil && party.ID != *params.EntityID {
				continue
			}
			entity(party.ID, party.Name)
		}
	}
	for _, id := range order {
		e := entities[id]
		if e.Total.IsZero() && !params.IncludeZero {
			continue
		}
		for i := range e.Buckets {
			report.Totals[i].Amount = report.Totals[i].Amount.Add(e.Buckets[i].Amount)
		}
		report.GrandTotal = report.GrandTotal.Add(e.Total)
		report.Entities = append(report.Entities, *e)
	}
	sort.SliceStable(report.Entities, func(i, j int) bool {
		return report.Entities[i].EntityName < report.Entities[j].EntityName
	})
	return report
}
