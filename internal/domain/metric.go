package domain

import (
	"fmt"
	"regexp"
)

// MetricKind: тег варианта определения метрики.
type MetricKind string

const (
	KindSingleTable MetricKind = "single_table" // счетчик по одной таблице
	KindComposite   MetricKind = "composite"    // сумма нескольких single-table метрик
)

// RowFilter декларативный фильтр строк. SQL-выражение строит только репозиторий,
// поэтому в реестре нет произвольного текста запроса.
type RowFilter int

const (
	FilterNone     RowFilter = iota // TRUE
	FilterOutbound                  // COALESCE("isIncoming", FALSE) = FALSE
)

// DefaultMetricKey: метрика, на которую откатывается неизвестный ключ.
const DefaultMetricKey = "contactsMade"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier проверяет имя таблицы/колонки по строгому allow-list.
// Только такие имена попадают в структуру SQL-запроса.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// TableSource описывает, откуда и как считается single-table метрика.
type TableSource struct {
	Table string

	// Колонка времени события; если задан FallbackTimeColumn,
	// время = COALESCE(TimeColumn, FallbackTimeColumn)
	TimeColumn         string
	FallbackTimeColumn string

	Filter RowFilter
}

func (s TableSource) validate() error {
	if !ValidIdentifier(s.Table) {
		return fmt.Errorf("invalid table identifier %q", s.Table)
	}
	if !ValidIdentifier(s.TimeColumn) {
		return fmt.Errorf("invalid time column %q", s.TimeColumn)
	}
	if s.FallbackTimeColumn != "" && !ValidIdentifier(s.FallbackTimeColumn) {
		return fmt.Errorf("invalid fallback time column %q", s.FallbackTimeColumn)
	}
	if s.Filter != FilterNone && s.Filter != FilterOutbound {
		return fmt.Errorf("unknown row filter %d", s.Filter)
	}
	return nil
}

// MetricDefinition статическая запись реестра.
// Для KindSingleTable заполнен Source, для KindComposite: Parts (ключи single-table метрик).
type MetricDefinition struct {
	Key    string
	Label  string
	Kind   MetricKind
	Source TableSource
	Parts  []string
}

func SingleTable(key, label string, src TableSource) MetricDefinition {
	return MetricDefinition{Key: key, Label: label, Kind: KindSingleTable, Source: src}
}

func Composite(key, label string, parts ...string) MetricDefinition {
	return MetricDefinition{Key: key, Label: label, Kind: KindComposite, Parts: parts}
}

// MetricRegistry: фиксированный упорядоченный реестр метрик.
type MetricRegistry struct {
	ordered    []MetricDefinition
	byKey      map[string]int
	defaultKey string
}

// NewMetricRegistry собирает реестр и проверяет инварианты:
// уникальные ключи, корректные идентификаторы, составные метрики ссылаются только на single-table.
func NewMetricRegistry(defaultKey string, defs ...MetricDefinition) (*MetricRegistry, error) {
	r := &MetricRegistry{
		ordered:    make([]MetricDefinition, 0, len(defs)),
		byKey:      make(map[string]int, len(defs)),
		defaultKey: defaultKey,
	}

	for _, d := range defs {
		if d.Key == "" {
			return nil, fmt.Errorf("metric registry: empty key")
		}
		if _, dup := r.byKey[d.Key]; dup {
			return nil, fmt.Errorf("metric registry: duplicate key %q", d.Key)
		}
		r.byKey[d.Key] = len(r.ordered)
		r.ordered = append(r.ordered, d)
	}

	for _, d := range r.ordered {
		switch d.Kind {
		case KindSingleTable:
			if len(d.Parts) > 0 {
				return nil, fmt.Errorf("metric registry: %q is single-table but lists parts", d.Key)
			}
			if err := d.Source.validate(); err != nil {
				return nil, fmt.Errorf("metric registry: %q: %w", d.Key, err)
			}
		case KindComposite:
			if len(d.Parts) == 0 {
				return nil, fmt.Errorf("metric registry: composite %q has no parts", d.Key)
			}
			for _, p := range d.Parts {
				idx, ok := r.byKey[p]
				if !ok {
					return nil, fmt.Errorf("metric registry: %q references unknown metric %q", d.Key, p)
				}
				if r.ordered[idx].Kind != KindSingleTable {
					return nil, fmt.Errorf("metric registry: %q references non single-table metric %q", d.Key, p)
				}
			}
		default:
			return nil, fmt.Errorf("metric registry: %q has unknown kind %q", d.Key, d.Kind)
		}
	}

	if _, ok := r.byKey[defaultKey]; !ok {
		return nil, fmt.Errorf("metric registry: default metric %q is not registered", defaultKey)
	}

	return r, nil
}

// DefaultMetrics реестр CRM-активности в порядке отображения KPI.
func DefaultMetrics() *MetricRegistry {
	outbound := func(table string) TableSource {
		return TableSource{Table: table, TimeColumn: "sent", FallbackTimeColumn: "created", Filter: FilterOutbound}
	}

	r, err := NewMetricRegistry(DefaultMetricKey,
		SingleTable("newLeadsAssigned", "New Leads Assigned", TableSource{Table: "rollout_people", TimeColumn: "created"}),
		Composite("contactsMade", "Contacts Made", "callsMade", "textsSent", "emailsSent"),
		SingleTable("callsMade", "Calls Made", TableSource{Table: "rollout_calls", TimeColumn: "created", Filter: FilterOutbound}),
		SingleTable("textsSent", "Texts Sent (Manual)", outbound("rollout_text_messages")),
		SingleTable("emailsSent", "Emails Sent (Manual)", outbound("rollout_email_messages")),
	)
	if err != nil {
		// реестр статический, ошибка здесь означает ошибку программиста
		panic(err)
	}
	return r
}

// All возвращает определения в порядке регистрации.
func (r *MetricRegistry) All() []MetricDefinition {
	out := make([]MetricDefinition, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Lookup ищет метрику строго по ключу.
func (r *MetricRegistry) Lookup(key string) (MetricDefinition, bool) {
	idx, ok := r.byKey[key]
	if !ok {
		return MetricDefinition{}, false
	}
	return r.ordered[idx], true
}

// Resolve никогда не падает: неизвестный ключ молча заменяется метрикой по умолчанию.
func (r *MetricRegistry) Resolve(key string) MetricDefinition {
	if d, ok := r.Lookup(key); ok {
		return d
	}
	return r.ordered[r.byKey[r.defaultKey]]
}

// Sources раскладывает метрику на single-table источники.
func (r *MetricRegistry) Sources(d MetricDefinition) []TableSource {
	if d.Kind == KindSingleTable {
		return []TableSource{d.Source}
	}
	out := make([]TableSource, 0, len(d.Parts))
	for _, p := range d.Parts {
		out = append(out, r.ordered[r.byKey[p]].Source)
	}
	return out
}

// Descriptors: список {key,label} для availableMetrics.
func (r *MetricRegistry) Descriptors() []MetricDescriptor {
	out := make([]MetricDescriptor, 0, len(r.ordered))
	for _, d := range r.ordered {
		out = append(out, MetricDescriptor{Key: d.Key, Label: d.Label})
	}
	return out
}
