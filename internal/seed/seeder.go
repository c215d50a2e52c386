package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/crm-activity-dashboard/internal/connectors"
	"go.uber.org/zap"
)

const (
	seedSource = "Persona Seed Script"
	fromNumber = "303-555-0199"
	isoLayout  = "2006-01-02T15:04:05.000Z"
)

// ErrNoID: ответ CRM не содержит числового идентификатора.
var ErrNoID = errors.New("could not extract id")

// Succeeded персона, прошедшая все шаги.
type Succeeded struct {
	PersonID    int64  `json:"personId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Archetype   string `json:"archetype"`
}

// Failed: персона, которую не удалось создать, или частичный успех (PersonID задан).
type Failed struct {
	Name     string `json:"name"`
	PersonID *int64 `json:"personId,omitempty"`
	Error    string `json:"error"`
}

type Summary struct {
	Batch      int         `json:"batch"`
	CampaignID int64       `json:"campaignId"`
	Succeeded  []Succeeded `json:"succeeded"`
	Failed     []Failed    `json:"failed"`
}

func (s *Summary) HasFailures() bool { return len(s.Failed) > 0 }

type Seeder struct {
	api     connectors.Poster
	xSystem string
	now     func() time.Time
	logger  *zap.Logger
}

func NewSeeder(api connectors.Poster, xSystem string, logger *zap.Logger) *Seeder {
	return &Seeder{
		api:     api,
		xSystem: xSystem,
		now:     time.Now,
		logger:  logger.Named("seeder"),
	}
}

// Run создает кампанию и засевает пачку персон. Ошибка возвращается только
// если не удалось создать кампанию; сбои персон попадают в Summary.
func (s *Seeder) Run(ctx context.Context, batch int) (*Summary, error) {
	batch = NormalizeBatch(batch)
	now := s.now().UTC()
	tags := runTags{
		run:   "persona-seed-" + now.Format("2006-01-02"),
		batch: "persona-batch-" + strconv.Itoa(batch),
	}

	campaignID, err := s.createCampaign(ctx, tags, now)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Batch:      batch,
		CampaignID: campaignID,
		Succeeded:  make([]Succeeded, 0),
		Failed:     make([]Failed, 0),
	}

	for i, p := range PersonasFor(batch) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		log := s.logger.With(zap.String("persona", p.DisplayName()))

		result, err := s.createPerson(ctx, p, i, tags)
		if err != nil {
			log.Error("persona failed", zap.Error(err))
			summary.Failed = append(summary.Failed, Failed{Name: p.DisplayName(), Error: err.Error()})
			continue
		}

		stepErrs := s.runActivitySteps(ctx, p, result, campaignID)
		if len(stepErrs) == 0 {
			log.Info("persona seeded", zap.Int64("person_id", result.PersonID))
			summary.Succeeded = append(summary.Succeeded, result)
			continue
		}

		log.Warn("persona partially seeded", zap.Int64("person_id", result.PersonID), zap.Strings("errors", stepErrs))
		id := result.PersonID
		summary.Failed = append(summary.Failed, Failed{
			Name:     p.DisplayName(),
			PersonID: &id,
			Error:    strings.Join(stepErrs, " | "),
		})
	}

	return summary, nil
}

type runTags struct {
	run   string
	batch string
}

func (s *Seeder) createCampaign(ctx context.Context, tags runTags, now time.Time) (int64, error) {
	stamp := strings.ReplaceAll(now.Format(isoLayout), ":", "-")

	data, err := s.api.Post(ctx, "/emCampaigns", map[string]any{
		"origin":   seedSource,
		"originId": tags.run + "-" + tags.batch + "-" + stamp,
		"name":     "Persona Seed Campaign " + tags.batch + " " + tags.run,
		"subject":  "Persona Nurture Sequence",
		"bodyHtml": "<p>Thanks for connecting. We will share tailored next steps shortly.</p>",
	})
	if err != nil {
		return 0, fmt.Errorf("create email campaign: %w", err)
	}

	id, ok := extractID(data)
	if !ok {
		return 0, fmt.Errorf("/emCampaigns response: %w", ErrNoID)
	}
	return id, nil
}

func (s *Seeder) createPerson(ctx context.Context, p Persona, index int, tags runTags) (Succeeded, error) {
	email := fmt.Sprintf("%s.%s+%d-%d@example.com",
		strings.ToLower(p.FirstName), strings.ToLower(p.LastName), s.now().UnixMilli(), index)

	data, err := s.api.Post(ctx, "/people", map[string]any{
		"firstName":  p.FirstName,
		"lastName":   p.LastName,
		"stage":      "Lead",
		"source":     seedSource,
		"price":      p.Budget,
		"emails":     []map[string]string{{"value": email, "type": "work"}},
		"phones":     []map[string]string{{"value": p.Phone, "type": "mobile"}},
		"addresses":  []map[string]string{{"type": "home", "city": p.City, "state": p.State, "country": "United States"}},
		"tags":       []string{tags.run, tags.batch, "persona-seed", p.ArchetypeTag},
		"background": p.Archetype + ". " + p.Note,
	})
	if err != nil {
		return Succeeded{}, err
	}

	id, ok := extractID(data)
	if !ok {
		return Succeeded{}, fmt.Errorf("/people response for %s: %w", p.DisplayName(), ErrNoID)
	}

	return Succeeded{PersonID: id, DisplayName: p.DisplayName(), Email: email, Archetype: p.Archetype}, nil
}

type step struct {
	name string
	path string
	body any
}

// runActivitySteps выполняет все шаги независимо и собирает ошибки "<шаг>: <причина>".
func (s *Seeder) runActivitySteps(ctx context.Context, p Persona, r Succeeded, campaignID int64) []string {
	now := s.now().UTC()
	nowISO := now.Format(isoLayout)

	steps := []step{
		{"note", "/notes", map[string]any{
			"personId": r.PersonID,
			"subject":  "Persona Intake Summary",
			"body": fmt.Sprintf("%s profile: %s. %s Budget target: $%s.",
				r.DisplayName, p.Archetype, p.Note, groupThousands(p.Budget)),
			"isHtml": false,
		}},
		{"call", "/calls", map[string]any{
			"personId":   r.PersonID,
			"phone":      p.Phone,
			"isIncoming": false,
			"note":       "Discovery call completed for " + p.Archetype + ". Confirmed timeline and financing stance.",
			"outcome":    "Interested",
			"duration":   540,
			"toNumber":   p.Phone,
			"fromNumber": fromNumber,
		}},
		{"text", "/textMessages", map[string]any{
			"personId": r.PersonID,
			"message": fmt.Sprintf("Hi %s, thanks for the call. I pulled 3 options aligned with your %s goals.",
				p.FirstName, strings.ToLower(p.Archetype)),
			"toNumber":      p.Phone,
			"fromNumber":    fromNumber,
			"isIncoming":    false,
			"externalLabel": "Persona seed text",
			"externalUrl":   "https://example.com/persona-seed",
		}},
		{"email", "/emEvents", map[string]any{
			"emEvents": []map[string]any{{
				"type":       "delivered",
				"occurred":   nowISO,
				"recipient":  r.Email,
				"personId":   r.PersonID,
				"campaignId": campaignID,
				"url":        "https://example.com/campaign/persona-seed",
			}},
		}},
		{"event", "/events", map[string]any{
			"source":      seedSource,
			"system":      s.xSystem,
			"type":        "Inquiry",
			"message":     r.DisplayName + " requested next-step recommendations.",
			"description": "Synthetic event for " + p.Archetype + ".",
			"person":      map[string]int64{"id": r.PersonID},
			"occurredAt":  nowISO,
		}},
		{"task", "/tasks", map[string]any{
			"personId":            r.PersonID,
			"type":                "Follow Up",
			"dueDate":             atHourInDays(now, 2, 16).Format("2006-01-02"),
			"remindSecondsBefore": 7200,
		}},
		{"appointment", "/appointments", map[string]any{
			"title":       r.DisplayName + " Strategy Session",
			"description": "Review next properties and financing plan for " + p.Archetype + ".",
			"start":       atHourInDays(now, 3, 17).Format(isoLayout),
			"end":         atHourInDays(now, 3, 18).Format(isoLayout),
			"location":    "Video Call",
			"invitees":    invitees(r),
		}},
	}

	errs := make([]string, 0)
	for _, st := range steps {
		if _, err := s.api.Post(ctx, st.path, st.body); err != nil {
			errs = append(errs, st.name+": "+err.Error())
		}
	}
	return errs
}

// invitees: API ждет JSON-строку, а не массив.
func invitees(r Succeeded) string {
	raw, _ := json.Marshal([]map[string]any{{"personId": r.PersonID, "name": r.DisplayName, "email": r.Email}})
	return string(raw)
}

// atHourInDays: now + days суток, время выставлено в hour:00 UTC.
func atHourInDays(now time.Time, days, hour int) time.Time {
	d := now.UTC().Add(time.Duration(days) * 24 * time.Hour)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

// extractID ищет числовой id в id, personId, person.id или people[0].id.
func extractID(data json.RawMessage) (int64, bool) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return 0, false
	}

	if id, ok := number(obj["id"]); ok {
		return id, true
	}
	if id, ok := number(obj["personId"]); ok {
		return id, true
	}
	if person, ok := obj["person"].(map[string]any); ok {
		if id, ok := number(person["id"]); ok {
			return id, true
		}
	}
	if people, ok := obj["people"].([]any); ok && len(people) > 0 {
		if first, ok := people[0].(map[string]any); ok {
			if id, ok := number(first["id"]); ok {
				return id, true
			}
		}
	}
	return 0, false
}

func number(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// groupThousands: 2400000 -> "2,400,000".
func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
