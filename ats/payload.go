package ats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Job is a posting in provider-neutral form.
type Job struct {
	Title         string
	Location      string
	Remote        bool
	ProviderJobID string

	URL         string
	Department  string
	Description string
	PostedAt    *time.Time

	// Raw is the provider's JSON for this posting.
	Raw json.RawMessage
}

// Payload is a decoded feed body. The concrete types are GreenhousePayload,
// LeverPayload, AshbyPayload and UnknownPayload.
type Payload interface {
	Provider() Provider
	Normalize() []Job
	sealed()
}

// entry keeps the raw bytes of a feed element next to its decoded value.
type entry[T any] struct {
	Value T
	Raw   json.RawMessage
}

func (e *entry[T]) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &e.Value); err != nil {
		return err
	}
	e.Raw = append(json.RawMessage(nil), b...)
	return nil
}

type greenhouseJob struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	AbsoluteURL    string `json:"absolute_url"`
	UpdatedAt      string `json:"updated_at"`
	FirstPublished string `json:"first_published"`
	Content        string `json:"content"`
	Departments    []struct {
		Name string `json:"name"`
	} `json:"departments"`
}

type GreenhousePayload struct {
	Jobs []entry[greenhouseJob] `json:"jobs"`
}

func (GreenhousePayload) Provider() Provider { return Greenhouse }
func (GreenhousePayload) sealed()            {}

func (p GreenhousePayload) Normalize() []Job {
	out := make([]Job, 0, len(p.Jobs))
	for _, e := range p.Jobs {
		j := e.Value
		job := Job{
			Title:       cleanText(j.Title),
			Location:    normalizeLocation(j.Location.Name),
			URL:         j.AbsoluteURL,
			Description: htmlToText(j.Content),
			Raw:         e.Raw,
		}
		if j.ID != 0 {
			job.ProviderJobID = strconv.FormatInt(j.ID, 10)
		}
		if len(j.Departments) > 0 {
			job.Department = cleanText(j.Departments[0].Name)
		}
		job.PostedAt = parseTime(j.FirstPublished)
		if job.PostedAt == nil {
			job.PostedAt = parseTime(j.UpdatedAt)
		}
		job.Remote = inferRemote(job.Location, job.Title)
		out = append(out, job)
	}
	return out
}

type leverPosting struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	HostedURL  string `json:"hostedUrl"`
	Categories struct {
		Location     string   `json:"location"`
		AllLocations []string `json:"allLocations"`
		Team         string   `json:"team"`
		Department   string   `json:"department"`
	} `json:"categories"`
	CreatedAt        int64  `json:"createdAt"`
	DescriptionPlain string `json:"descriptionPlain"`
	Description      string `json:"description"`
	WorkplaceType    string `json:"workplaceType"`
}

// LeverPayload is Lever's bare array of postings.
type LeverPayload []entry[leverPosting]

func (LeverPayload) Provider() Provider { return Lever }
func (LeverPayload) sealed()            {}

func (p LeverPayload) Normalize() []Job {
	out := make([]Job, 0, len(p))
	for _, e := range p {
		j := e.Value
		job := Job{
			Title:         cleanText(j.Text),
			Location:      normalizeLocation(j.Categories.Location),
			ProviderJobID: strings.TrimSpace(j.ID),
			URL:           j.HostedURL,
			PostedAt:      millisTime(j.CreatedAt),
			Raw:           e.Raw,
		}
		if job.Location == "" && len(j.Categories.AllLocations) > 0 {
			job.Location = normalizeLocation(strings.Join(j.Categories.AllLocations, ", "))
		}
		job.Department = cleanText(j.Categories.Department)
		if job.Department == "" {
			job.Department = cleanText(j.Categories.Team)
		}
		job.Description = strings.TrimSpace(j.DescriptionPlain)
		if job.Description == "" {
			job.Description = htmlToText(j.Description)
		}
		switch strings.ToLower(j.WorkplaceType) {
		case "remote":
			job.Remote = true
		case "hybrid", "on-site", "onsite":
			job.Remote = false
		default:
			job.Remote = inferRemote(job.Location, job.Title)
		}
		out = append(out, job)
	}
	return out
}

type ashbyJob struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Location         string `json:"location"`
	Department       string `json:"department"`
	IsRemote         *bool  `json:"isRemote"`
	JobURL           string `json:"jobUrl"`
	PublishedAt      string `json:"publishedAt"`
	DescriptionPlain string `json:"descriptionPlain"`
	DescriptionHTML  string `json:"descriptionHtml"`
}

type AshbyPayload struct {
	Jobs []entry[ashbyJob] `json:"jobs"`
}

func (AshbyPayload) Provider() Provider { return Ashby }
func (AshbyPayload) sealed()            {}

func (p AshbyPayload) Normalize() []Job {
	out := make([]Job, 0, len(p.Jobs))
	for _, e := range p.Jobs {
		j := e.Value
		job := Job{
			Title:         cleanText(j.Title),
			Location:      normalizeLocation(j.Location),
			ProviderJobID: strings.TrimSpace(j.ID),
			URL:           j.JobURL,
			Department:    cleanText(j.Department),
			PostedAt:      parseTime(j.PublishedAt),
			Raw:           e.Raw,
		}
		job.Description = strings.TrimSpace(j.DescriptionPlain)
		if job.Description == "" {
			job.Description = htmlToText(j.DescriptionHTML)
		}
		if j.IsRemote != nil {
			job.Remote = *j.IsRemote
		} else {
			job.Remote = inferRemote(job.Location, job.Title)
		}
		out = append(out, job)
	}
	return out
}

// UnknownPayload holds the elements of a feed whose vendor is not recognised.
// Fields are read best effort from the common names the known vendors use.
type UnknownPayload struct {
	Items []entry[map[string]any]
}

func (UnknownPayload) Provider() Provider { return Unknown }
func (UnknownPayload) sealed()            {}

func (p UnknownPayload) Normalize() []Job {
	out := make([]Job, 0, len(p.Items))
	for _, e := range p.Items {
		m := e.Value
		if m == nil {
			continue
		}
		job := Job{
			Title:         cleanText(firstString(m, "title", "text", "name")),
			Location:      normalizeLocation(locationOf(m)),
			ProviderJobID: idOf(m["id"]),
			URL:           firstString(m, "absolute_url", "hostedUrl", "jobUrl", "url"),
			Raw:           e.Raw,
		}
		if remote, ok := m["isRemote"].(bool); ok {
			job.Remote = remote
		} else {
			job.Remote = inferRemote(job.Location, job.Title)
		}
		out = append(out, job)
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func locationOf(m map[string]any) string {
	switch loc := m["location"].(type) {
	case string:
		return loc
	case map[string]any:
		if name, ok := loc["name"].(string); ok {
			return name
		}
	}
	if cats, ok := m["categories"].(map[string]any); ok {
		if loc, ok := cats["location"].(string); ok {
			return loc
		}
	}
	return ""
}

func idOf(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		if id == 0 {
			return ""
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

// Decode parses a feed body into the payload variant of p.
func Decode(p Provider, body []byte) (Payload, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, &ParseError{Provider: p, Err: fmt.Errorf("empty body")}
	}

	switch p {
	case Greenhouse:
		var out GreenhousePayload
		if err := decodeObject(body, &out); err != nil {
			return nil, &ParseError{Provider: p, Err: err}
		}
		return out, nil
	case Lever:
		var out LeverPayload
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, &ParseError{Provider: p, Err: err}
		}
		return out, nil
	case Ashby:
		var out AshbyPayload
		if err := decodeObject(body, &out); err != nil {
			return nil, &ParseError{Provider: p, Err: err}
		}
		return out, nil
	default:
		items, err := decodeUnknown(body)
		if err != nil {
			return nil, &ParseError{Provider: Unknown, Err: err}
		}
		return UnknownPayload{Items: items}, nil
	}
}

// decodeObject requires a JSON object with a "jobs" array. A missing key is a
// shape error rather than an empty feed.
func decodeObject(body []byte, out any) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return err
	}
	raw, ok := probe["jobs"]
	if !ok {
		return fmt.Errorf("missing jobs array")
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return json.Unmarshal(body, out)
}

func decodeUnknown(body []byte) ([]entry[map[string]any], error) {
	var list []entry[map[string]any]

	if body[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, err
		}
		for _, key := range []string{"jobs", "results"} {
			raw, ok := obj[key]
			if !ok {
				continue
			}
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			return objectsOf(items), nil
		}
		return nil, fmt.Errorf("object has neither jobs nor results")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, err
	}
	list = objectsOf(items)
	return list, nil
}

func objectsOf(items []json.RawMessage) []entry[map[string]any] {
	out := make([]entry[map[string]any], 0, len(items))
	for _, raw := range items {
		var e entry[map[string]any]
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}
