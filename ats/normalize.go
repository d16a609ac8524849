package ats

import (
	"html"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
)

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// normalizeLocation collapses whitespace and drops repeated comma separated
// parts ("Remote, remote, US" becomes "Remote, US").
func normalizeLocation(loc string) string {
	loc = cleanText(loc)
	if loc == "" {
		return ""
	}

	loc = strings.TrimSpace(strings.TrimPrefix(loc, "Location:"))

	seen := map[string]bool{}
	var out []string
	for _, p := range strings.Split(loc, ",") {
		p = cleanText(p)
		if p == "" {
			continue
		}
		k := strings.ToLower(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}

	return strings.Join(out, ", ")
}

// inferRemote guesses the remote flag from free text when the provider has no
// explicit field for it. "Hybrid" postings are not remote.
func inferRemote(location, title string) bool {
	blob := strings.ToLower(location + " " + title)
	if strings.Contains(blob, "hybrid") {
		return false
	}
	return strings.Contains(blob, "remote") || strings.Contains(blob, "anywhere")
}

// htmlToText converts a posting body to plain text. Greenhouse escapes its
// HTML once more, so entities are decoded before parsing.
func htmlToText(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	if strings.Contains(body, "&lt;") {
		body = html.UnescapeString(body)
	}

	text, err := html2text.FromString(body, html2text.Options{OmitLinks: true})
	if err != nil {
		return cleanText(body)
	}

	return strings.TrimSpace(text)
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func millisTime(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
