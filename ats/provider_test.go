package ats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		url  string
		want Provider
	}{
		{"https://boards-api.greenhouse.io/v1/boards/acme/jobs", Greenhouse},
		{"https://boards.greenhouse.io/acme", Greenhouse},
		{"https://api.lever.co/v0/postings/acme?mode=json", Lever},
		{"https://jobs.lever.co/acme", Lever},
		{"https://api.ashbyhq.com/posting-api/job-board/acme", Ashby},
		{"https://ACME.ashbyhq.com/", Ashby},
		{"https://acme.workable.com/api/jobs", Unknown},
		{"not a url at all", Unknown},
		{"", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectProvider(tt.url))
		})
	}
}

func TestMatchFeedURL(t *testing.T) {
	tests := []struct {
		in       string
		wantURL  string
		wantProv Provider
		ok       bool
	}{
		{"https://boards-api.greenhouse.io/v1/boards/acme/jobs", "https://boards-api.greenhouse.io/v1/boards/acme/jobs", Greenhouse, true},
		{"https://boards-api.greenhouse.io/v1/boards/acme/jobs?content=true", "https://boards-api.greenhouse.io/v1/boards/acme/jobs", Greenhouse, true},
		{"https://api.lever.co/v0/postings/acme", "https://api.lever.co/v0/postings/acme?mode=json", Lever, true},
		{"https://api.lever.co/v0/postings/acme?mode=json.", "https://api.lever.co/v0/postings/acme?mode=json", Lever, true},
		{"https://api.ashbyhq.com/posting-api/job-board/acme-labs", "https://api.ashbyhq.com/posting-api/job-board/acme-labs", Ashby, true},
		{"https://boards.greenhouse.io/acme", "", Unknown, false},
		{"http://api.lever.co/v0/postings/acme", "", Unknown, false},
		{"https://evil.example/boards-api.greenhouse.io/v1/boards/acme/jobs", "", Unknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, p, ok := MatchFeedURL(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.wantURL, got)
			assert.Equal(t, tt.wantProv, p)
		})
	}
}

func TestFindFeedURLInFreeText(t *testing.T) {
	answer := "**Acme** uses Greenhouse: https://boards-api.greenhouse.io/v1/boards/acme/jobs [1]"

	got, p, ok := FindFeedURL(answer)
	assert.True(t, ok)
	assert.Equal(t, Greenhouse, p)
	assert.Equal(t, "https://boards-api.greenhouse.io/v1/boards/acme/jobs", got)

	_, _, ok = FindFeedURL("They post jobs on https://acme.com/careers")
	assert.False(t, ok)
}

func TestBoardLinkToFeedURL(t *testing.T) {
	tests := []struct {
		link string
		want string
		ok   bool
	}{
		{"https://boards.greenhouse.io/acme/jobs/4012345", "https://boards-api.greenhouse.io/v1/boards/acme/jobs", true},
		{"https://job-boards.greenhouse.io/acme", "https://boards-api.greenhouse.io/v1/boards/acme/jobs", true},
		{"https://boards.greenhouse.io/embed/job_board/js?for=acme", "https://boards-api.greenhouse.io/v1/boards/acme/jobs", true},
		{"https://jobs.lever.co/acme/6b1c2d", "https://api.lever.co/v0/postings/acme?mode=json", true},
		{"https://jobs.ashbyhq.com/acme", "https://api.ashbyhq.com/posting-api/job-board/acme", true},
		{"https://acme.com/careers", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			got, _, ok := BoardLinkToFeedURL(tt.link)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
