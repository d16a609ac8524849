package ats

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Provider tags which job-board vendor serves a feed.
type Provider string

const (
	Greenhouse Provider = "greenhouse"
	Lever      Provider = "lever"
	Ashby      Provider = "ashby"
	Unknown    Provider = "unknown"
)

// Known lists the providers with a dedicated payload shape.
var Known = []Provider{Greenhouse, Lever, Ashby}

// DetectProvider tags a feed URL by the vendor domain in its host.
func DetectProvider(rawURL string) Provider {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Unknown
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "greenhouse.io"):
		return Greenhouse
	case strings.Contains(host, "lever.co"):
		return Lever
	case strings.Contains(host, "ashbyhq.com"):
		return Ashby
	default:
		return Unknown
	}
}

const (
	greenhouseFeed = "https://boards-api.greenhouse.io/v1/boards/%s/jobs"
	leverFeed      = "https://api.lever.co/v0/postings/%s?mode=json"
	ashbyFeed      = "https://api.ashbyhq.com/posting-api/job-board/%s"
)

// FeedURL builds the public JSON feed of a board token.
func FeedURL(p Provider, token string) (string, error) {
	token = strings.TrimSpace(token)
	if !tokenPattern.MatchString(token) {
		return "", fmt.Errorf("invalid board token %q", token)
	}

	switch p {
	case Greenhouse:
		return fmt.Sprintf(greenhouseFeed, token), nil
	case Lever:
		return fmt.Sprintf(leverFeed, token), nil
	case Ashby:
		return fmt.Sprintf(ashbyFeed, token), nil
	default:
		return "", fmt.Errorf("no feed template for provider %q", p)
	}
}

var (
	tokenPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

	feedPatterns = map[Provider]*regexp.Regexp{
		Greenhouse: regexp.MustCompile(`^https://boards-api\.greenhouse\.io/v1/boards/([A-Za-z0-9][A-Za-z0-9._-]*)/jobs/?(\?.*)?$`),
		Lever:      regexp.MustCompile(`^https://api\.lever\.co/v0/postings/([A-Za-z0-9][A-Za-z0-9._-]*)/?(\?.*)?$`),
		Ashby:      regexp.MustCompile(`^https://api\.ashbyhq\.com/posting-api/job-board/([A-Za-z0-9][A-Za-z0-9._-]*)/?(\?.*)?$`),
	}

	boardLinkPatterns = map[Provider]*regexp.Regexp{
		Greenhouse: regexp.MustCompile(`^https?://(?:boards|job-boards)(?:\.eu)?\.greenhouse\.io/(?:embed/job_(?:board|app)(?:/js)?\?for=)?([A-Za-z0-9][A-Za-z0-9._-]*)`),
		Lever:      regexp.MustCompile(`^https?://jobs(?:\.eu)?\.lever\.co/([A-Za-z0-9][A-Za-z0-9._-]*)`),
		Ashby:      regexp.MustCompile(`^https?://jobs\.ashbyhq\.com/([A-Za-z0-9][A-Za-z0-9._-]*)`),
	}

	urlInText = regexp.MustCompile(`https?://[^\s"'<>()\[\]*` + "`" + `]+`)
)

// MatchFeedURL checks a candidate against the three feed templates and
// returns it normalised to its canonical form.
func MatchFeedURL(candidate string) (string, Provider, bool) {
	candidate = strings.TrimRight(strings.TrimSpace(candidate), ".,;")
	for _, p := range Known {
		m := feedPatterns[p].FindStringSubmatch(candidate)
		if m == nil {
			continue
		}
		canonical, err := FeedURL(p, m[1])
		if err != nil {
			return "", Unknown, false
		}
		return canonical, p, true
	}

	return "", Unknown, false
}

// FindFeedURL scans free text for the first URL matching a feed template.
func FindFeedURL(text string) (string, Provider, bool) {
	for _, candidate := range urlInText.FindAllString(text, -1) {
		if u, p, ok := MatchFeedURL(candidate); ok {
			return u, p, true
		}
	}

	return "", Unknown, false
}

// BoardLinkToFeedURL maps a public board link (the page a careers site links
// to) onto the JSON feed behind it.
func BoardLinkToFeedURL(link string) (string, Provider, bool) {
	link = strings.TrimSpace(link)
	for _, p := range Known {
		m := boardLinkPatterns[p].FindStringSubmatch(link)
		if m == nil {
			continue
		}
		feed, err := FeedURL(p, m[1])
		if err != nil {
			return "", Unknown, false
		}
		return feed, p, true
	}

	return "", Unknown, false
}
