// Package sources mines cited sources out of free-form research text.
package sources

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/cuongbtq/insight-engine/internal/domain"
)

// FallbackSearchURL prefixes titles that came without a link
const FallbackSearchURL = "https://www.google.com/search?q="

var (
	headingRe  = regexp.MustCompile(`(?im)^[ \t>#*_]*(?:sources|references|citations)[ \t*_]*(?::|$)`)
	numberedRe = regexp.MustCompile(`^\s*\d+\s*[.)]\s*`)
	footnoteRe = regexp.MustCompile(`^\s*\[\^?\d+\^?\]\s*:\s*`)
	bulletRe   = regexp.MustCompile(`^\s*[-*•]\s+`)
	urlRe      = regexp.MustCompile(`https?://[^\s)\]>"']+`)
	bracketRe  = regexp.MustCompile(`\[([^\]]+)\]\(?\s*(https?://[^\s)\]>"']+)`)
	looseRe    = regexp.MustCompile(`^(.*?)\s+(https?://[^\s)\]>"']+)`)
	markerRe   = regexp.MustCompile(`\[\^?\d+\^?\]`)
)

// Extract returns the sources listed in the trailing Sources, References or
// Citations section of text, numbered from 1. Text without such a section
// yields an empty list.
func Extract(text string) []domain.Source {
	section, ok := trailingSection(text)
	if !ok {
		return []domain.Source{}
	}

	out := []domain.Source{}
	for _, line := range strings.Split(section, "\n") {
		if !isCandidate(line) {
			continue
		}

		title, link := parseLine(line)
		switch {
		case title == "" && link == "":
			continue
		case title == "":
			title = "Source " + strconv.Itoa(len(out)+1)
		case link == "":
			link = FallbackSearchURL + url.QueryEscape(title)
		}

		out = append(out, domain.Source{
			ID:    len(out) + 1,
			Title: title,
			URL:   link,
		})
	}

	return out
}

// ToAnnotations converts extracted sources to the provider annotation shape
func ToAnnotations(sources []domain.Source) []domain.Annotation {
	out := make([]domain.Annotation, len(sources))
	for i, s := range sources {
		out[i] = domain.Annotation{Title: s.Title, URL: s.URL}
	}
	return out
}

func trailingSection(text string) (string, bool) {
	matches := headingRe.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	last := matches[len(matches)-1]
	return text[last[1]:], true
}

func isCandidate(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	return numberedRe.MatchString(line) ||
		footnoteRe.MatchString(line) ||
		bulletRe.MatchString(line) ||
		urlRe.MatchString(line)
}

// parseLine tries, in order: [Title] url, "Title url", then a title with a URL anywhere
func parseLine(line string) (title, link string) {
	body := stripPrefix(line)

	if m := bracketRe.FindStringSubmatch(body); m != nil {
		return cleanTitle(m[1]), normalizeURL(m[2])
	}

	if m := looseRe.FindStringSubmatch(body); m != nil {
		if t := cleanTitle(m[1]); t != "" {
			return t, normalizeURL(m[2])
		}
	}

	found := urlRe.FindString(body)
	title = cleanTitle(urlRe.ReplaceAllString(body, " "))
	return title, normalizeURL(found)
}

func stripPrefix(line string) string {
	for _, re := range []*regexp.Regexp{footnoteRe, numberedRe, bulletRe} {
		if loc := re.FindStringIndex(line); loc != nil {
			return line[loc[1]:]
		}
	}
	return line
}

func cleanTitle(raw string) string {
	t := markerRe.ReplaceAllString(raw, " ")
	t = strings.NewReplacer("**", "", "__", "", "\"", "", "“", "", "”", "", "[", "", "]", "").Replace(t)
	t = strings.Join(strings.Fields(t), " ")
	t = strings.Trim(t, " '`-–—:|,;.()*#")
	return strings.TrimSpace(t)
}

// normalizeURL drops trailing punctuation and rejects anything that is not an absolute http(s) URL
func normalizeURL(raw string) string {
	raw = strings.TrimRight(raw, ".,;:!?")
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}

// FromAnnotations numbers webhook annotations 1..n
func FromAnnotations(annotations []domain.Annotation) []domain.Source {
	return domain.NumberSources(annotations)
}
