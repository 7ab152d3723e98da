package domain

import "encoding/json"

// Source is a numbered citation referenced by report source_ids
type Source struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Annotation is a citation as delivered by the research provider
type Annotation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// NumberSources assigns 1-based ids in order
func NumberSources(annotations []Annotation) []Source {
	out := make([]Source, len(annotations))
	for i, a := range annotations {
		out[i] = Source{ID: i + 1, Title: a.Title, URL: a.URL}
	}
	return out
}

// Report is the structured final report
type Report struct {
	CompanyName         string         `json:"companyName"`
	Summary             string         `json:"summary"`
	InsightScore        InsightScore   `json:"insightScore"`
	Valuation           Valuation      `json:"valuation"`
	SWOTAnalysis        SWOTAnalysis   `json:"swotAnalysis"`
	MarketAnalysis      MarketAnalysis `json:"marketAnalysis"`
	CompetitorLandscape []Competitor   `json:"competitorLandscape"`
	TeamAnalysis        string         `json:"teamAnalysis"`
	Sources             []Source       `json:"sources"`
}

type InsightScore struct {
	Score     *float64 `json:"score"`
	Rationale string   `json:"rationale"`
}

type Valuation struct {
	Low       *float64 `json:"low"`
	High      *float64 `json:"high"`
	Currency  string   `json:"currency"`
	Narrative string   `json:"narrative"`
}

type SWOTAnalysis struct {
	Strengths     []CitedPoint `json:"strengths"`
	Weaknesses    []CitedPoint `json:"weaknesses"`
	Opportunities []CitedPoint `json:"opportunities"`
	Threats       []CitedPoint `json:"threats"`
}

type CitedPoint struct {
	Point     string `json:"point"`
	SourceIDs []int  `json:"source_ids"`
}

type MarketAnalysis struct {
	Narrative  string         `json:"narrative"`
	MarketSize []MarketMetric `json:"marketSize"`
}

type MarketMetric struct {
	Metric    string   `json:"metric"`
	Value     *float64 `json:"value"`
	Year      *int     `json:"year"`
	SourceIDs []int    `json:"source_ids"`
}

type Competitor struct {
	CompetitorName    string  `json:"competitorName"`
	Funding           *string `json:"funding"`
	KeyDifferentiator string  `json:"keyDifferentiator"`
	SourceIDs         []int   `json:"source_ids"`
}

// Clone returns a deep copy via a JSON round trip
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	var out Report
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return &out
}
