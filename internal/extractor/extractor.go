package extractor

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mirelabs/companion/internal/temporal"
)

// MeetingInfo is one candidate meeting detected in a message. StartTime is
// nil when the text held no resolvable time; callers decide whether such
// candidates are worth keeping.
type MeetingInfo struct {
	EventName      string
	StartTime      *time.Time
	EndTime        *time.Time
	Description    string
	Confidence     float64
	RecurrenceRule string
}

// Extractor is the meeting-detection strategy. The keyword/heuristic
// implementation is the default; an LLM-backed one can replace it without
// touching the registrar or the notification handler.
type Extractor interface {
	Extract(ctx context.Context, text string, ref time.Time, loc *time.Location) ([]MeetingInfo, error)
}

// DefaultKeywords are the meeting-indicator words that gate extraction.
func DefaultKeywords() []string {
	return []string{
		"meeting", "call", "standup", "sync", "conference", "video call",
		"zoom", "presentation", "appointment", "event", "schedule",
		"interview", "demo", "walkthrough", "retrospective", "planning",
		"brainstorm", "workshop", "training", "webinar", "session",
		"announcement",
	}
}

// Additive confidence weights, clipped to 1.0.
const (
	scoreKeyword     = 0.4
	scoreClockTime   = 0.3
	scoreRelativeDay = 0.2
	scoreEventName   = 0.1
	scoreDuration    = 0.1
)

// KeywordExtractor detects meetings with a keyword gate plus the temporal
// expression parser, scoring each candidate from independently verifiable
// signals.
type KeywordExtractor struct {
	keywords []string
	parser   *temporal.Parser

	namedPattern *regexp.Regexp
	quotedName   *regexp.Regexp
	properName   *regexp.Regexp
	segmentSplit *regexp.Regexp
}

func NewKeywordExtractor(keywords []string, parser *temporal.Parser) *KeywordExtractor {
	if len(keywords) == 0 {
		keywords = DefaultKeywords()
	}
	if parser == nil {
		parser = temporal.NewParser()
	}
	// Longest keyword first so "video call" wins over "call".
	sorted := append([]string(nil), keywords...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	return &KeywordExtractor{
		keywords:     sorted,
		parser:       parser,
		namedPattern: regexp.MustCompile(`(?:meeting|call|sync|standup|interview|demo|session)\s+(?:with|for|about)\s+(\w+(?:\s+\w+){0,2})`),
		quotedName:   regexp.MustCompile(`"([^"]{2,60})"|'([^']{2,60})'`),
		properName:   regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)\b`),
		segmentSplit: regexp.MustCompile(`[.;!?\n]+`),
	}
}

// Extract returns zero or more meeting candidates found in text. Text
// without any meeting-indicator keyword yields an empty result; this is
// the gate against false positives on ordinary chat. The error result is
// always nil here and exists for the strategy interface.
func (e *KeywordExtractor) Extract(_ context.Context, text string, ref time.Time, loc *time.Location) ([]MeetingInfo, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var meetings []MeetingInfo
	for _, segment := range e.segmentSplit.Split(text, -1) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		if info, ok := e.extractSegment(segment, ref, loc); ok {
			meetings = append(meetings, info)
		}
	}
	return meetings, nil
}

func (e *KeywordExtractor) extractSegment(segment string, ref time.Time, loc *time.Location) (MeetingInfo, bool) {
	lower := strings.ToLower(segment)

	keyword := e.matchKeyword(lower)
	if keyword == "" {
		return MeetingInfo{}, false
	}

	res := e.parser.Resolve(segment, ref, loc)
	name, explicit := e.extractEventName(segment, lower, keyword)

	confidence := scoreKeyword
	if res.HasClockTime {
		confidence += scoreClockTime
	} else if res.HasDayWord {
		confidence += scoreRelativeDay
	}
	if explicit {
		confidence += scoreEventName
	}
	if res.HasDuration || res.End != nil {
		confidence += scoreDuration
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return MeetingInfo{
		EventName:      name,
		StartTime:      res.Start,
		EndTime:        res.End,
		Description:    truncate(segment, 200),
		Confidence:     confidence,
		RecurrenceRule: res.RecurrenceRule,
	}, true
}

func (e *KeywordExtractor) matchKeyword(lower string) string {
	for _, kw := range e.keywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

// extractEventName looks for a distinctive label near the keyword: a
// "with/for/about" object, a quoted phrase, or a capitalized phrase. The
// second return reports whether the name is distinctive rather than the
// title-cased keyword fallback.
func (e *KeywordExtractor) extractEventName(segment, lower, keyword string) (string, bool) {
	if m := e.namedPattern.FindStringSubmatch(lower); m != nil {
		return titleCase(m[1]), true
	}
	if m := e.quotedName.FindStringSubmatch(segment); m != nil {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		return titleCase(name), true
	}
	if m := e.properName.FindStringSubmatch(segment); m != nil {
		return m[1], true
	}
	if keyword != "" {
		return titleCase(keyword), false
	}
	return "Meeting", false
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
