package extractor

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/mirelabs/companion/internal/ai"
)

// Markers that mean the user explicitly named a future day; when present
// the model's resolved date is trusted as-is.
var explicitDayMarkers = []string{
	"today", "tonight", "tomorrow", "next week", "next month", "day after",
	"following day",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

// Explicit calendar dates: "25th", "Feb 25", "25/2", "2026-02-25".
var explicitDateRe = regexp.MustCompile(
	`\b\d{1,2}(?:st|nd|rd|th)\b` +
		`|\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\w*\s+\d{1,2}` +
		`|\b\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)` +
		`|\b\d{4}-\d{2}-\d{2}\b` +
		`|\b\d{1,2}[/-]\d{1,2}(?:[/-]\d{2,4})?\b`)

const llmConfidence = 0.9

// LLMExtractor asks a language model for structured events and falls back
// to the keyword extractor on any failure, so extraction keeps working
// when the model is down or misbehaves.
type LLMExtractor struct {
	client   *ai.Client
	fallback Extractor
	log      zerolog.Logger
}

func NewLLMExtractor(client *ai.Client, fallback Extractor, log zerolog.Logger) *LLMExtractor {
	if fallback == nil {
		fallback = NewKeywordExtractor(nil, nil)
	}
	return &LLMExtractor{
		client:   client,
		fallback: fallback,
		log:      log.With().Str("component", "llm_extractor").Logger(),
	}
}

func (e *LLMExtractor) Extract(ctx context.Context, text string, ref time.Time, loc *time.Location) ([]MeetingInfo, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	events, err := e.client.ExtractEvents(ctx, text, ref.In(loc))
	if err != nil {
		e.log.Warn().Err(err).Msg("LLM extraction failed, falling back to keyword extractor")
		return e.fallback.Extract(ctx, text, ref, loc)
	}

	local := ref.In(loc)
	var meetings []MeetingInfo
	for _, evt := range events {
		info := MeetingInfo{
			EventName:   evt.Name,
			Description: evt.Description,
			Confidence:  llmConfidence,
		}
		if info.EventName == "" {
			info.EventName = "Meeting"
		}
		if info.Description == "" {
			info.Description = truncate(text, 200)
		}

		if evt.Time != "" {
			if start, ok := resolveEventTime(evt.Date, evt.Time, local, text, loc); ok {
				utc := start.UTC()
				info.StartTime = &utc
			}
		}
		if evt.EndTime != "" && info.StartTime != nil {
			if end, ok := resolveEndTime(evt.EndTime, info.StartTime.In(loc), loc); ok {
				utc := end.UTC()
				info.EndTime = &utc
			}
		}

		meetings = append(meetings, info)
	}
	return meetings, nil
}

// resolveEventTime pins down the instant for an extracted event. When the
// message explicitly names a day or date the model's date is trusted;
// otherwise the time resolves to its nearest future occurrence, which
// handles "9 PM" said at 3 PM (tonight) as well as "2 PM" said at 4 PM
// (tomorrow).
func resolveEventTime(dateStr, timeStr string, local time.Time, message string, loc *time.Location) (time.Time, bool) {
	clock, err := time.Parse("15:04", timeStr)
	if err != nil {
		return time.Time{}, false
	}

	lower := strings.ToLower(message)
	explicit := explicitDateRe.MatchString(lower)
	if !explicit {
		for _, marker := range explicitDayMarkers {
			if strings.Contains(lower, marker) {
				explicit = true
				break
			}
		}
	}

	if explicit && dateStr != "" {
		day, err := time.ParseInLocation("2006-01-02", dateStr, loc)
		if err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), true
		}
	}

	candidate := time.Date(local.Year(), local.Month(), local.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, true
}

// resolveEndTime puts the end on the same local day as the start, rolling
// past midnight when it would precede it.
func resolveEndTime(timeStr string, start time.Time, loc *time.Location) (time.Time, bool) {
	clock, err := time.Parse("15:04", timeStr)
	if err != nil {
		return time.Time{}, false
	}
	end := time.Date(start.Year(), start.Month(), start.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return end, true
}

// truncate clips s to at most n bytes without splitting a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
