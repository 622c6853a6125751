package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Resolution is the outcome of resolving the time expressions in one span
// of text. Start and End are UTC instants; a nil Start means the text held
// no usable time reference. The Has* signals feed the extractor's
// confidence scoring.
type Resolution struct {
	Start          *time.Time
	End            *time.Time
	HasClockTime   bool
	HasDayWord     bool
	HasDuration    bool
	RecurrenceRule string
}

// Parser resolves natural-language time expressions ("tomorrow at 2:30 PM",
// "next Monday morning", "3-4 PM Friday") into concrete instants relative
// to a reference time. All calendar arithmetic happens in the caller's
// location; results are converted to UTC for storage.
type Parser struct {
	rangeDash    *regexp.Regexp
	rangeFromTo  *regexp.Regexp
	clockAMPM    *regexp.Regexp
	clockHourMer *regexp.Regexp
	clock24h     *regexp.Regexp
	inOffset     *regexp.Regexp
	duration     *regexp.Regexp
	halfHour     *regexp.Regexp
	nextWeekday  *regexp.Regexp
	bareWeekday  *regexp.Regexp
	everyWeekday *regexp.Regexp
	everyDay     *regexp.Regexp
}

func NewParser() *Parser {
	return &Parser{
		rangeDash:    regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*[-–]\s*(\d{1,2})(?::(\d{2}))?(?:\s*(am|pm))?\b`),
		rangeFromTo:  regexp.MustCompile(`\bfrom\s+(\d{1,2})(?::(\d{2}))?\s+to\s+(\d{1,2})(?::(\d{2}))?(?:\s*(am|pm))?\b`),
		clockAMPM:    regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(am|pm)\b`),
		clockHourMer: regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)\b`),
		clock24h:     regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`),
		inOffset:     regexp.MustCompile(`\bin\s+(\d+(?:\.\d+)?)\s*(hours?|hrs?|minutes?|mins?)\b`),
		duration:     regexp.MustCompile(`\b(?:for\s+|lasting\s+)?(\d+(?:\.\d+)?)\s*(hours?|hrs?|minutes?|mins?)\b`),
		halfHour:     regexp.MustCompile(`\bhalf\s+(?:an\s+)?hour\b`),
		nextWeekday:  regexp.MustCompile(`\bnext\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
		bareWeekday:  regexp.MustCompile(`\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
		everyWeekday: regexp.MustCompile(`\bevery\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
		everyDay:     regexp.MustCompile(`\bevery\s+day\b|\bdaily\b`),
	}
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

var rruleByDay = map[time.Weekday]string{
	time.Monday: "MO", time.Tuesday: "TU", time.Wednesday: "WE",
	time.Thursday: "TH", time.Friday: "FR", time.Saturday: "SA",
	time.Sunday: "SU",
}

// Day-part clock defaults, in the user's local calendar.
const (
	morningHour   = 8
	afternoonHour = 14
	eveningHour   = 18
	nightHour     = 20
	defaultHour   = 9
)

type clockTime struct {
	hour, minute int
}

type span struct{ lo, hi int }

func overlaps(spans []span, lo, hi int) bool {
	for _, s := range spans {
		if lo < s.hi && hi > s.lo {
			return true
		}
	}
	return false
}

// Resolve parses the time expressions in text relative to ref, doing all
// day arithmetic in loc. Unparsable text yields a zero Resolution, never
// an error.
func (p *Parser) Resolve(text string, ref time.Time, loc *time.Location) Resolution {
	if loc == nil {
		loc = time.UTC
	}
	lower := strings.ToLower(text)
	local := ref.In(loc)

	res := Resolution{}
	var masked []span

	start, end, ok := p.findRange(lower, &masked)
	if ok {
		res.HasClockTime = true
	} else {
		start, end, ok = p.findClockTimes(lower, &masked)
		if ok {
			res.HasClockTime = true
		}
	}

	offset, hasOffset := p.findOffset(lower, &masked)
	dur, hasDur := p.findDuration(lower, masked)
	if hasDur {
		res.HasDuration = true
	}

	day, dayFuture, hasDay := p.findDay(lower, local)
	if hasDay {
		res.HasDayWord = true
	}
	res.RecurrenceRule = p.findRecurrence(lower)
	if res.RecurrenceRule != "" && !hasDay {
		// "every Monday" pins the first occurrence even without another
		// day word.
		day, dayFuture, hasDay = p.recurrenceFirstDay(lower, local)
		res.HasDayWord = res.HasDayWord || hasDay
	}

	part, hasPart := findDayPart(lower)
	if strings.Contains(lower, "tonight") {
		day, hasDay, dayFuture = truncateDay(local), true, true
		part, hasPart = nightHour, true
	}

	// A bare day reference whose slot already passed rolls forward by
	// the recurrence period: a week for weekday mentions, a day for
	// daily ones.
	rollDays := 7
	if res.RecurrenceRule == "FREQ=DAILY" {
		rollDays = 1
	}

	switch {
	case hasOffset:
		// "in 30 minutes" counts as a relative phrase, not a clock time.
		res.HasDayWord = true
		t := local.Add(offset)
		res.Start = &t
	case res.HasClockTime:
		t := composeClock(day, hasDay, dayFuture, start, local, loc, rollDays)
		res.Start = &t
		if end != nil {
			e := time.Date(t.Year(), t.Month(), t.Day(), end.hour, end.minute, 0, 0, loc)
			if !e.After(t) {
				e = e.AddDate(0, 0, 1)
			}
			res.End = &e
		}
	case hasDay:
		hour := defaultHour
		if hasPart {
			hour = part
		}
		t := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, loc)
		if !dayFuture && t.Before(local) && day.Weekday() == local.Weekday() {
			t = t.AddDate(0, 0, rollDays)
		}
		res.Start = &t
	default:
		return res
	}

	if res.End == nil && hasDur && res.Start != nil {
		e := res.Start.Add(dur)
		res.End = &e
	}

	if res.Start != nil {
		u := res.Start.UTC()
		res.Start = &u
	}
	if res.End != nil {
		u := res.End.UTC()
		res.End = &u
	}
	return res
}

func (p *Parser) findRange(lower string, masked *[]span) (clockTime, *clockTime, bool) {
	for _, re := range []*regexp.Regexp{p.rangeDash, p.rangeFromTo} {
		m := re.FindStringSubmatchIndex(lower)
		if m == nil {
			continue
		}
		if re == p.rangeDash && partOfDate(lower, m[0], m[1]) {
			continue
		}
		sub := re.FindStringSubmatch(lower)
		startHour, _ := strconv.Atoi(sub[1])
		startMin := atoiOr(sub[2], 0)
		endHour, _ := strconv.Atoi(sub[3])
		endMin := atoiOr(sub[4], 0)
		mer := sub[5]

		// Both ends of a range share the meridiem ("3-4 PM" is 15-16);
		// without one, small hours read as afternoon.
		startHour = applyMeridiem(startHour, mer)
		endHour = applyMeridiem(endHour, mer)

		*masked = append(*masked, span{m[0], m[1]})
		endCT := clockTime{endHour, endMin}
		return clockTime{startHour, startMin}, &endCT, true
	}
	return clockTime{}, nil, false
}

func (p *Parser) findClockTimes(lower string, masked *[]span) (clockTime, *clockTime, bool) {
	var found []clockTime

	for _, m := range p.clockAMPM.FindAllStringSubmatchIndex(lower, -1) {
		hour, _ := strconv.Atoi(lower[m[2]:m[3]])
		minute, _ := strconv.Atoi(lower[m[4]:m[5]])
		hour = meridiemHour(hour, lower[m[6]:m[7]])
		found = append(found, clockTime{hour, minute})
		*masked = append(*masked, span{m[0], m[1]})
	}
	for _, m := range p.clockHourMer.FindAllStringSubmatchIndex(lower, -1) {
		if overlaps(*masked, m[0], m[1]) {
			continue
		}
		hour, _ := strconv.Atoi(lower[m[2]:m[3]])
		hour = meridiemHour(hour, lower[m[4]:m[5]])
		found = append(found, clockTime{hour, 0})
		*masked = append(*masked, span{m[0], m[1]})
	}
	for _, m := range p.clock24h.FindAllStringSubmatchIndex(lower, -1) {
		if overlaps(*masked, m[0], m[1]) {
			continue
		}
		hour, _ := strconv.Atoi(lower[m[2]:m[3]])
		minute, _ := strconv.Atoi(lower[m[4]:m[5]])
		if hour > 23 || minute > 59 {
			continue
		}
		found = append(found, clockTime{hour, minute})
		*masked = append(*masked, span{m[0], m[1]})
	}

	if len(found) == 0 {
		return clockTime{}, nil, false
	}
	if len(found) > 1 {
		return found[0], &found[1], true
	}
	return found[0], nil, true
}

func (p *Parser) findOffset(lower string, masked *[]span) (time.Duration, bool) {
	m := p.inOffset.FindStringSubmatchIndex(lower)
	if m == nil {
		return 0, false
	}
	sub := p.inOffset.FindStringSubmatch(lower)
	amount, err := strconv.ParseFloat(sub[1], 64)
	if err != nil {
		return 0, false
	}
	*masked = append(*masked, span{m[0], m[1]})
	return unitDuration(amount, sub[2]), true
}

func (p *Parser) findDuration(lower string, masked []span) (time.Duration, bool) {
	if p.halfHour.MatchString(lower) {
		return 30 * time.Minute, true
	}
	for _, m := range p.duration.FindAllStringSubmatchIndex(lower, -1) {
		if overlaps(masked, m[0], m[1]) {
			continue
		}
		amount, err := strconv.ParseFloat(lower[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		return unitDuration(amount, lower[m[4]:m[5]]), true
	}
	return 0, false
}

// findDay resolves relative day words. The returned bool pair is
// (date, explicitlyFuture): tomorrow and "next X" never need the
// nearest-future fixup that bare references do.
func (p *Parser) findDay(lower string, local time.Time) (time.Time, bool, bool) {
	switch {
	case strings.Contains(lower, "tomorrow"):
		return truncateDay(local).AddDate(0, 0, 1), true, true
	case strings.Contains(lower, "today"):
		// Anchored to today even when the time already passed; only bare
		// weekdays get the roll-forward fixup.
		return truncateDay(local), true, true
	case strings.Contains(lower, "next week"):
		daysAhead := (int(time.Monday) - int(local.Weekday()) + 7) % 7
		if daysAhead == 0 {
			daysAhead = 7
		}
		return truncateDay(local).AddDate(0, 0, daysAhead), true, true
	}

	if m := p.nextWeekday.FindStringSubmatch(lower); m != nil {
		target := weekdays[m[1]]
		daysAhead := (int(target) - int(local.Weekday()) + 7) % 7
		if daysAhead == 0 {
			daysAhead = 7
		}
		return truncateDay(local).AddDate(0, 0, daysAhead), true, true
	}
	if m := p.bareWeekday.FindStringSubmatch(lower); m != nil {
		// Next occurrence of that weekday; today counts if still upcoming.
		target := weekdays[m[1]]
		daysAhead := (int(target) - int(local.Weekday()) + 7) % 7
		return truncateDay(local).AddDate(0, 0, daysAhead), false, true
	}
	return time.Time{}, false, false
}

func (p *Parser) findRecurrence(lower string) string {
	if m := p.everyWeekday.FindStringSubmatch(lower); m != nil {
		return "FREQ=WEEKLY;BYDAY=" + rruleByDay[weekdays[m[1]]]
	}
	if p.everyDay.MatchString(lower) {
		return "FREQ=DAILY"
	}
	return ""
}

func (p *Parser) recurrenceFirstDay(lower string, local time.Time) (time.Time, bool, bool) {
	if m := p.everyWeekday.FindStringSubmatch(lower); m != nil {
		target := weekdays[m[1]]
		daysAhead := (int(target) - int(local.Weekday()) + 7) % 7
		return truncateDay(local).AddDate(0, 0, daysAhead), false, true
	}
	if p.everyDay.MatchString(lower) {
		return truncateDay(local), false, true
	}
	return time.Time{}, false, false
}

func composeClock(day time.Time, hasDay, dayFuture bool, ct clockTime, local time.Time, loc *time.Location, rollDays int) time.Time {
	if hasDay {
		t := time.Date(day.Year(), day.Month(), day.Day(), ct.hour, ct.minute, 0, 0, loc)
		if !dayFuture && t.Before(local) {
			// Bare day reference whose clock time already passed.
			t = t.AddDate(0, 0, rollDays)
		}
		return t
	}
	// Clock time with no day word resolves to its nearest future
	// occurrence: later today if still upcoming, otherwise tomorrow.
	t := time.Date(local.Year(), local.Month(), local.Day(), ct.hour, ct.minute, 0, 0, loc)
	if !t.After(local) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// partOfDate reports whether the [lo, hi) match is glued to more
// digit-separator text, which means it is a fragment of a calendar date
// ("2026-03-14") rather than an hour range.
func partOfDate(lower string, lo, hi int) bool {
	if lo > 0 && (lower[lo-1] == '-' || lower[lo-1] == '/') {
		return true
	}
	return hi < len(lower) && (lower[hi] == '-' || lower[hi] == '/')
}

func findDayPart(lower string) (int, bool) {
	switch {
	case strings.Contains(lower, "morning"):
		return morningHour, true
	case strings.Contains(lower, "afternoon"):
		return afternoonHour, true
	case strings.Contains(lower, "evening"):
		return eveningHour, true
	case strings.Contains(lower, "night"):
		return nightHour, true
	}
	return 0, false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func meridiemHour(hour int, mer string) int {
	if mer == "pm" && hour != 12 {
		return hour + 12
	}
	if mer == "am" && hour == 12 {
		return 0
	}
	return hour
}

func applyMeridiem(hour int, mer string) int {
	if mer != "" {
		return meridiemHour(hour, mer)
	}
	// "from 3 to 4" with no meridiem: small hours read as afternoon.
	if hour >= 1 && hour <= 7 {
		return hour + 12
	}
	return hour
}

func unitDuration(amount float64, unit string) time.Duration {
	if strings.HasPrefix(unit, "h") {
		return time.Duration(amount * float64(time.Hour))
	}
	return time.Duration(amount * float64(time.Minute))
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
