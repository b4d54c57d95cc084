package normalize

import (
	"fmt"
	"strings"
	"time"

	"invoice-extractor/pkg/common"
)

// ISODate is the canonical output layout.
const ISODate = "2006-01-02"

// dateLayouts are tried in order; the first that parses wins.
// Day and month accept one or two digits.
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2006-1-2",
	"2/1/06",
	"2-1-06",
}

// ParseDate converts a day-first date into YYYY-MM-DD.
func ParseDate(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(ISODate), nil
		}
	}
	return "", common.New(common.KindNormalization, "normalize.date", fmt.Errorf("unrecognised date %q", s))
}

// Date is the lenient form of ParseDate.
func Date(raw *string) (string, bool) {
	if raw == nil {
		return "", false
	}
	d, err := ParseDate(*raw)
	if err != nil {
		return "", false
	}
	return d, true
}
