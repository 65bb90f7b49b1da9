package external

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"lifelog/internal/log"
)

type Holiday struct {
	Date string `json:"date"`
	Name string `json:"name"`
	Type string `json:"type"`
}

const holidayType = "holiday"

type nagerHoliday struct {
	Date      string `json:"date"`
	LocalName string `json:"localName"`
	Name      string `json:"name"`
}

// Holidays returns the public holidays of country in year. On any failure it
// returns StaticHolidays(year).
func (c *Client) Holidays(ctx context.Context, year int, country string) []Holiday {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		country = DefaultCountry
	}
	key := fmt.Sprintf("%d/%s", year, country)
	out, err := c.holidays.GetOrLoad(ctx, key, func(ctx context.Context) ([]Holiday, error) {
		return c.fetchHolidays(ctx, year, country)
	})
	if err != nil {
		c.metrics.Lookup(SourceHolidays, outcomeFallback)
		c.logger.WarnContext(ctx, "Holiday lookup failed, using fallback list",
			log.FieldOperation, log.OpLookup,
			log.FieldErrorType, log.ErrorTypeNetwork,
			log.FieldError, err)
		return StaticHolidays(year)
	}
	c.metrics.Lookup(SourceHolidays, outcomeOK)
	return out
}

func (c *Client) fetchHolidays(ctx context.Context, year int, country string) ([]Holiday, error) {
	endpoint := fmt.Sprintf("%s/api/v3/PublicHolidays/%d/%s", strings.TrimRight(c.holidaysURL, "/"), year, url.PathEscape(country))
	var raw []nagerHoliday
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}
	out := make([]Holiday, 0, len(raw))
	for _, h := range raw {
		name := h.LocalName
		if name == "" {
			name = h.Name
		}
		out = append(out, Holiday{Date: h.Date, Name: name, Type: holidayType})
	}
	return out, nil
}

// StaticHolidays is the fallback list used when the lookup fails.
func StaticHolidays(year int) []Holiday {
	day := func(md, name string) Holiday {
		return Holiday{Date: fmt.Sprintf("%d-%s", year, md), Name: name, Type: holidayType}
	}
	return []Holiday{
		day("01-26", "Republic Day"),
		day("08-15", "Independence Day"),
		day("10-02", "Gandhi Jayanti"),
		day("11-01", "Diwali"),
		day("12-25", "Christmas"),
	}
}
