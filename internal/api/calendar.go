package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// FetchCalendarBatch fetches deliveries, unassigned orders, working days and
// holidays for the given months (YYYY-MM) in one round trip.
func (c *Client) FetchCalendarBatch(ctx context.Context, months []string) (*CalendarBatch, error) {
	c.logger.Debug("fetching calendar batch", slog.String("months", strings.Join(months, ",")))

	q := url.Values{}
	q.Set("months", strings.Join(months, ","))

	resp, err := c.Do(ctx, http.MethodGet, "/calendar?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var batch CalendarBatch
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("api: decoding calendar batch: %w", err)
	}

	// Maps may be omitted by the server for month ranges with no overrides.
	if batch.WorkingDays == nil {
		batch.WorkingDays = make(map[string]bool)
	}

	if batch.Holidays == nil {
		batch.Holidays = make(map[string]string)
	}

	return &batch, nil
}

// SetWorkingDay toggles the working-day flag for a calendar date.
func (c *Client) SetWorkingDay(ctx context.Context, date string, working bool) error {
	c.logger.Info("setting working day",
		slog.String("date", date),
		slog.Bool("working", working),
	)

	body, err := json.Marshal(setWorkingDayRequest{Working: working})
	if err != nil {
		return fmt.Errorf("api: encoding working day request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPut, "/calendar/"+url.PathEscape(date)+"/working", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp.Body.Close()

	return nil
}
