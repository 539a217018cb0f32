package board

import (
	"time"
)

// DayStats aggregates production quantities for all deliveries on one date.
// Computed from cache contents only — pending optimistic members count with
// their known quantities, so totals update before the network settles.
type DayStats struct {
	Date       Date
	Deliveries int
	Orders     int
	Windows    int
	Sashes     int
	Glass      int
	Value      Cents
	Working    bool
	Holiday    string
}

// WeekStats aggregates DayStats over one ISO week.
type WeekStats struct {
	Year       int
	Week       int
	Deliveries int
	Orders     int
	Windows    int
	Sashes     int
	Glass      int
	Value      Cents
}

// PoolStats aggregates the unassigned pool.
type PoolStats struct {
	Orders  int
	Windows int
	Sashes  int
	Glass   int
	Value   Cents
}

// DeliveriesOn returns the deliveries scheduled for the given date.
func DeliveriesOn(b *CalendarBatch, date Date) []Delivery {
	if b == nil {
		return nil
	}

	var out []Delivery

	for _, d := range b.Deliveries {
		if d.Date == date {
			out = append(out, d)
		}
	}

	return out
}

// ComputeDayStats computes the aggregate counts for one date.
func ComputeDayStats(b *CalendarBatch, date Date) DayStats {
	s := DayStats{Date: date}

	if b == nil {
		return s
	}

	for _, d := range b.Deliveries {
		if d.Date != date {
			continue
		}

		s.Deliveries++

		for _, m := range d.Members {
			s.Orders++

			if m.Order == nil {
				// Stub with no known fields; quantities arrive with the
				// reconciling refetch.
				continue
			}

			s.Windows += m.Order.Windows
			s.Sashes += m.Order.Sashes
			s.Glass += m.Order.Glass
			s.Value += m.Order.Value
		}
	}

	s.Working = IsWorkingDay(b, date)
	s.Holiday = HolidayName(b, date)

	return s
}

// ComputeWeekStats aggregates day statistics over the ISO week containing
// the given date.
func ComputeWeekStats(b *CalendarBatch, date Date) WeekStats {
	year, week := date.ISOWeek()
	s := WeekStats{Year: year, Week: week}

	if b == nil {
		return s
	}

	for _, d := range weekDates(date) {
		day := ComputeDayStats(b, d)
		s.Deliveries += day.Deliveries
		s.Orders += day.Orders
		s.Windows += day.Windows
		s.Sashes += day.Sashes
		s.Glass += day.Glass
		s.Value += day.Value
	}

	return s
}

// ComputePoolStats aggregates the unassigned pool.
func ComputePoolStats(b *CalendarBatch) PoolStats {
	var s PoolStats

	if b == nil {
		return s
	}

	for _, o := range b.Unassigned {
		s.Orders++
		s.Windows += o.Windows
		s.Sashes += o.Sashes
		s.Glass += o.Glass
		s.Value += o.Value
	}

	return s
}

// IsWorkingDay reports whether the date is a working day: an explicit
// override wins, otherwise holidays are off and Monday through Friday are on.
func IsWorkingDay(b *CalendarBatch, date Date) bool {
	if b != nil {
		if v, ok := b.WorkingDays[date]; ok {
			return v
		}

		if _, holiday := b.Holidays[date]; holiday {
			return false
		}
	}

	wd := date.Time().Weekday()

	return wd != time.Saturday && wd != time.Sunday
}

// HolidayName returns the holiday name for the date, or "".
func HolidayName(b *CalendarBatch, date Date) string {
	if b == nil {
		return ""
	}

	return b.Holidays[date]
}

// weekDates returns the seven dates of the ISO week containing the date,
// Monday first.
func weekDates(date Date) []Date {
	t := date.Time()
	if t.IsZero() {
		return nil
	}

	// Walk back to Monday.
	offset := (int(t.Weekday()) + 6) % 7
	monday := t.AddDate(0, 0, -offset)

	out := make([]Date, 7)
	for i := range out {
		out[i] = Date(monday.AddDate(0, 0, i).Format(time.DateOnly))
	}

	return out
}
