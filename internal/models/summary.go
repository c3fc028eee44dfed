package models

import "sort"

// StatusCounts is the per-status tally shown on the dashboards.
type StatusCounts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Completed int `json:"completed"`
}

// CountByStatus tallies events by status.
func CountByStatus(events []Event) StatusCounts {
	c := StatusCounts{Total: len(events)}
	for _, e := range events {
		switch e.Status {
		case EventPending:
			c.Pending++
		case EventApproved:
			c.Approved++
		case EventRejected:
			c.Rejected++
		case EventCompleted:
			c.Completed++
		}
	}
	return c
}

// CalendarDay is one day of the admin calendar view.
type CalendarDay struct {
	Date   string  `json:"date"` // YYYY-MM-DD, UTC
	Events []Event `json:"events"`
}

// GroupByDay buckets events by the UTC calendar day of their EventDate.
// Days are returned in ascending order; events keep their input order
// within a day.
func GroupByDay(events []Event) []CalendarDay {
	index := make(map[string]int)
	var days []CalendarDay
	for _, e := range events {
		key := e.EventDate.UTC().Format("2006-01-02")
		i, ok := index[key]
		if !ok {
			i = len(days)
			index[key] = i
			days = append(days, CalendarDay{Date: key})
		}
		days[i].Events = append(days[i].Events, e)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	if days == nil {
		days = []CalendarDay{}
	}
	return days
}

// EarningsSummary is the worker earnings screen.
type EarningsSummary struct {
	Shifts         int     `json:"shifts"`
	OpenShifts     int     `json:"openShifts"`
	TotalEarnings  float64 `json:"totalEarnings"`
	PaidAmount     float64 `json:"paidAmount"`
	PendingAmount  float64 `json:"pendingAmount"`
	PaymentRecords int     `json:"paymentRecords"`
}

// SummarizeEarnings totals a worker's attendance earnings and payouts.
// Absent shifts do not count towards earnings.
func SummarizeEarnings(attendance []Attendance, payments []Payment) EarningsSummary {
	var s EarningsSummary
	for i := range attendance {
		a := &attendance[i]
		if a.Status != AttendancePresent {
			continue
		}
		s.Shifts++
		if a.IsOpen() {
			s.OpenShifts++
		}
		s.TotalEarnings += a.Earnings
	}
	for _, p := range payments {
		s.PaymentRecords++
		switch p.Status {
		case PaymentPaid:
			s.PaidAmount += p.Amount
		case PaymentPending:
			s.PendingAmount += p.Amount
		}
	}
	return s
}
