package billing

import (
	"time"

	"github.com/oakhaven-brewing/invoicer/internal/catalog"
)

// CalcDue computes an invoice due date from the payment terms the accounting
// system reports for a contact. The second return is false when the policy
// is unknown, in which case no due date is set on the invoice.
func CalcDue(invoiceDate time.Time, days int, policy catalog.DueDatePolicy) (time.Time, bool) {
	year, month, day := invoiceDate.Date()
	loc := invoiceDate.Location()

	switch policy {
	case catalog.PolicyDaysAfterBillDate:
		return invoiceDate.AddDate(0, 0, days), true

	case catalog.PolicyDaysAfterBillMonth:
		firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, loc)
		return firstOfNext.AddDate(0, 0, days-1), true

	case catalog.PolicyOfCurrentMonth:
		// Never earlier than the invoice date, never past month end.
		due := days
		if due < day {
			due = day
		}
		if last := lastDayOfMonth(year, month); due > last {
			due = last
		}
		return time.Date(year, month, due, 0, 0, 0, 0, loc), true

	case catalog.PolicyOfFollowingMonth:
		next := time.Date(year, month+1, 1, 0, 0, 0, 0, loc)
		due := days
		if last := lastDayOfMonth(next.Year(), next.Month()); due > last {
			due = last
		}
		return time.Date(next.Year(), next.Month(), due, 0, 0, 0, 0, loc), true
	}

	return time.Time{}, false
}

// lastDayOfMonth relies on day zero of the following month normalising
// backwards.
func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
