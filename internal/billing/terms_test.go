package billing

import (
	"testing"
	"time"

	"github.com/oakhaven-brewing/invoicer/internal/catalog"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalcDue(t *testing.T) {
	cases := []struct {
		name    string
		invoice time.Time
		days    int
		policy  catalog.DueDatePolicy
		want    time.Time
	}{
		{
			name:    "days after bill date",
			invoice: date(2024, time.January, 15),
			days:    30,
			policy:  catalog.PolicyDaysAfterBillDate,
			want:    date(2024, time.February, 14),
		},
		{
			name:    "days after bill month",
			invoice: date(2024, time.January, 15),
			days:    10,
			policy:  catalog.PolicyDaysAfterBillMonth,
			want:    date(2024, time.February, 10),
		},
		{
			name:    "days after bill month crosses year end",
			invoice: date(2023, time.December, 5),
			days:    14,
			policy:  catalog.PolicyDaysAfterBillMonth,
			want:    date(2024, time.January, 14),
		},
		{
			name:    "of current month",
			invoice: date(2024, time.January, 5),
			days:    15,
			policy:  catalog.PolicyOfCurrentMonth,
			want:    date(2024, time.January, 15),
		},
		{
			name:    "of current month never before the invoice",
			invoice: date(2024, time.January, 20),
			days:    15,
			policy:  catalog.PolicyOfCurrentMonth,
			want:    date(2024, time.January, 20),
		},
		{
			name:    "of current month clamps to month end",
			invoice: date(2023, time.February, 10),
			days:    31,
			policy:  catalog.PolicyOfCurrentMonth,
			want:    date(2023, time.February, 28),
		},
		{
			name:    "of following month",
			invoice: date(2024, time.January, 31),
			days:    15,
			policy:  catalog.PolicyOfFollowingMonth,
			want:    date(2024, time.February, 15),
		},
		{
			name:    "of following month clamps to month end",
			invoice: date(2024, time.January, 15),
			days:    31,
			policy:  catalog.PolicyOfFollowingMonth,
			want:    date(2024, time.February, 29),
		},
		{
			name:    "of following month crosses year end",
			invoice: date(2023, time.December, 20),
			days:    7,
			policy:  catalog.PolicyOfFollowingMonth,
			want:    date(2024, time.January, 7),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := CalcDue(tc.invoice, tc.days, tc.policy)
			if !ok {
				t.Fatalf("expected policy %q to be recognised", tc.policy)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("CalcDue(%s, %d, %s) = %s, want %s",
					tc.invoice.Format("2006-01-02"), tc.days, tc.policy,
					got.Format("2006-01-02"), tc.want.Format("2006-01-02"))
			}
		})
	}
}

func TestCalcDueUnknownPolicy(t *testing.T) {
	if _, ok := CalcDue(date(2024, time.January, 15), 30, "SOMEDAY"); ok {
		t.Fatalf("expected unknown policy to report false")
	}
}
