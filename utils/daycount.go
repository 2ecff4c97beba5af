package utils

import (
	"time"

	"github.com/meenmo/cfengine/market"
)

// YearFraction computes year fraction between two dates using the specified day count convention.
// Supported conventions: ACT/360, ACT/365, ACT/365F, ACT/ACT (ISDA), 30/360 (US bond basis), 30E/360.
// Unknown conventions fall back to ACT/365F.
func YearFraction(start, end time.Time, convention market.DayCount) float64 {
	switch convention {
	case market.Act360:
		return Days(start, end) / 360.0
	case market.Act365, market.Act365F:
		return Days(start, end) / 365.0
	case market.ActAct:
		return actActISDA(start, end)
	case market.Dc30360:
		// 30/360 US: D1=31 -> 30; D2=31 -> 30 only when D1 is 30 or 31.
		d1 := start.Day()
		if d1 == 31 {
			d1 = 30
		}
		d2 := end.Day()
		if d2 == 31 && d1 == 30 {
			d2 = 30
		}
		return thirty360(start, end, d1, d2)
	case market.Dc30E:
		// 30E/360 ISDA (Eurobond basis): D1 and D2 are capped at 30.
		d1 := start.Day()
		if d1 > 30 {
			d1 = 30
		}
		d2 := end.Day()
		if d2 > 30 {
			d2 = 30
		}
		return thirty360(start, end, d1, d2)
	default:
		return Days(start, end) / 365.0
	}
}

func thirty360(start, end time.Time, d1, d2 int) float64 {
	y1, m1 := start.Year(), int(start.Month())
	y2, m2 := end.Year(), int(end.Month())
	return float64(360*(y2-y1)+30*(m2-m1)+(d2-d1)) / 360.0
}

// actActISDA splits the interval at year boundaries and divides each piece by
// the length of its calendar year.
func actActISDA(start, end time.Time) float64 {
	if end.Before(start) {
		return -actActISDA(end, start)
	}
	frac := 0.0
	cur := start
	for cur.Year() < end.Year() {
		next := time.Date(cur.Year()+1, 1, 1, 0, 0, 0, 0, cur.Location())
		frac += Days(cur, next) / daysInYear(cur.Year())
		cur = next
	}
	return frac + Days(cur, end)/daysInYear(cur.Year())
}

func daysInYear(year int) float64 {
	if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
		return 366
	}
	return 365
}
