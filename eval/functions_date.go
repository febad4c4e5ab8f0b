package eval

import (
	"math"
	"strings"
	"time"

	"gridcore/ast"
	"gridcore/cellvalue"
)

// dateEpoch is the day-zero of the serial date model: 1900-01-01 is
// serial 1, so the epoch itself (serial 0) is the day before it.
var dateEpoch = time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)

func serialToTime(serial float64) time.Time {
	days := int(serial)
	frac := serial - float64(days)
	t := dateEpoch.AddDate(0, 0, days)
	return t.Add(time.Duration(frac * float64(24*time.Hour)))
}

func timeToSerial(t time.Time) float64 {
	days := t.Sub(dateEpoch).Hours() / 24
	return days
}

func fnNOW(ctx Context, args []ast.Expr) cellvalue.Value {
	return cellvalue.Num(timeToSerial(ctx.Now()))
}

func fnTODAY(ctx Context, args []ast.Expr) cellvalue.Value {
	now := ctx.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return cellvalue.Num(timeToSerial(today))
}

func fnDATE(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	vals, errVal, ok := argValues(ctx, args)
	if !ok {
		return errVal
	}
	y, errKind, ok := cellvalue.ToNumber(vals[0])
	if !ok {
		return cellvalue.Err(errKind)
	}
	m, errKind, ok := cellvalue.ToNumber(vals[1])
	if !ok {
		return cellvalue.Err(errKind)
	}
	d, errKind, ok := cellvalue.ToNumber(vals[2])
	if !ok {
		return cellvalue.Err(errKind)
	}
	t := time.Date(int(y), time.Month(1), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, int(m)-1, int(d)-1)
	return cellvalue.Num(timeToSerial(t))
}

func datePart(ctx Context, args []ast.Expr, extract func(time.Time) int) cellvalue.Value {
	if len(args) != 1 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	n, errVal, ok := numArg(ctx, args[0])
	if !ok {
		return errVal
	}
	return cellvalue.Num(float64(extract(serialToTime(n))))
}

func fnYEAR(ctx Context, args []ast.Expr) cellvalue.Value {
	return datePart(ctx, args, func(t time.Time) int { return t.Year() })
}
func fnMONTH(ctx Context, args []ast.Expr) cellvalue.Value {
	return datePart(ctx, args, func(t time.Time) int { return int(t.Month()) })
}
func fnDAY(ctx Context, args []ast.Expr) cellvalue.Value {
	return datePart(ctx, args, func(t time.Time) int { return t.Day() })
}
func fnHOUR(ctx Context, args []ast.Expr) cellvalue.Value {
	return datePart(ctx, args, func(t time.Time) int { return t.Hour() })
}
func fnMINUTE(ctx Context, args []ast.Expr) cellvalue.Value {
	return datePart(ctx, args, func(t time.Time) int { return t.Minute() })
}
func fnSECOND(ctx Context, args []ast.Expr) cellvalue.Value {
	return datePart(ctx, args, func(t time.Time) int { return t.Second() })
}

func fnWEEKDAY(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 1 || len(args) > 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	n, errVal, ok := numArg(ctx, args[0])
	if !ok {
		return errVal
	}
	returnType := 1.0
	if len(args) == 2 {
		returnType, errVal, ok = numArg(ctx, args[1])
		if !ok {
			return errVal
		}
	}
	wd := int(serialToTime(n).Weekday()) // 0=Sunday
	switch int(returnType) {
	case 1:
		return cellvalue.Num(float64(wd + 1))
	case 2:
		return cellvalue.Num(float64((wd+6)%7 + 1))
	case 3:
		return cellvalue.Num(float64((wd + 6) % 7))
	default:
		return cellvalue.Err(cellvalue.ErrNum)
	}
}

func fnDATEVALUE(ctx Context, args []ast.Expr) cellvalue.Value {
	s, errVal, ok := textArg(ctx, args[0])
	if !ok {
		return errVal
	}
	for _, layout := range []string{"2006-01-02", "01/02/2006", "2006/01/02", "January 2, 2006"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return cellvalue.Num(timeToSerial(t))
		}
	}
	return cellvalue.Err(cellvalue.ErrValue)
}

func fnEDATE(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	vals, errVal, ok := argValues(ctx, args)
	if !ok {
		return errVal
	}
	serial, errKind, ok := cellvalue.ToNumber(vals[0])
	if !ok {
		return cellvalue.Err(errKind)
	}
	months, errKind, ok := cellvalue.ToNumber(vals[1])
	if !ok {
		return cellvalue.Err(errKind)
	}
	t := serialToTime(serial).AddDate(0, int(months), 0)
	return cellvalue.Num(timeToSerial(t))
}

func fnEOMONTH(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	vals, errVal, ok := argValues(ctx, args)
	if !ok {
		return errVal
	}
	serial, errKind, ok := cellvalue.ToNumber(vals[0])
	if !ok {
		return cellvalue.Err(errKind)
	}
	months, errKind, ok := cellvalue.ToNumber(vals[1])
	if !ok {
		return cellvalue.Err(errKind)
	}
	t := serialToTime(serial)
	firstOfTarget := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, int(months)+1, 0)
	lastDay := firstOfTarget.AddDate(0, 0, -1)
	return cellvalue.Num(timeToSerial(lastDay))
}

func fnDAYS(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	vals, errVal, ok := argValues(ctx, args)
	if !ok {
		return errVal
	}
	end, errKind, ok := cellvalue.ToNumber(vals[0])
	if !ok {
		return cellvalue.Err(errKind)
	}
	start, errKind, ok := cellvalue.ToNumber(vals[1])
	if !ok {
		return cellvalue.Err(errKind)
	}
	return cellvalue.Num(end - start)
}

func fnNETWORKDAYS(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	vals, errVal, ok := argValues(ctx, args)
	if !ok {
		return errVal
	}
	startSerial, errKind, ok := cellvalue.ToNumber(vals[0])
	if !ok {
		return cellvalue.Err(errKind)
	}
	endSerial, errKind, ok := cellvalue.ToNumber(vals[1])
	if !ok {
		return cellvalue.Err(errKind)
	}
	start, end := serialToTime(startSerial), serialToTime(endSerial)
	if start.After(end) {
		start, end = end, start
	}
	count := 0
	for t := start; !t.After(end); t = t.AddDate(0, 0, 1) {
		if t.Weekday() != time.Saturday && t.Weekday() != time.Sunday {
			count++
		}
	}
	return cellvalue.Num(float64(count))
}

// fnDATEDIF computes the difference between two dates in the given
// unit: "Y" full years, "M" full months, "D" days, "MD" days ignoring
// months/years, "YM" months ignoring years, "YD" days ignoring years.
func fnDATEDIF(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	vals, errVal, ok := argValues(ctx, args)
	if !ok {
		return errVal
	}
	startSerial, errKind, ok := cellvalue.ToNumber(vals[0])
	if !ok {
		return cellvalue.Err(errKind)
	}
	endSerial, errKind, ok := cellvalue.ToNumber(vals[1])
	if !ok {
		return cellvalue.Err(errKind)
	}
	unit := strings.ToUpper(strings.TrimSpace(textOf(vals[2])))
	if startSerial > endSerial {
		return cellvalue.Err(cellvalue.ErrNum)
	}
	start, end := serialToTime(startSerial), serialToTime(endSerial)

	years := end.Year() - start.Year()
	months := int(end.Month()) - int(start.Month())
	days := end.Day() - start.Day()
	if days < 0 {
		months--
		days += daysInMonth(end.Year(), int(end.Month())-1)
	}
	if months < 0 {
		years--
		months += 12
	}

	switch unit {
	case "Y":
		return cellvalue.Num(float64(years))
	case "M":
		return cellvalue.Num(float64(years*12 + months))
	case "D":
		return cellvalue.Num(math.Floor(endSerial - startSerial))
	case "MD":
		return cellvalue.Num(float64(days))
	case "YM":
		return cellvalue.Num(float64(months))
	case "YD":
		anniversary := time.Date(end.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		if anniversary.After(end) {
			anniversary = time.Date(end.Year()-1, start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		}
		return cellvalue.Num(math.Floor(end.Sub(anniversary).Hours() / 24))
	default:
		return cellvalue.Err(cellvalue.ErrNum)
	}
}

func daysInMonth(year, month int) int {
	for month <= 0 {
		month += 12
		year--
	}
	firstOfNext := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	lastOfThis := firstOfNext.AddDate(0, 0, -1)
	return lastOfThis.Day()
}
