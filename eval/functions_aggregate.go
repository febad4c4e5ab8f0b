package eval

import (
	"math"
	"sort"

	"gridcore/ast"
	"gridcore/cellvalue"
)

// numericOperands flattens every argument (scalars, ranges, arrays)
// and keeps only the values that participate in a numeric aggregate:
// numbers are counted, text/booleans/empties are ignored, errors abort
// the whole aggregate per spreadsheet convention.
func numericOperands(ctx Context, args []ast.Expr) ([]float64, cellvalue.Value, bool) {
	var out []float64
	for _, a := range args {
		for _, v := range flattenArg(ctx, a) {
			if v.IsError() {
				return nil, v, false
			}
			if v.Tag == cellvalue.VNumber {
				out = append(out, v.Num)
			}
		}
	}
	return out, cellvalue.Value{}, true
}

func fnSUM(ctx Context, args []ast.Expr) cellvalue.Value {
	nums, errVal, ok := numericOperands(ctx, args)
	if !ok {
		return errVal
	}
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	return cellvalue.Num(sum)
}

func fnAVERAGE(ctx Context, args []ast.Expr) cellvalue.Value {
	nums, errVal, ok := numericOperands(ctx, args)
	if !ok {
		return errVal
	}
	if len(nums) == 0 {
		return cellvalue.Err(cellvalue.ErrDivZero)
	}
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	return cellvalue.Num(sum / float64(len(nums)))
}

func fnCOUNT(ctx Context, args []ast.Expr) cellvalue.Value {
	nums, errVal, ok := numericOperands(ctx, args)
	if !ok {
		return errVal
	}
	return cellvalue.Num(float64(len(nums)))
}

func fnCOUNTA(ctx Context, args []ast.Expr) cellvalue.Value {
	n := 0
	for _, a := range args {
		for _, v := range flattenArg(ctx, a) {
			if !v.IsEmpty() {
				n++
			}
		}
	}
	return cellvalue.Num(float64(n))
}

func fnCOUNTBLANK(ctx Context, args []ast.Expr) cellvalue.Value {
	n := 0
	for _, a := range args {
		for _, v := range flattenArg(ctx, a) {
			if v.IsEmpty() {
				n++
			}
		}
	}
	return cellvalue.Num(float64(n))
}

func fnMIN(ctx Context, args []ast.Expr) cellvalue.Value {
	nums, errVal, ok := numericOperands(ctx, args)
	if !ok {
		return errVal
	}
	if len(nums) == 0 {
		return cellvalue.Num(0)
	}
	m := nums[0]
	for _, n := range nums[1:] {
		if n < m {
			m = n
		}
	}
	return cellvalue.Num(m)
}

func fnMAX(ctx Context, args []ast.Expr) cellvalue.Value {
	nums, errVal, ok := numericOperands(ctx, args)
	if !ok {
		return errVal
	}
	if len(nums) == 0 {
		return cellvalue.Num(0)
	}
	m := nums[0]
	for _, n := range nums[1:] {
		if n > m {
			m = n
		}
	}
	return cellvalue.Num(m)
}

func fnMEDIAN(ctx Context, args []ast.Expr) cellvalue.Value {
	nums, errVal, ok := numericOperands(ctx, args)
	if !ok {
		return errVal
	}
	if len(nums) == 0 {
		return cellvalue.Err(cellvalue.ErrNum)
	}
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return cellvalue.Num(sorted[mid])
	}
	return cellvalue.Num((sorted[mid-1] + sorted[mid]) / 2)
}

func fnPRODUCT(ctx Context, args []ast.Expr) cellvalue.Value {
	nums, errVal, ok := numericOperands(ctx, args)
	if !ok {
		return errVal
	}
	p := 1.0
	for _, n := range nums {
		p *= n
	}
	return cellvalue.Num(p)
}

func fnSTDEV(ctx Context, args []ast.Expr) cellvalue.Value {
	nums, errVal, ok := numericOperands(ctx, args)
	if !ok {
		return errVal
	}
	if len(nums) < 2 {
		return cellvalue.Err(cellvalue.ErrDivZero)
	}
	return cellvalue.Num(math.Sqrt(sampleVariance(nums)))
}

func fnVAR(ctx Context, args []ast.Expr) cellvalue.Value {
	nums, errVal, ok := numericOperands(ctx, args)
	if !ok {
		return errVal
	}
	if len(nums) < 2 {
		return cellvalue.Err(cellvalue.ErrDivZero)
	}
	return cellvalue.Num(sampleVariance(nums))
}

func sampleVariance(nums []float64) float64 {
	return variance(nums, len(nums)-1)
}

func populationVariance(nums []float64) float64 {
	return variance(nums, len(nums))
}

func variance(nums []float64, degreesOfFreedom int) float64 {
	mean := 0.0
	for _, n := range nums {
		mean += n
	}
	mean /= float64(len(nums))
	ss := 0.0
	for _, n := range nums {
		d := n - mean
		ss += d * d
	}
	return ss / float64(degreesOfFreedom)
}

func fnSTDEVP(ctx Context, args []ast.Expr) cellvalue.Value {
	nums, errVal, ok := numericOperands(ctx, args)
	if !ok {
		return errVal
	}
	if len(nums) < 1 {
		return cellvalue.Err(cellvalue.ErrDivZero)
	}
	return cellvalue.Num(math.Sqrt(populationVariance(nums)))
}

func fnVARP(ctx Context, args []ast.Expr) cellvalue.Value {
	nums, errVal, ok := numericOperands(ctx, args)
	if !ok {
		return errVal
	}
	if len(nums) < 1 {
		return cellvalue.Err(cellvalue.ErrDivZero)
	}
	return cellvalue.Num(populationVariance(nums))
}

// conditionalAggregate implements the shared SUMIF/COUNTIF/AVERAGEIF
// shape: a range to test, a criterion, and (for SUM/AVERAGE) an
// optional separate range to accumulate.
func conditionalAggregate(ctx Context, rangeArg, criterionArg, sumArg ast.Expr, accumulate bool) (matched []cellvalue.Value, ok bool) {
	testVals := flattenArg(ctx, rangeArg)
	criterion := Eval(ctx, criterionArg).ToFlat()
	if criterion.IsError() {
		return nil, false
	}
	var sumVals []cellvalue.Value
	if accumulate {
		sumVals = flattenArg(ctx, sumArg)
		if len(sumVals) != len(testVals) {
			return nil, false
		}
	}
	for i, v := range testVals {
		if matchesCriterion(v, criterion) {
			if accumulate {
				matched = append(matched, sumVals[i])
			} else {
				matched = append(matched, v)
			}
		}
	}
	return matched, true
}

func fnSUMIF(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	sumArg := args[0]
	if len(args) == 3 {
		sumArg = args[2]
	}
	matched, ok := conditionalAggregate(ctx, args[0], args[1], sumArg, true)
	if !ok {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	sum := 0.0
	for _, v := range matched {
		if n, _, ok := cellvalue.ToNumber(v); ok {
			sum += n
		}
	}
	return cellvalue.Num(sum)
}

func fnCOUNTIF(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) != 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	matched, ok := conditionalAggregate(ctx, args[0], args[1], nil, false)
	if !ok {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	return cellvalue.Num(float64(len(matched)))
}

func fnAVERAGEIF(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 2 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	sumArg := args[0]
	if len(args) == 3 {
		sumArg = args[2]
	}
	matched, ok := conditionalAggregate(ctx, args[0], args[1], sumArg, true)
	if !ok || len(matched) == 0 {
		return cellvalue.Err(cellvalue.ErrDivZero)
	}
	sum := 0.0
	for _, v := range matched {
		if n, _, ok := cellvalue.ToNumber(v); ok {
			sum += n
		}
	}
	return cellvalue.Num(sum / float64(len(matched)))
}

// multiCriteriaMask evaluates a SUMIFS/COUNTIFS/AVERAGEIFS/MAXIFS/MINIFS
// style (range, criterion) pair list and returns the boolean mask of
// rows satisfying every pair.
func multiCriteriaMask(ctx Context, pairs []ast.Expr) ([]bool, int, bool) {
	if len(pairs)%2 != 0 || len(pairs) == 0 {
		return nil, 0, false
	}
	n := -1
	var masks [][]bool
	for i := 0; i+1 < len(pairs); i += 2 {
		vals := flattenArg(ctx, pairs[i])
		if n == -1 {
			n = len(vals)
		} else if len(vals) != n {
			return nil, 0, false
		}
		criterion := Eval(ctx, pairs[i+1]).ToFlat()
		mask := make([]bool, n)
		for j, v := range vals {
			mask[j] = matchesCriterion(v, criterion)
		}
		masks = append(masks, mask)
	}
	combined := make([]bool, n)
	for i := range combined {
		combined[i] = true
		for _, m := range masks {
			if !m[i] {
				combined[i] = false
				break
			}
		}
	}
	return combined, n, true
}

func fnSUMIFS(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	sumVals := flattenArg(ctx, args[0])
	mask, n, ok := multiCriteriaMask(ctx, args[1:])
	if !ok || n != len(sumVals) {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	sum := 0.0
	for i, keep := range mask {
		if keep {
			if v, _, ok := cellvalue.ToNumber(sumVals[i]); ok {
				sum += v
			}
		}
	}
	return cellvalue.Num(sum)
}

func fnCOUNTIFS(ctx Context, args []ast.Expr) cellvalue.Value {
	mask, _, ok := multiCriteriaMask(ctx, args)
	if !ok {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	n := 0
	for _, keep := range mask {
		if keep {
			n++
		}
	}
	return cellvalue.Num(float64(n))
}

func fnAVERAGEIFS(ctx Context, args []ast.Expr) cellvalue.Value {
	if len(args) < 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	avgVals := flattenArg(ctx, args[0])
	mask, n, ok := multiCriteriaMask(ctx, args[1:])
	if !ok || n != len(avgVals) {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	sum, count := 0.0, 0
	for i, keep := range mask {
		if keep {
			if v, _, ok := cellvalue.ToNumber(avgVals[i]); ok {
				sum += v
				count++
			}
		}
	}
	if count == 0 {
		return cellvalue.Err(cellvalue.ErrDivZero)
	}
	return cellvalue.Num(sum / float64(count))
}

func minmaxIfs(ctx Context, args []ast.Expr, wantMax bool) cellvalue.Value {
	if len(args) < 3 {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	targetVals := flattenArg(ctx, args[0])
	mask, n, ok := multiCriteriaMask(ctx, args[1:])
	if !ok || n != len(targetVals) {
		return cellvalue.Err(cellvalue.ErrValue)
	}
	var best float64
	found := false
	for i, keep := range mask {
		if !keep {
			continue
		}
		v, _, ok := cellvalue.ToNumber(targetVals[i])
		if !ok {
			continue
		}
		if !found || (wantMax && v > best) || (!wantMax && v < best) {
			best = v
			found = true
		}
	}
	if !found {
		return cellvalue.Num(0)
	}
	return cellvalue.Num(best)
}

func fnMAXIFS(ctx Context, args []ast.Expr) cellvalue.Value { return minmaxIfs(ctx, args, true) }
func fnMINIFS(ctx Context, args []ast.Expr) cellvalue.Value { return minmaxIfs(ctx, args, false) }
