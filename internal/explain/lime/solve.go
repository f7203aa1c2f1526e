package lime

import "fmt"

// ridgeFit solves the proximity-weighted ridge regression
//
//	(XᵀWX + λI) β = XᵀW y
//
// where X prepends an intercept column to the masks. Returns the
// coefficient vector β (intercept first). The normal-equation solve is a
// dense Gaussian elimination; surrogate dimensionality is bounded by the
// distinct-token count of a single input, so no linear-algebra dependency
// is warranted.
func ridgeFit(masks [][]float64, y, w []float64, lambda float64) ([]float64, error) {
	rows := len(masks)
	if rows == 0 {
		return nil, fmt.Errorf("ridge fit: no observations")
	}
	dim := len(masks[0]) + 1

	// Normal matrix A = XᵀWX + λI and right-hand side b = XᵀWy.
	a := make([][]float64, dim)
	for i := range a {
		a[i] = make([]float64, dim)
		a[i][i] = lambda
	}
	b := make([]float64, dim)

	xi := make([]float64, dim)
	for r := 0; r < rows; r++ {
		xi[0] = 1
		copy(xi[1:], masks[r])
		wr := w[r]
		for i := 0; i < dim; i++ {
			wxi := wr * xi[i]
			b[i] += wxi * y[r]
			for j := i; j < dim; j++ {
				a[i][j] += wxi * xi[j]
			}
		}
	}
	// Mirror the upper triangle.
	for i := 1; i < dim; i++ {
		for j := 0; j < i; j++ {
			a[i][j] = a[j][i]
		}
	}

	return solve(a, b)
}

// solve performs in-place Gaussian elimination with partial pivoting.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if abs(a[r][col]) > abs(a[pivot][col]) {
				pivot = r
			}
		}
		if abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("ridge fit: singular normal matrix at column %d", col)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			factor := a[r][col] / a[col][col]
			if factor == 0 {
				continue
			}
			for c := col; c < n; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < n; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
