package lattice

import (
	"context"
	"math"
	"math/cmplx"

	"github.com/pkg/errors"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/internal/parallel"
	"github.com/fumin/tprf/mat"
	"github.com/fumin/tprf/mesh"
)

// degenerateTol is the level spacing below which the static Lindhard ratio is replaced by its derivative.
const degenerateTol = 1e-10

// Chi00WKFromEK returns the particle hole bubble from the band structure (Lindhard formula)
//
//	χ0(q, iΩ)[a,b,c,d] = -(1/N) Σ_k Σ_ij U_di(k) U*_ai(k) U_bj(k-q) U*_cj(k-q) (f_i(k) - f_j(k-q)) / (ξ_i(k) - ξ_j(k-q) + iΩ)
//
// where H(k) = U(k) diag(ε(k)) U(k)†, ξ = ε - μ and f is the Fermi function.
// At Ω = 0 degenerate levels contribute the derivative -βf(1-f) in place of the ratio.
func Chi00WKFromEK(ctx context.Context, mu float64, ek *gf.Gf, wm mesh.Matsubara) (*gf.Gf, error) {
	if err := checkDispersion(ek); err != nil {
		return nil, err
	}
	if wm.Statistic != mesh.Boson {
		return nil, errs.Config("mesh", "%s is not bosonic", wm)
	}
	n, l := ek.Norb(), ek.Lattice
	nx := l.Len()

	eig := make([]mat.Eigen, nx)
	err := parallel.For(ctx, nx, func(x int) error {
		var err error
		eig[x], err = mat.EigenHermitian(ek.Block(0, x), n)
		if err != nil {
			return errors.Wrap(err, "")
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	chi := gf.NewFreq(wm, l, gf.Momentum, n, n, n, n)
	beta := wm.Beta
	err = parallel.For(ctx, nx, func(q int) error {
		ratio := make([]complex128, n*n)
		for k := 0; k < nx; k++ {
			ea, eb := eig[k], eig[l.Sub(k, q)]
			for i := 0; i < wm.Len(); i++ {
				iw := wm.IW(i)
				for ii := 0; ii < n; ii++ {
					xi := ea.Vals[ii] - mu
					for jj := 0; jj < n; jj++ {
						xj := eb.Vals[jj] - mu
						ratio[ii*n+jj] = lindhard(beta, xi, xj, iw)
					}
				}
				accumulate(chi.Block(i, q), ea, eb, ratio, n)
			}
		}
		for i := 0; i < wm.Len(); i++ {
			blk := chi.Block(i, q)
			for e := range blk {
				blk[e] /= complex(-float64(nx), 0)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return chi, nil
}

// accumulate adds Σ_ij U_di U*_ai V_bj V*_cj r_ij to blk[a,b,c,d].
func accumulate(blk []complex128, u, v mat.Eigen, r []complex128, n int) {
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			for c := 0; c < n; c++ {
				for d := 0; d < n; d++ {
					var s complex128
					for i := 0; i < n; i++ {
						ui := u.U(d, i) * cmplx.Conj(u.U(a, i))
						if ui == 0 {
							continue
						}
						for j := 0; j < n; j++ {
							s += ui * v.U(b, j) * cmplx.Conj(v.U(c, j)) * r[i*n+j]
						}
					}
					blk[gf.Idx4(n, a, b, c, d)] += s
				}
			}
		}
	}
}

// lindhard is (f(ξi) - f(ξj)) / (ξi - ξj + iΩ).
func lindhard(beta, xi, xj float64, iw complex128) complex128 {
	if iw == 0 && math.Abs(xi-xj) < degenerateTol {
		f := fermi(beta, xi)
		return complex(-beta*f*(1-f), 0)
	}
	return complex(fermi(beta, xi)-fermi(beta, xj), 0) / (complex(xi-xj, 0) + iw)
}

func fermi(beta, e float64) float64 {
	if e > 0 {
		x := math.Exp(-beta * e)
		return x / (1 + x)
	}
	return 1 / (1 + math.Exp(beta*e))
}
