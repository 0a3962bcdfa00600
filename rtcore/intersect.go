package rtcore

import "github.com/sarchlab/rtxsim/treelet"

// intersectAABB runs the slab test against box, returning the entry t-value
// clamped to [tMin, tMax] and whether the ray intersects the box at all
// within that range.
func intersectAABB(ray Ray, invDir [3]float32, box treelet.AABB, tMin, tMax float32) (float32, bool) {
	tx1 := (box.MinX - ray.Origin[0]) * invDir[0]
	tx2 := (box.MaxX - ray.Origin[0]) * invDir[0]
	lo, hi := minf(tx1, tx2), maxf(tx1, tx2)

	ty1 := (box.MinY - ray.Origin[1]) * invDir[1]
	ty2 := (box.MaxY - ray.Origin[1]) * invDir[1]
	lo = maxf(lo, minf(ty1, ty2))
	hi = minf(hi, maxf(ty1, ty2))

	tz1 := (box.MinZ - ray.Origin[2]) * invDir[2]
	tz2 := (box.MaxZ - ray.Origin[2]) * invDir[2]
	lo = maxf(lo, minf(tz1, tz2))
	hi = minf(hi, maxf(tz1, tz2))

	if hi < lo || hi < tMin || lo > tMax {
		return 0, false
	}
	if lo < tMin {
		lo = tMin
	}
	return lo, true
}

// intersectTriangle runs a Moller-Trumbore test, returning the hit
// parametric distance and barycentric (u, v) coordinates.
func intersectTriangle(ray Ray, tri treelet.Triangle, tMax float32) (t, u, v float32, hit bool) {
	const eps = 1e-7

	e1 := sub3(tri.V1, tri.V0)
	e2 := sub3(tri.V2, tri.V0)
	pvec := cross3(ray.Dir, e2)
	det := dot3(e1, pvec)
	if det > -eps && det < eps {
		return 0, 0, 0, false
	}
	invDet := 1 / det

	tvec := sub3(ray.Origin, tri.V0)
	u = dot3(tvec, pvec) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	qvec := cross3(tvec, e1)
	v = dot3(ray.Dir, qvec) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	t = dot3(e2, qvec) * invDet
	if t <= eps || t > tMax {
		return 0, 0, 0, false
	}
	return t, u, v, true
}

func sub3(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross3(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot3(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
