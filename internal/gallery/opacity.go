// Package gallery keeps a rendered photo gallery consistent with the server's
// photo listing. A Synchronizer polls the listing, diffs it against the set of
// photo IDs it has rendered, and drives each element through insert, fade and
// removal on a Renderer.
package gallery

// Opacity maps a photo's age onto its display opacity. A photo is fully opaque
// until age exceeds lifetime, then decays linearly to 0 over fadeout seconds.
// The result is clamped to [0, 1]. A non-positive fadeout means the photo
// vanishes as soon as its lifetime is over.
func Opacity(age, lifetime, fadeout float64) float64 {
	if age <= lifetime {
		return 1
	}
	if fadeout <= 0 {
		return 0
	}

	progress := (age - lifetime) / fadeout
	if progress > 1 {
		progress = 1
	}
	return 1 - progress
}
