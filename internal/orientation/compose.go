package orientation

// Compose adds a resolved rotation delta to the rotation a page already
// carries. changed is false when the stored value would stay the same.
func Compose(preExisting, total int) (final int, changed bool) {
	pre := Normalize(preExisting)
	final = Normalize(pre + total)
	return final, final != pre
}
