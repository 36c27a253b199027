package fs

// Changed reports whether a file differs from a previously recorded state.
// Inode identity is only compared when both sides know it.
func Changed(orig, now FileInfo) bool {
	if now.Inode != 0 && orig.Inode != 0 && now.Inode != orig.Inode {
		return true
	}
	if !now.MTime.Equal(orig.MTime) {
		return true
	}
	if now.Size != orig.Size {
		return true
	}
	return false
}
