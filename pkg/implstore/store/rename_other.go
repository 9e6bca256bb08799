//go:build !linux && !darwin

package store

func renameNoReplace(oldpath, newpath string) error {
	return renameChecked(oldpath, newpath)
}
