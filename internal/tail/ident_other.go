//go:build !unix

package tail

import "os"

// fileIdent identifies a file independent of its name. On platforms without
// stable inode numbers rotation detection degrades to size heuristics.
type fileIdent struct {
	dev uint64
	ino uint64
}

func identFromInfo(os.FileInfo) (fileIdent, bool) {
	return fileIdent{}, false
}
