//go:build unix

package tail

import (
	"os"
	"syscall"
)

// fileIdent identifies a file independent of its name.
type fileIdent struct {
	dev uint64
	ino uint64
}

func identFromInfo(info os.FileInfo) (fileIdent, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fileIdent{}, false
	}
	return fileIdent{dev: uint64(st.Dev), ino: uint64(st.Ino)}, true
}
