package api

import (
	"encoding/base64"
	"fmt"
	"os"
)

// image is one prompt attachment: either a filesystem path or inline base64
// content, which gets spilled to a temp file before the spawn.
type image struct {
	Path   string `json:"path,omitempty"`
	Base64 string `json:"base64,omitempty"`
	Ext    string `json:"ext,omitempty"`
}

func materializeImages(images []image) ([]string, error) {
	if len(images) == 0 {
		return nil, nil
	}
	paths := make([]string, 0, len(images))
	for i, img := range images {
		switch {
		case img.Path != "":
			paths = append(paths, img.Path)
		case img.Base64 != "":
			data, err := base64.StdEncoding.DecodeString(img.Base64)
			if err != nil {
				return nil, fmt.Errorf("image %d: invalid base64", i)
			}
			ext := img.Ext
			if ext == "" {
				ext = ".png"
			}
			f, err := os.CreateTemp("", "codexd-image-*"+ext)
			if err != nil {
				return nil, fmt.Errorf("image %d: %w", i, err)
			}
			if _, err := f.Write(data); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("image %d: %w", i, err)
			}
			if err := f.Close(); err != nil {
				return nil, fmt.Errorf("image %d: %w", i, err)
			}
			paths = append(paths, f.Name())
		default:
			return nil, fmt.Errorf("image %d: path or base64 required", i)
		}
	}
	return paths, nil
}
