//go:build linux || darwin || windows

package clip

import (
	"fmt"

	"golang.design/x/clipboard"

	"go.clipd.dev/clipd/internal/item"
)

// readCurrent reads the system clipboard with image priority.
func readCurrent() (*item.Item, error) {
	if img := clipboard.Read(clipboard.FmtImage); len(img) > 0 {
		it := item.NewImage(img, item.DefaultImageEncoding)
		return &it, nil
	}
	if text := clipboard.Read(clipboard.FmtText); len(text) > 0 {
		it := item.NewText(string(text))
		return &it, nil
	}
	return nil, nil
}

// applyItem writes it to the system clipboard, routing on the item kind.
func applyItem(it item.Item) error {
	switch it.Kind {
	case item.Text:
		clipboard.Write(clipboard.FmtText, it.Content)
		return nil
	case item.Image:
		// The x/clipboard image format is PNG; other encodings would
		// need transcoding, which would mutate the payload.
		if it.ImageEncoding != item.DefaultImageEncoding {
			return fmt.Errorf("unsupported image encoding: %s", it.ImageEncoding)
		}
		clipboard.Write(clipboard.FmtImage, it.Content)
		return nil
	default:
		return fmt.Errorf("unsupported content type: %s", it.Kind)
	}
}
