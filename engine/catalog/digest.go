package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Digest returns a sha256 over the contents of the source files followed by
// the extra strings, each part length-prefixed so boundaries cannot shift.
func Digest(src Source, extra ...string) (string, error) {
	h := sha256.New()
	for _, p := range src.Paths() {
		f, err := os.Open(p)
		if err != nil {
			return "", fmt.Errorf("catalog: digest %s: %w", p, err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return "", fmt.Errorf("catalog: digest %s: %w", p, err)
		}
		fmt.Fprintf(h, "file:%d:", info.Size())
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("catalog: digest %s: %w", p, err)
		}
	}
	for _, s := range extra {
		fmt.Fprintf(h, "opt:%d:%s", len(s), s)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
