package checksum

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
)

// Stream consumes r to EOF and returns the hex digest of its content along
// with the number of bytes read. The digest is only returned once the entire
// stream has been read; callers never see a partial digest.
func Stream(r io.Reader) (string, int64, error) {
	hasher := md5.New()

	n, err := io.Copy(hasher, r)
	if err != nil {
		return "", n, err
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), n, nil
}

// File computes the digest of the file at path.
func File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	return Stream(f)
}
