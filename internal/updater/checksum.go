package updater

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
)

var errNoDigest = errors.New("no supported digest")

var sriHashes = map[string]func() hash.Hash{
	"sha512": sha512.New,
	"sha384": sha512.New384,
	"sha256": sha256.New,
	"sha1":   sha1.New,
}

// verifyChecksum checks data against an npm integrity string (SRI, possibly
// several space separated) or a bare hex sha1 shasum. An empty checksum
// passes; so does one with no supported algorithm, reported as errNoDigest
// for logging only.
func verifyChecksum(data []byte, checksum string) error {
	checksum = strings.TrimSpace(checksum)
	if checksum == "" {
		return nil
	}

	if isHexSHA1(checksum) {
		sum := sha1.Sum(data)
		if !strings.EqualFold(hex.EncodeToString(sum[:]), checksum) {
			return fmt.Errorf("sha1 mismatch: want %s", checksum)
		}
		return nil
	}

	checked := false
	for _, token := range strings.Fields(checksum) {
		alg, digest, ok := strings.Cut(token, "-")
		newHash, known := sriHashes[alg]
		if !ok || !known {
			continue
		}
		want, err := base64.StdEncoding.DecodeString(digest)
		if err != nil {
			continue
		}
		checked = true

		h := newHash()
		h.Write(data)
		if subtle.ConstantTimeCompare(h.Sum(nil), want) == 1 {
			return nil
		}
	}

	if !checked {
		return errNoDigest
	}
	return fmt.Errorf("integrity mismatch: want %s", checksum)
}

func isHexSHA1(s string) bool {
	if len(s) != 40 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
