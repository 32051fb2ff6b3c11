// Package version implements the epoch:upstream-revision version algebra
// used throughout the catalog: parsing a version string into its three
// parts and comparing two versions according to the dpkg/opkg collation
// rules (alternating digit/non-digit runs, with '~' sorting before
// everything, including the empty string).
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	debversion "github.com/knqyf263/go-deb-version"
)

// Triple is the parsed form of a version string: [epoch:]upstream[-revision].
type Triple struct {
	Epoch    uint32
	Upstream string
	Revision string
}

var ErrMalformed = errors.New("version: malformed version string")

// Parse splits s into epoch, upstream and revision per spec:
//   - leading digits followed by ':' form the epoch (missing = 0)
//   - the rightmost '-' separates the revision from the upstream part
//   - the string is trimmed of surrounding whitespace first
func Parse(s string) (Triple, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Triple{}, fmt.Errorf("%w: empty string", ErrMalformed)
	}

	var t Triple
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		digits := s[:idx]
		for _, r := range digits {
			if r < '0' || r > '9' {
				return Triple{}, fmt.Errorf("%w: invalid epoch %q", ErrMalformed, digits)
			}
		}
		if digits != "" {
			n, err := strconv.ParseUint(digits, 10, 32)
			if err != nil {
				return Triple{}, fmt.Errorf("%w: invalid epoch %q", ErrMalformed, digits)
			}
			t.Epoch = uint32(n)
		}
		s = s[idx+1:]
	}

	if idx := strings.LastIndexByte(s, '-'); idx >= 0 {
		t.Upstream = s[:idx]
		t.Revision = s[idx+1:]
	} else {
		t.Upstream = s
		t.Revision = ""
	}

	if t.Upstream == "" {
		return Triple{}, fmt.Errorf("%w: missing upstream version", ErrMalformed)
	}

	return t, nil
}

// String reconstructs the canonical "epoch:upstream-revision" form.
func (t Triple) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%s", t.Epoch, t.Upstream)
	if t.Revision != "" {
		b.WriteByte('-')
		b.WriteString(t.Revision)
	}
	return b.String()
}

// Display renders the version the way opkg's status/control output
// does: the epoch prefix is only shown when it is non-zero.
func (t Triple) Display() string {
	if t.Epoch == 0 {
		if t.Revision == "" {
			return t.Upstream
		}
		return t.Upstream + "-" + t.Revision
	}
	return t.String()
}

// Compare returns a negative number if a < b, zero if equal, and a
// positive number if a > b, ordering lexicographically on
// (epoch, upstream, revision) using the package-version collation
// algorithm for the upstream/revision components.
//
// Ordering is delegated to go-deb-version, which implements the same
// alternating digit/non-digit run comparison (including '~' sorting
// before the empty string) that dpkg and opkg use; Triple only owns the
// decomposition into epoch/upstream/revision that the catalog's data
// model requires as explicit fields.
func Compare(a, b Triple) int {
	if a.Epoch != b.Epoch {
		if a.Epoch < b.Epoch {
			return -1
		}
		return 1
	}

	va, erra := debversion.NewVersion(a.String())
	vb, errb := debversion.NewVersion(b.String())
	if erra != nil || errb != nil {
		return compareRuns(a.Upstream, b.Upstream, a.Revision, b.Revision)
	}

	switch {
	case va.Equal(vb):
		return 0
	case va.LessThan(vb):
		return -1
	case va.GreaterThan(vb):
		return 1
	default:
		return compareRuns(a.Upstream, b.Upstream, a.Revision, b.Revision)
	}
}

// compareRuns is the fallback collation used only if go-deb-version
// rejects one of the reconstructed strings (e.g. a revision containing
// characters it refuses to parse). It implements the same
// alternating-run algorithm directly against the upstream and revision
// parts.
func compareRuns(up1, up2, rev1, rev2 string) int {
	if c := compareVersionPart(up1, up2); c != 0 {
		return c
	}
	return compareVersionPart(rev1, rev2)
}

func compareVersionPart(a, b string) int {
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		// compare non-digit runs
		var na, nb strings.Builder
		for i < len(a) && !isDigit(a[i]) {
			na.WriteByte(a[i])
			i++
		}
		for j < len(b) && !isDigit(b[j]) {
			nb.WriteByte(b[j])
			j++
		}
		if c := compareNonDigitRun(na.String(), nb.String()); c != 0 {
			return c
		}

		// compare digit runs numerically, ignoring leading zeros
		di := i
		for i < len(a) && isDigit(a[i]) {
			i++
		}
		dj := j
		for j < len(b) && isDigit(b[j]) {
			j++
		}
		da := strings.TrimLeft(a[di:i], "0")
		db := strings.TrimLeft(b[dj:j], "0")
		if len(da) != len(db) {
			if len(da) < len(db) {
				return -1
			}
			return 1
		}
		if c := strings.Compare(da, db); c != 0 {
			return c
		}
	}
	return 0
}

// compareNonDigitRun orders by the package-version collation: '~' sorts
// before the empty string, which sorts before letters, which sort
// before everything else.
func compareNonDigitRun(a, b string) int {
	la, lb := len(a), len(b)
	max := la
	if lb > max {
		max = lb
	}
	for k := 0; k < max; k++ {
		var ca, cb byte
		if k < la {
			ca = a[k]
		}
		if k < lb {
			cb = b[k]
		}
		if ca == cb {
			continue
		}
		wa, wb := collationWeight(ca), collationWeight(cb)
		if wa != wb {
			if wa < wb {
				return -1
			}
			return 1
		}
		if ca < cb {
			return -1
		}
		return 1
	}
	return 0
}

// collationWeight ranks a byte (0 meaning "end of run") for the
// package-version collation: '~' < end-of-string < letters < everything else.
func collationWeight(c byte) int {
	switch {
	case c == '~':
		return 0
	case c == 0:
		return 1
	case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		return 2
	default:
		return 3
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
