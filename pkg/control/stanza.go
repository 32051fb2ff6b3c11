// Package control parses the RFC-822-style "stanza" files opkg uses for
// both package feeds and the local installed-status database: blank-line
// separated blocks of "Field: value" lines, with space-prefixed
// continuation lines for multi-line fields.
package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
)

// Conffile is one entry of a package's Conffiles list: a configuration
// file path and the MD5 sum it had when the package was installed.
type Conffile struct {
	Path string
	MD5  string
}

// Alternative is one update-alternatives-style slot: installing this
// package offers Path as an alternative implementation of AltPath, at the
// given priority.
type Alternative struct {
	Priority int
	Path     string
	AltPath  string
}

// Stanza is one fully-parsed block of control fields. Dependency fields
// are left as raw strings; pkg/depend.ParseList turns them into compound
// dependencies once the caller's catalog is available to intern names.
type Stanza struct {
	Package       string
	Version       string
	Architecture  string
	Depends       string
	PreDepends    string
	Recommends    string
	Suggests      string
	Conflicts     string
	Replaces      string
	Provides      string
	Section       string
	Priority      string
	Source        string
	Maintainer    string
	Filename      string
	Size          uint64
	InstalledSize uint64
	InstalledTime uint64
	MD5Sum        string
	SHA256Sum     string
	Description   string
	Conffiles     []Conffile
	Alternatives  []Alternative
	Tags          string
	Essential     bool
	AutoInstalled bool
	Want          Want
	Flags         Flag
	Status        Status
	ABIVersion    string
}

// Decoder streams Stanza values out of an RFC-822-style control file.
type Decoder struct {
	scanner *bufio.Scanner
	log     logr.Logger
	tty     bool
}

// NewDecoder wraps r. tty mirrors the "isatty" check the original parser
// makes when folding Description continuation lines: when true, newlines
// in the description are preserved instead of being replaced with spaces.
func NewDecoder(ctx context.Context, r io.Reader, tty bool) *Decoder {
	return &Decoder{
		scanner: bufio.NewScanner(r),
		log:     logr.FromContextOrDiscard(ctx),
		tty:     tty,
	}
}

// Decode reads one stanza, applying mask to select which fields are
// populated. It returns io.EOF once the stream is exhausted. A stanza
// lacking a Package field is discarded and skipped rather than returned
// (spec.md §4.3, §6: "a stanza with no Package: is discarded silently").
func (d *Decoder) Decode(mask FieldMask) (*Stanza, error) {
	for {
		st, err := d.decodeOne(mask)
		if err != nil {
			return nil, err
		}
		if st == nil {
			continue
		}
		if st.Package == "" {
			d.log.V(2).Info("discarding stanza with no Package field")
			continue
		}
		return st, nil
	}
}

func (d *Decoder) decodeOne(mask FieldMask) (*Stanza, error) {
	st := &Stanza{}
	sawField := false

	var descBuilder strings.Builder
	readingDescription := false
	readingConffiles := false
	haveDescription := false

	for d.scanner.Scan() {
		line := d.scanner.Text()

		if line == "" {
			if sawField {
				if haveDescription {
					st.Description = descBuilder.String()
				}
				return st, nil
			}
			continue
		}

		if line[0] == ' ' || line[0] == '\t' {
			cont := strings.TrimLeft(line, " \t")
			switch {
			case readingDescription:
				if d.tty {
					descBuilder.WriteByte('\n')
				} else {
					descBuilder.WriteByte(' ')
				}
				descBuilder.WriteString(cont)
			case readingConffiles:
				st.Conffiles = append(st.Conffiles, parseConffileLine(d.log, cont)...)
			default:
				// continuation of any other field: the line is discarded;
				// it is not folded onto the previous field's value.
			}
			continue
		}

		sawField = true
		readingDescription = false
		readingConffiles = false

		name, value, ok := splitField(line)
		if !ok {
			d.log.Error(fmt.Errorf("malformed control line"), "skipping line", "line", line)
			continue
		}

		switch name {
		case "Package":
			if mask.has(FieldPackage) {
				st.Package = value
			}
		case "Version":
			if mask.has(FieldVersion) {
				st.Version = value
			}
		case "Architecture":
			if mask.has(FieldArchitecture) {
				st.Architecture = value
			}
		case "Depends":
			if mask.has(FieldDepends) {
				st.Depends = value
			}
		case "Pre-Depends":
			if mask.has(FieldPreDepends) {
				st.PreDepends = value
			}
		case "Recommends":
			if mask.has(FieldRecommends) {
				st.Recommends = value
			}
		case "Suggests":
			if mask.has(FieldSuggests) {
				st.Suggests = value
			}
		case "Conflicts":
			if mask.has(FieldConflicts) {
				st.Conflicts = value
			}
		case "Replaces":
			if mask.has(FieldReplaces) {
				st.Replaces = value
			}
		case "Provides":
			if mask.has(FieldProvides) {
				st.Provides = value
			}
		case "Section":
			if mask.has(FieldSection) {
				st.Section = value
			}
		case "Priority":
			if mask.has(FieldPriority) {
				st.Priority = value
			}
		case "Source":
			if mask.has(FieldSource) {
				st.Source = value
			}
		case "Maintainer":
			if mask.has(FieldMaintainer) {
				st.Maintainer = value
			}
		case "Filename":
			if mask.has(FieldFilename) {
				st.Filename = value
			}
		case "Size":
			if mask.has(FieldSize) {
				st.Size = parseUint(d.log, value)
			}
		case "Installed-Size":
			if mask.has(FieldInstalledSize) {
				st.InstalledSize = parseUint(d.log, value)
			}
		case "Installed-Time":
			if mask.has(FieldInstalledTime) {
				st.InstalledTime = parseUint(d.log, value)
			}
		case "MD5sum", "MD5Sum":
			if mask.has(FieldMD5Sum) {
				st.MD5Sum = value
			}
		case "SHA256sum":
			if mask.has(FieldSHA256Sum) {
				st.SHA256Sum = value
			}
		case "Description":
			if mask.has(FieldDescription) {
				descBuilder.Reset()
				descBuilder.WriteString(value)
				readingDescription = true
				haveDescription = true
			}
		case "Conffiles":
			if mask.has(FieldConffiles) {
				readingConffiles = true
				// Conffiles entries normally live entirely on continuation
				// lines; comma-separated "path md5" pairs on the field
				// value itself are accepted as well.
				st.Conffiles = append(st.Conffiles, parseConffileList(d.log, value)...)
			}
		case "Alternatives":
			if mask.has(FieldAlternatives) {
				st.Alternatives = append(st.Alternatives, parseAlternatives(value)...)
			}
		case "Tags":
			if mask.has(FieldTags) {
				st.Tags = value
			}
		case "Essential":
			if mask.has(FieldEssential) {
				st.Essential = value == "yes"
			}
		case "Auto-Installed":
			if mask.has(FieldAutoInstalled) {
				st.AutoInstalled = value == "yes"
			}
		case "Status":
			if mask.has(FieldStatus) {
				want, flag, status, err := parseStatus(value)
				if err != nil {
					d.log.Error(err, "failed to parse Status line", "pkg", st.Package)
					break
				}
				st.Want = want
				st.Flags = flag
				st.Status = status
			}
		case "ABIVersion":
			if mask.has(FieldABIVersion) {
				st.ABIVersion = value
			}
		default:
			d.log.V(3).Info("ignoring unrecognized control field", "field", name)
		}
	}

	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	if !sawField {
		return nil, io.EOF
	}
	if haveDescription {
		st.Description = descBuilder.String()
	}
	return st, nil
}

func splitField(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], strings.TrimSpace(line[idx+1:]), true
}

func parseUint(log logr.Logger, s string) uint64 {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		log.V(1).Info("ignoring malformed numeric field", "value", s)
		return 0
	}
	return n
}

func parseStatus(s string) (Want, Flag, Status, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return 0, 0, 0, fmt.Errorf("control: malformed Status line %q", s)
	}
	return wantFromString(fields[0]), flagFromString(fields[1]), statusFromString(fields[2]), nil
}

func parseConffileList(log logr.Logger, s string) []Conffile {
	var out []Conffile
	for _, entry := range strings.Split(s, ",") {
		out = append(out, parseConffileLine(log, entry)...)
	}
	return out
}

func parseConffileLine(log logr.Logger, line string) []Conffile {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		if strings.TrimSpace(line) != "" {
			log.Error(fmt.Errorf("malformed Conffiles line"), "skipping", "line", line)
		}
		return nil
	}
	return []Conffile{{Path: fields[0], MD5: fields[1]}}
}

// parseAlternatives parses comma-separated "prio:path:altpath" triples. An
// item is silently skipped if path is not absolute or altpath is empty
// (spec.md §4.3).
func parseAlternatives(s string) []Alternative {
	var out []Alternative
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			continue
		}
		prio, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			continue
		}
		path := strings.TrimSpace(parts[1])
		altpath := strings.TrimSpace(parts[2])
		if !strings.HasPrefix(path, "/") || altpath == "" {
			continue
		}
		out = append(out, Alternative{Priority: prio, Path: path, AltPath: altpath})
	}
	return out
}
