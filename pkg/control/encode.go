package control

import (
	"fmt"
	"net/textproto"
	"strconv"
	"strings"
)

// Encode renders a Stanza back into control-file form, in the fixed field
// order below. It is used to write the local installed-status database.
func Encode(st *Stanza) string {
	block := textproto.MIMEHeader{}
	set := func(key, value string) {
		if value != "" {
			block.Set(key, value)
		}
	}

	set("Package", st.Package)
	set("Version", st.Version)
	set("Architecture", st.Architecture)
	set("Depends", st.Depends)
	set("Pre-Depends", st.PreDepends)
	set("Recommends", st.Recommends)
	set("Suggests", st.Suggests)
	set("Conflicts", st.Conflicts)
	set("Replaces", st.Replaces)
	set("Provides", st.Provides)
	set("Section", st.Section)
	set("Priority", st.Priority)
	set("Maintainer", st.Maintainer)
	if st.Essential {
		set("Essential", "yes")
	}
	if st.AutoInstalled {
		set("Auto-Installed", "yes")
	}
	if st.Want != WantUnknown || st.Status != 0 {
		set("Status", fmt.Sprintf("%s %s %s", st.Want, st.Flags, st.Status))
	}
	if st.InstalledSize > 0 {
		set("Installed-Size", strconv.FormatUint(st.InstalledSize, 10))
	}
	set("Description", st.Description)

	ordered := []string{
		"Package", "Version", "Architecture", "Depends", "Pre-Depends",
		"Recommends", "Suggests", "Conflicts", "Replaces", "Provides",
		"Section", "Priority", "Maintainer", "Essential", "Auto-Installed",
		"Status", "Installed-Size", "Description",
	}

	sb := strings.Builder{}
	for _, key := range ordered {
		if v := block.Get(key); v != "" {
			fmt.Fprintf(&sb, "%s: %s\n", key, v)
		}
	}
	for _, c := range st.Conffiles {
		fmt.Fprintf(&sb, "Conffiles:\n %s %s\n", c.Path, c.MD5)
	}
	return sb.String()
}
