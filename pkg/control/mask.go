package control

// FieldMask selects which fields a Decoder will populate; unset fields are
// skipped even if present in the stream (spec.md §4.3's "a field mask
// allows callers to suppress parsing of selected fields").
type FieldMask uint64

const (
	FieldPackage FieldMask = 1 << iota
	FieldVersion
	FieldArchitecture
	FieldDepends
	FieldPreDepends
	FieldRecommends
	FieldSuggests
	FieldConflicts
	FieldReplaces
	FieldProvides
	FieldSection
	FieldPriority
	FieldSource
	FieldMaintainer
	FieldFilename
	FieldSize
	FieldInstalledSize
	FieldInstalledTime
	FieldMD5Sum
	FieldSHA256Sum
	FieldDescription
	FieldConffiles
	FieldAlternatives
	FieldTags
	FieldEssential
	FieldAutoInstalled
	FieldStatus
	FieldABIVersion

	FieldAll FieldMask = (1 << iota) - 1
)

func (m FieldMask) has(f FieldMask) bool {
	return m&f != 0
}
