package model

// CheckStatus is the outcome of a single validation check.
type CheckStatus int

const (
	Passed CheckStatus = iota
	Warning
	Failed
)

func (s CheckStatus) String() string {
	switch s {
	case Passed:
		return "PASSED"
	case Warning:
		return "WARNING"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Well-known check keys. The crypto oracle contributes additional
// keys not enumerated here; this is the pipeline's own extension set
// for repository-level conditions (spec §3, §6).
const (
	CheckTrustAnchorPublicKeyMatch  = "trust.anchor.public.key.match"
	CheckObjectNotInCache           = "validator.repository.object.not.in.cache"
	CheckRepositoryIncomplete       = "validator.repository.incomplete"
	CheckRepositoryInconsistent     = "validator.repository.inconsistent"
	CheckRsyncCommand               = "validator.rsync.command"
	CheckRepositoryUnknown          = "validator.repository.unknown"
	CheckManifestMissingFile        = "validator.manifest.does.not.contain.file"
	CheckManifestDuplicateFile      = "validator.manifest.duplicate.filename"
	CheckObjectExpired              = "validator.object.validity.expired"
	CheckObjectStale                = "validator.object.validity.stale"
)

// ValidationCheck is one recorded check outcome, with optional
// free-form parameters (e.g. the offending URI, the expected vs
// actual hash).
type ValidationCheck struct {
	Key    string
	Status CheckStatus
	Params []string
}

// NewCheck builds a ValidationCheck with the given params.
func NewCheck(key string, status CheckStatus, params ...string) ValidationCheck {
	return ValidationCheck{Key: key, Status: status, Params: params}
}

// ValidatedObject is the sum type produced by the pipeline for every
// URI it attempts to resolve: either a ValidObject (possibly carrying
// warnings) or an InvalidObject (carrying at least one failure).
type ValidatedObject struct {
	Uri    string
	Checks []ValidationCheck
	Object RepositoryObject // nil for InvalidObject
	Valid  bool
}

// NewValidObject builds a ValidatedObject in the ValidObject branch.
func NewValidObject(uri string, checks []ValidationCheck, obj RepositoryObject) ValidatedObject {
	return ValidatedObject{Uri: uri, Checks: checks, Object: obj, Valid: true}
}

// NewInvalidObject builds a ValidatedObject in the InvalidObject
// branch. Checks must contain at least one Failed entry.
func NewInvalidObject(uri string, checks []ValidationCheck) ValidatedObject {
	return ValidatedObject{Uri: uri, Checks: checks, Valid: false}
}

// HasFailure reports whether any check in the set is Failed.
func HasFailure(checks []ValidationCheck) bool {
	for _, c := range checks {
		if c.Status == Failed {
			return true
		}
	}
	return false
}
