package model

// ValidationContext carries the parent certificate plus its
// repository and manifest URIs down the top-down walk (spec §3's
// "validation context"). It is the clean, return-value-friendly
// counterpart to the oracle's mutable ValidationResult accumulator
// (spec §9).
type ValidationContext struct {
	Parent        X509ResourceCertificate
	RepositoryUri string
	ManifestUri   string
}
