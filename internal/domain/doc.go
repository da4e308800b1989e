// Package domain models daily weather and electricity-demand data for a
// fixed registry of cities, and the pure pipeline stages that run over it:
// merge, quality validation, and correlation.
//
// # Data Sources
//
// Weather observations come from an NCEI-style daily-summaries API, keyed
// per city by a GHCND station id. Each response row carries a datatype
// (TMAX, TMIN), a value in °F, and a "date" field. The per-day temperature
// is the mean of TMAX and TMIN when both are present.
//
// Demand records come from an EIA-style electricity API, keyed per city by
// a balancing-authority region id. Each response row carries a value in MW
// and a "period" field in place of "date".
//
// # Date Canonicalization
//
// A record's date may arrive under either of two wire fields:
//
//	"date"    canonical, e.g. "2026-08-20T00:00:00" or "2026-08-20"
//	"period"  secondary,  e.g. "2026-08-20"
//
// [CanonicalDate] resolves the two into one UTC-midnight date exactly once
// at ingestion, recording which field supplied it. A record carrying
// neither is a schema failure for its (source, city) pair.
//
// # Quality Conventions
//
// Temperatures outside [-50, 130] °F and negative demand are physically
// implausible and flagged with reason "range" and "negative" respectively.
// Demand above Q3 + 3×IQR of its column is flagged as a "spike". Flagged
// rows stay in the table with excluded_from_stats set; they are reported,
// never silently dropped, and never used in correlation.
//
// Data is FRESH while the newest merged row is at most two days old,
// otherwise STALE. Staleness is a warning only.
//
// # Correlation Conventions
//
// Pearson r between temperature and demand is classified by magnitude:
//
//	|r| ≥ 0.7   STRONG
//	|r| ≥ 0.4   MODERATE
//	otherwise   WEAK
//
// Segments with fewer than three valid rows report INSUFFICIENT instead of
// a coefficient. Global (pooled) and per-city results are separate outputs
// and are always both produced; an optional Fisher-z combination of the
// per-city coefficients may accompany them.
package domain
