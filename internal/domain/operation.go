package domain

// OperationKind identifies a limited operation. The set is closed: adding a
// new limited operation means adding a constant here and assigning it an
// enforcement strategy below, which keeps the routing decision explicit
// instead of scattered string comparisons.
type OperationKind string

const (
	OpJobExtract     OperationKind = "job.extract"
	OpResumeAnalyze  OperationKind = "resume.analyze"
	OpResumeExport   OperationKind = "resume.export"
	OpAIGenerate     OperationKind = "ai.generate"
	OpResumeOptimize OperationKind = "resume.optimize"
	OpATSReport      OperationKind = "ats.report"
)

// OperationKinds returns every declared operation kind.
func OperationKinds() []OperationKind {
	return []OperationKind{
		OpJobExtract,
		OpResumeAnalyze,
		OpResumeExport,
		OpAIGenerate,
		OpResumeOptimize,
		OpATSReport,
	}
}

// EnforcementStrategy selects how an operation kind is limited.
type EnforcementStrategy int

const (
	// StrategyWindow enforces a rolling time-window request counter.
	StrategyWindow EnforcementStrategy = iota
	// StrategyMonthly enforces a billing-cycle consumption allowance.
	StrategyMonthly
)

// Strategy returns the enforcement strategy for an operation kind. The
// second return value is false for unknown kinds, which is a configuration
// error surfaced at startup, never a runtime denial.
func (k OperationKind) Strategy() (EnforcementStrategy, bool) {
	switch k {
	case OpJobExtract, OpResumeAnalyze, OpResumeExport, OpAIGenerate:
		return StrategyWindow, true
	case OpResumeOptimize, OpATSReport:
		return StrategyMonthly, true
	default:
		return StrategyWindow, false
	}
}

// Feature identifies a monthly-tracked premium feature in the usage ledger.
type Feature string

const (
	FeatureOptimization Feature = "optimization"
	FeatureATSReport    Feature = "ats_report"
)

// DisplayName returns the user-facing name of a feature.
func (f Feature) DisplayName() string {
	switch f {
	case FeatureOptimization:
		return "resume optimization"
	case FeatureATSReport:
		return "ATS report"
	default:
		return string(f)
	}
}

// FeatureForOperation maps a monthly-tracked operation kind to its ledger
// feature. Returns false for kinds that are window-limited instead.
func FeatureForOperation(k OperationKind) (Feature, bool) {
	switch k {
	case OpResumeOptimize:
		return FeatureOptimization, true
	case OpATSReport:
		return FeatureATSReport, true
	default:
		return "", false
	}
}
