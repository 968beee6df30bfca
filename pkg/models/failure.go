package models

// FailureKind is the three-way outcome assigned to a non-zero process exit
// based on inspection of its trailing output.
type FailureKind string

const (
	// FailureRateLimited indicates the provider throttled the worker.
	FailureRateLimited FailureKind = "rate_limited"
	// FailureAuth indicates the worker's credentials were rejected.
	FailureAuth FailureKind = "auth_failure"
	// FailureGeneric is any failure without a recognized signature.
	FailureGeneric FailureKind = "generic"
)

// Valid returns true if the kind is a known value.
func (k FailureKind) Valid() bool {
	switch k {
	case FailureRateLimited, FailureAuth, FailureGeneric:
		return true
	default:
		return false
	}
}

// RateLimitInfo carries the metadata extracted from a rate-limit signature.
type RateLimitInfo struct {
	// Message is the matching line from the worker's output.
	Message string `json:"message"`
	// ResetHint is the reset time text extracted from the output, if any.
	ResetHint string `json:"reset_hint,omitempty"`
	// LimitedProfile is the profile the output named as limited, or the
	// active profile at classification time.
	LimitedProfile string `json:"limited_profile,omitempty"`
	// SuggestedProfile is an alternative the output suggested, if any.
	SuggestedProfile string `json:"suggested_profile,omitempty"`
}

// AuthFailureType tags the flavor of an authentication failure so the caller
// can choose a remediation hint.
type AuthFailureType string

const (
	// AuthInvalidCredentials covers rejected or malformed keys and tokens.
	AuthInvalidCredentials AuthFailureType = "invalid_credentials"
	// AuthExpiredCredentials covers expired or revoked keys and tokens.
	AuthExpiredCredentials AuthFailureType = "expired_credentials"
	// AuthPermissionDenied covers valid credentials lacking access.
	AuthPermissionDenied AuthFailureType = "permission_denied"
)

// AuthFailureInfo carries the metadata extracted from an auth signature.
type AuthFailureInfo struct {
	// FailureType tags which kind of auth problem was recognized.
	FailureType AuthFailureType `json:"failure_type"`
	// Message is the literal originating error text, for diagnostics.
	Message string `json:"message"`
}

// FailureClassification is the result of inspecting a failed run's output.
// Exactly one of RateLimit and Auth is set for the matching kind; Detail is
// populated for generic failures.
type FailureClassification struct {
	// Kind is the classification tier that matched.
	Kind FailureKind `json:"kind"`
	// RateLimit holds rate-limit metadata when Kind is rate_limited.
	RateLimit *RateLimitInfo `json:"rate_limit,omitempty"`
	// Auth holds auth metadata when Kind is auth_failure.
	Auth *AuthFailureInfo `json:"auth,omitempty"`
	// Detail holds the most error-relevant trailing output lines when
	// Kind is generic.
	Detail string `json:"detail,omitempty"`
}

// ProfileSwapDecision records an automatic credential profile switch.
// Produced only when reactive failover fires.
type ProfileSwapDecision struct {
	// WasAutoSwapped is true when the active profile actually changed.
	WasAutoSwapped bool `json:"was_auto_swapped"`
	// FromProfile is the profile that was active and rate-limited.
	FromProfile string `json:"from_profile"`
	// ToProfile is the newly activated profile, if any.
	ToProfile string `json:"to_profile,omitempty"`
	// Reason describes why the swap happened. Reactive failover always
	// reports "reactive".
	Reason string `json:"reason"`
}

// SwapReasonReactive is the reason recorded when a swap was triggered by a
// rate-limit classification rather than operator action.
const SwapReasonReactive = "reactive"

// RunOutcome is the terminal record of a single worker invocation. The
// orchestrator emits it on the exit event and does not persist it.
type RunOutcome struct {
	// ExitCode is the process exit status. Nil when the process could not
	// be started at all.
	ExitCode *int `json:"exit_code,omitempty"`
	// FinalPhase is the last phase the run reached.
	FinalPhase ExecutionPhase `json:"final_phase"`
	// Classification is set when a non-zero exit was classified.
	Classification *FailureClassification `json:"classification,omitempty"`
	// Swap is set when reactive failover decided a profile switch.
	Swap *ProfileSwapDecision `json:"swap,omitempty"`
}
