package apierr

import "strconv"

// ErrorCode is a platform response code. CodeOf maps any integer onto a
// known variant, falling back to CodeUnknown.
type ErrorCode int

const (
	CodeSuccess              ErrorCode = 0
	CodeInternal             ErrorCode = -1
	CodeIllegalParams        ErrorCode = -2
	CodeUnsupportedAPI       ErrorCode = -3
	CodeBlockedAction        ErrorCode = -4
	CodeAccessDenied         ErrorCode = -5
	CodeExceedLimit          ErrorCode = -10
	CodeUnauthorized         ErrorCode = -401
	CodeNotRegisteredUser    ErrorCode = -101
	CodeNotStoryUser         ErrorCode = -601
	CodeInvalidScope         ErrorCode = -402
	CodeUnderAgeLimit        ErrorCode = -406
	CodeBadParameters        ErrorCode = -440
	CodeNotAuthorizedAge     ErrorCode = -450
	CodeLowerAgeLimit        ErrorCode = -451
	CodeAlreadyAgeAuthorized ErrorCode = -452
	CodeExceedAgeCheckLimit  ErrorCode = -453
	CodeAgeResultMismatch    ErrorCode = -480
	CodeCIResultMismatch     ErrorCode = -481
	CodeServerError          ErrorCode = -500
	CodeUnderMaintenance     ErrorCode = -9798
	CodeClientError          ErrorCode = ClientErrorCode
	CodeUnknown              ErrorCode = -999
)

var codeNames = map[ErrorCode]string{
	CodeSuccess:              "success",
	CodeInternal:             "internal",
	CodeIllegalParams:        "illegal_params",
	CodeUnsupportedAPI:       "unsupported_api",
	CodeBlockedAction:        "blocked_action",
	CodeAccessDenied:         "access_denied",
	CodeExceedLimit:          "exceed_limit",
	CodeUnauthorized:         "unauthorized",
	CodeNotRegisteredUser:    "not_registered_user",
	CodeNotStoryUser:         "not_story_user",
	CodeInvalidScope:         "invalid_scope",
	CodeUnderAgeLimit:        "under_age_limit",
	CodeBadParameters:        "bad_parameters",
	CodeNotAuthorizedAge:     "not_authorized_age",
	CodeLowerAgeLimit:        "lower_age_limit",
	CodeAlreadyAgeAuthorized: "already_age_authorized",
	CodeExceedAgeCheckLimit:  "exceed_age_check_limit",
	CodeAgeResultMismatch:    "age_auth_result_mismatch",
	CodeCIResultMismatch:     "ci_result_mismatch",
	CodeServerError:          "server_error",
	CodeUnderMaintenance:     "under_maintenance",
	CodeClientError:          "client_error",
	CodeUnknown:              "unknown",
}

// CodeOf returns the variant for a raw code. Never fails.
func CodeOf(code int) ErrorCode {
	c := ErrorCode(code)
	if _, ok := codeNames[c]; ok {
		return c
	}

	return CodeUnknown
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}

	return "code(" + strconv.Itoa(int(c)) + ")"
}
