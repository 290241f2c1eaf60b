// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeyNotFound           = "common.not_found"
	KeyAccessDenied       = "common.access_denied"
	KeyInternalError      = "common.internal_error"
	KeyServiceUnavailable = "common.service_unavailable"
	KeyRateLimited        = "common.rate_limited"

	// Authentication
	KeyAuthRequired     = "auth.required"
	KeyAuthInvalidToken = "auth.invalid_token"
	KeyAuthSuspended    = "auth.suspended"

	// Users
	KeyUserProfileUpdated = "user.profile_updated"
	KeyUserRoleUpdated    = "user.role_updated"
	KeySellerOnboarding   = "seller.onboarding_started"

	// Tracks
	KeyTrackCreated     = "track.created"
	KeyTrackUpdated     = "track.updated"
	KeyTrackDeleted     = "track.deleted"
	KeyTrackUnpublished = "track.unpublished"
	KeyTrackSubmitted   = "track.submitted"
	KeyTrackApproved    = "track.approved"
	KeyTrackRejected    = "track.rejected"
	KeyTrackReported    = "track.reported"

	// Licenses
	KeyLicenseSaved   = "license.saved"
	KeyLicenseDeleted = "license.deleted"

	// Orders
	KeyOrderRefunded = "order.refunded"
	KeyReportClosed  = "report.closed"

	// Validation
	KeyValidationInvalid = "validation.invalid"

	// File Upload
	KeyFileUploadSuccess = "file.upload_success"
	KeyFileDeleted       = "file.deleted"
	KeyFileTooLarge      = "file.too_large"

	// Webhooks
	KeyWebhookInvalidSignature = "webhook.invalid_signature"
)
