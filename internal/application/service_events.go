package application

const (
	// eventTypeIdentityRegistered is emitted in the same transaction as the identity insert.
	eventTypeIdentityRegistered = "identity.registered"
	// eventTypePasswordResetRequested never carries the code.
	eventTypePasswordResetRequested = "identity.password_reset_requested"
	eventTypePasswordReset          = "identity.password_reset"
	eventTypeProfileUpdated         = "identity.profile_updated"
)
