package bundle

import "github.com/hashicorp/go-multierror"

// ProcessingFlags is a uint32 representing the bundle processing control
// flags carried in the primary block, following the bit layout of RFC 5050
// section 4.2.
type ProcessingFlags uint32

const (
	// IsFragment: the bundle is a fragment.
	IsFragment ProcessingFlags = 0x000001

	// AdministrativeRecordPayload: the bundle's payload is an administrative record.
	AdministrativeRecordPayload ProcessingFlags = 0x000002

	// MustNotFragment: the bundle must not be fragmented.
	MustNotFragment ProcessingFlags = 0x000004

	// RequestCustody: custody transfer is requested.
	RequestCustody ProcessingFlags = 0x000008

	// SingletonDestination: the destination endpoint is a singleton.
	SingletonDestination ProcessingFlags = 0x000010

	// RequestUserApplicationAck: acknowledgment by the application is requested.
	RequestUserApplicationAck ProcessingFlags = 0x000020

	// priorityMask covers the 2-bit priority field (bulk=00, normal=01, expedited=10).
	priorityMask ProcessingFlags = 0x000180

	// PriorityBulk, PriorityNormal and PriorityExpedited are the three defined priority levels.
	PriorityBulk       ProcessingFlags = 0x000000
	PriorityNormal     ProcessingFlags = 0x000080
	PriorityExpedited  ProcessingFlags = 0x000100

	// RequestStatusTime: status time is requested in all status reports.
	RequestStatusTime ProcessingFlags = 0x000040

	// StatusRequestReception: request reporting of bundle reception.
	StatusRequestReception ProcessingFlags = 0x004000

	// StatusRequestCustodyAccepted: request reporting of custody acceptance.
	StatusRequestCustodyAccepted ProcessingFlags = 0x010000

	// StatusRequestForward: request reporting of bundle forwarding.
	StatusRequestForward ProcessingFlags = 0x040000

	// StatusRequestDelivery: request reporting of bundle delivery.
	StatusRequestDelivery ProcessingFlags = 0x080000

	// StatusRequestDeletion: request reporting of bundle deletion.
	StatusRequestDeletion ProcessingFlags = 0x100000
)

// Has returns true if every bit set in flag is also set in pf.
func (pf ProcessingFlags) Has(flag ProcessingFlags) bool {
	return pf&flag == flag
}

// Priority extracts the bundle's priority level from the reserved 2-bit field.
func (pf ProcessingFlags) Priority() ProcessingFlags {
	return pf & priorityMask
}

// checkValid reports structural errors in the flag combination.
func (pf ProcessingFlags) checkValid() (errs error) {
	if pf.Has(IsFragment) && pf.Has(MustNotFragment) {
		errs = multierror.Append(errs, newBundleError(
			"ProcessingFlags: both 'is a fragment' and 'must not be fragmented' are set"))
	}

	if pf.Has(AdministrativeRecordPayload) {
		if pf.Has(StatusRequestReception) || pf.Has(StatusRequestForward) ||
			pf.Has(StatusRequestDelivery) || pf.Has(StatusRequestDeletion) {
			errs = multierror.Append(errs, newBundleError(
				"ProcessingFlags: administrative record payload must not request status reports"))
		}
	}

	return
}
